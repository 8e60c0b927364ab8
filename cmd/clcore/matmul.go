package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/clcore/internal/compute"
)

var (
	matmulWidth  int
	matmulLocal  int
	matmulSeed   int64
	matmulKernel string
	matmulPrint  bool
	matmulWait   bool
)

var matmulCmd = &cobra.Command{
	Use:   "matmul",
	Short: "Multiply two random square matrices on the device",
	Long: `Fill two width x width matrices from a seeded PRNG, multiply them with the
dMult kernel over a 2D index space and check the product on the host.`,
	RunE: runMatmul,
}

func init() {
	rootCmd.AddCommand(matmulCmd)

	matmulCmd.Flags().IntVar(&matmulWidth, "width", 32, "Matrix width")
	matmulCmd.Flags().IntVar(&matmulLocal, "local", 8, "Work-group width per dimension")
	matmulCmd.Flags().Int64Var(&matmulSeed, "seed", 1337, "PRNG seed")
	matmulCmd.Flags().StringVar(&matmulKernel, "kernel", "", "Kernel source file (default: embedded dMult.cl)")
	matmulCmd.Flags().BoolVar(&matmulPrint, "print", true, "Print the matrices")
	matmulCmd.Flags().BoolVar(&matmulWait, "wait", false, "Wait for Enter before exiting")
}

// squareMatrix is a row-major width x width matrix.
type squareMatrix struct {
	width int
	e     []float32
}

// randomMatrix fills the matrix column by column with values in [0, 0.99].
func randomMatrix(width int, rng *rand.Rand) *squareMatrix {
	m := &squareMatrix{width: width, e: make([]float32, width*width)}
	for i := range width {
		for j := range width {
			m.e[j*width+i] = float32(rng.Intn(100)) / 100
		}
	}
	return m
}

func (m *squareMatrix) dense() *mat.Dense {
	data := make([]float64, len(m.e))
	for i, v := range m.e {
		data[i] = float64(v)
	}
	return mat.NewDense(m.width, m.width, data)
}

func (m *squareMatrix) print(w io.Writer) {
	for i := range m.width {
		for j := range m.width {
			fmt.Fprintf(w, "%g ", m.e[i*m.width+j])
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}

func runMatmul(cmd *cobra.Command, args []string) error {
	if matmulWidth <= 0 || matmulLocal <= 0 {
		return fmt.Errorf("width and local must be positive")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	core, err := openCore()
	if err != nil {
		return err
	}
	defer core.Close()

	printProfile(out, core.QueueDevice())

	prog, err := addKernel(ctx, core, matmulKernel, "dMult")
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(matmulSeed))
	a := randomMatrix(matmulWidth, rng)
	b := randomMatrix(matmulWidth, rng)
	c := &squareMatrix{width: matmulWidth, e: make([]float32, matmulWidth*matmulWidth)}
	size := len(a.e) * 4

	ha, err := core.CreateBuffer(size, compute.ReadOnly, nil)
	if err != nil {
		return err
	}
	if err := core.CopyHostToDevice(ctx, ha, size, compute.AsBytes(a.e)); err != nil {
		return err
	}
	hb, err := core.CreateBuffer(size, compute.ReadOnly, nil)
	if err != nil {
		return err
	}
	if err := core.CopyHostToDevice(ctx, hb, size, compute.AsBytes(b.e)); err != nil {
		return err
	}
	hc, err := core.CreateBuffer(size, compute.WriteOnly, nil)
	if err != nil {
		return err
	}

	params, err := resolveAll(core, ha, hb, hc)
	if err != nil {
		return err
	}
	global := []int{matmulWidth, matmulWidth}
	local := []int{matmulLocal, matmulLocal}
	if err := core.Execute(ctx, prog, params, 2, global, local); err != nil {
		return err
	}
	if err := core.CopyDeviceToHost(ctx, hc, size, compute.AsBytes(c.e)); err != nil {
		return err
	}
	if err := finish(ctx, core); err != nil {
		return err
	}

	if matmulPrint {
		a.print(out)
		b.print(out)
		c.print(out)
	}

	if err := verifyProduct(a, b, c, 1e-3); err != nil {
		return err
	}
	fmt.Fprintf(out, "Verified %dx%d product against host reference.\n", matmulWidth, matmulWidth)

	if matmulWait {
		fmt.Fprint(out, "Press Enter to exit...")
		_, _ = bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	}
	return nil
}

// verifyProduct checks c = a x b element-wise within tol.
func verifyProduct(a, b, c *squareMatrix, tol float64) error {
	var want mat.Dense
	want.Mul(a.dense(), b.dense())

	for i := range c.width {
		for j := range c.width {
			got := float64(c.e[i*c.width+j])
			if diff := math.Abs(got - want.At(i, j)); diff > tol {
				return fmt.Errorf("product mismatch at (%d,%d): got %f, want %f", i, j, got, want.At(i, j))
			}
		}
	}
	return nil
}
