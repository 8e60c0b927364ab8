package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clcore/internal/backend"
	"github.com/cwbudde/clcore/internal/compute"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List platforms and devices with their capabilities",
	Long: `Enumerate every platform and device of any type visible to the backend and
print the capability profile that dispatch validation uses.`,
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	drv, err := backend.Open(cfg.Backend)
	if err != nil {
		return err
	}

	platforms, err := compute.ListPlatforms(drv)
	if err != nil {
		return fmt.Errorf("failed to list platforms: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(platforms) == 0 {
		fmt.Fprintln(out, "No platforms found.")
		return nil
	}

	for i, p := range platforms {
		fmt.Fprintf(out, "Platform %d: %s\n", i, p.Info.Name)
		fmt.Fprintf(out, "\tVendor: %s\n", p.Info.Vendor)
		fmt.Fprintf(out, "\tVersion: %s\n", p.Info.Version)
		if len(p.Devices) == 0 {
			fmt.Fprintln(out, "\tNo devices.")
		}
		for _, d := range p.Devices {
			printProfile(out, d)
		}
	}
	return nil
}

func printProfile(w io.Writer, p compute.DeviceProfile) {
	fmt.Fprintf(w, "Device Name: %s (%s)\n", p.Name, p.Type)
	fmt.Fprintf(w, "\tVendor: %s\n", p.Vendor)
	fmt.Fprintf(w, "\tGlobal Memory: %s (%d)\n", formatBytes(int64(p.GlobalMemSize)), p.GlobalMemSize)
	fmt.Fprintf(w, "\tMax Work Group Size: %d\n", p.MaxWorkGroupSize)
	fmt.Fprintf(w, "\tMax Dimensions: %d\n", p.MaxDimensions)

	sizes := make([]string, p.MaxDimensions)
	for d := range p.MaxDimensions {
		sizes[d] = fmt.Sprint(p.MaxWorkItemSizes[d])
	}
	fmt.Fprintf(w, "\tMax Work Items: ( %s )\n", strings.Join(sizes, ", "))
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
