package compute

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	directionToDevice = "host_to_device"
	directionToHost   = "device_to_host"
)

var (
	liveBuffers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clcore_buffers_live",
		Help: "Current number of live device buffers across all cores",
	})

	liveBufferBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clcore_buffer_bytes_live",
		Help: "Current number of bytes held by live device buffers",
	})

	copyBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clcore_copy_bytes_total",
		Help: "Total bytes transferred between host and device",
	}, []string{"direction"})

	dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clcore_dispatches_total",
		Help: "Total number of kernel launches enqueued",
	}, []string{"entry_point"})

	programBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clcore_program_builds_total",
		Help: "Program registrations by outcome (compiled, cached, failed)",
	}, []string{"result"})
)

func trackBuffer(size int) {
	liveBuffers.Inc()
	liveBufferBytes.Add(float64(size))
}

func untrackBuffer(size int) {
	liveBuffers.Dec()
	liveBufferBytes.Sub(float64(size))
}
