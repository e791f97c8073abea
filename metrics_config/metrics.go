package metrics_config

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/dominant-strategies/go-progpow/log"
)

// DefaultAddress is the listen address of the metrics endpoint.
const DefaultAddress = ":2112"

// enabled is toggled by the command line before the metrics endpoint starts.
// Metrics are always collected; only serving them depends on it.
var enabled = false

func EnableMetrics() {
	enabled = true
}

func MetricsEnabled() bool {
	return enabled
}

// StartProcessMetrics serves the registered metrics together with process and
// host usage gauges on addr. dagDir, if set, is reported in the disk gauges.
func StartProcessMetrics(addr string, dagDir string) {
	// Short circuit if the metrics system is disabled
	if !enabled {
		return
	}
	if addr == "" {
		addr = DefaultAddress
	}
	// System usage metrics.
	gaugesMap := make(map[string]*prometheus.GaugeVec)

	gaugesMap["cpu"] = NewGaugeVec("cpu_usage", "The average CPU usage over the last second", "cpu_type")
	gaugesMap["mem"] = NewGaugeVec("mem_usage", "The current memory usage", "mem_type")
	gaugesMap["disk"] = NewGaugeVec("disk_usage", "The current disk usage of the dag directory", "usage_type")

	go initializeHttpMetrics(addr, dagDir, gaugesMap)
}

// register adds the collector to the default registry, returning the already
// registered collector when one with the same description exists.
func register[T prometheus.Collector](collector T) T {
	if err := prometheus.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		log.Global.WithField("err", err).Error("Failed to register metric")
	}
	return collector
}

func NewGaugeVec(name string, help string, labels ...string) *prometheus.GaugeVec {
	if len(labels) == 0 {
		labels = []string{"label"}
	}
	return register(prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, labels))
}

func NewCounterVec(name string, help string, labels ...string) *prometheus.CounterVec {
	if len(labels) == 0 {
		labels = []string{"label"}
	}
	return register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labels))
}

// NewTimer returns a histogram of durations in seconds.
func NewTimer(name string, help string) prometheus.Histogram {
	return register(prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}))
}

func initializeHttpMetrics(addr string, dagDir string, metricsMap map[string]*prometheus.GaugeVec) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			updateMetrics(dagDir, metricsMap)
			promhttp.Handler().ServeHTTP(w, r)
		}),
	))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Global.WithField("addr", addr).Info("Serving metrics")
	if err := server.ListenAndServe(); err != nil {
		log.Global.WithField("err", err).Error("Metrics endpoint stopped")
	}
}

func updateMetrics(dagDir string, metricsMap map[string]*prometheus.GaugeVec) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		log.Global.WithField("err", err).Error("Failed to get process")
		return
	}

	collectCPUMetrics(metricsMap["cpu"], proc)
	collectMemoryMetrics(metricsMap["mem"], proc)
	collectDiskMetrics(metricsMap["disk"], dagDir)
}

func collectCPUMetrics(cpuGaugeVec *prometheus.GaugeVec, proc *process.Process) {
	percent, err := proc.CPUPercent()
	if err != nil {
		log.Global.WithField("err", err).Error("Failed to get CPU percent")
	} else {
		cpuGaugeVec.WithLabelValues("Go-progpow").Set(percent)
	}

	usage, err := cpu.Percent(0, false)
	if err != nil || len(usage) == 0 {
		log.Global.WithField("err", err).Error("Failed to get CPU percent")
	} else {
		cpuGaugeVec.WithLabelValues("System").Set(usage[0])
	}

	threads, err := proc.NumThreads()
	if err != nil {
		log.Global.WithField("err", err).Error("Failed to get threads")
	} else {
		cpuGaugeVec.WithLabelValues("Threads").Set(float64(threads))
	}
}

func collectMemoryMetrics(memGaugeVec *prometheus.GaugeVec, proc *process.Process) {
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		log.Global.WithField("err", err).Error("Error while getting memory info")
	} else {
		memGaugeVec.WithLabelValues("Used").Set(float64(memInfo.RSS))
		memGaugeVec.WithLabelValues("Swap").Set(float64(memInfo.Swap))
		memGaugeVec.WithLabelValues("Stack").Set(float64(memInfo.Stack))
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Global.WithField("err", err).Error("Error while getting host memory info")
	} else {
		memGaugeVec.WithLabelValues("Available").Set(float64(vm.Available))
	}
}

func collectDiskMetrics(diskGaugeVec *prometheus.GaugeVec, dagDir string) {
	if dagDir == "" {
		return
	}
	usage, err := disk.Usage(dagDir)
	if err != nil {
		log.Global.WithField("err", err).Debug("Error while getting disk usage")
		return
	}
	diskGaugeVec.WithLabelValues("Free").Set(float64(usage.Free))
	diskGaugeVec.WithLabelValues("Used").Set(float64(usage.Used))
}
