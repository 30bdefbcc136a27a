package inference

import (
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/tphakala/imagelens/internal/cpuspec"
	"github.com/tphakala/imagelens/internal/logger"
)

const (
	// below this much available memory the pipeline runs one layer at a time
	lowMemoryBytes = 1 << 30
	// SafeConcurrency is the ceiling applied when acceleration is missing
	SafeConcurrency = 1
)

// Capabilities is the result of the startup capability probe.
type Capabilities struct {
	Accelerated    bool
	SIMD           []string
	Threads        int
	MaxConcurrency int
	Reason         string
}

// ProbeInputs are the raw facts the probe decides from.
type ProbeInputs struct {
	CPU             cpuspec.CPUSpec
	DelegateCreated bool
	AvailableMemory uint64
	NumCPU          int
}

// Probe inspects the host once. When useXNNPACK is set it creates and frees a
// throwaway delegate to confirm the runtime library supports it.
func Probe(useXNNPACK bool) Capabilities {
	in := ProbeInputs{
		CPU:    cpuspec.GetCPUSpec(),
		NumCPU: runtime.NumCPU(),
	}

	if useXNNPACK {
		if d := xnnpack.New(xnnpack.DelegateOptions{NumThreads: 1}); d != nil {
			in.DelegateCreated = true
			d.Delete()
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		in.AvailableMemory = vm.Available
	} else {
		GetLogger().Debug("memory probe failed", logger.Error(err))
	}

	caps := Decide(in)
	GetLogger().Info("capability probe finished",
		logger.Bool("accelerated", caps.Accelerated),
		logger.String("simd", strings.Join(caps.SIMD, ",")),
		logger.Int("threads", caps.Threads),
		logger.Int("max_concurrency", caps.MaxConcurrency),
		logger.String("reason", caps.Reason))
	return caps
}

// Decide turns probe facts into capabilities. An unknown (zero) memory
// figure does not limit concurrency.
func Decide(in ProbeInputs) Capabilities {
	threads := in.CPU.GetOptimalThreadCount()
	if threads <= 0 || (in.NumCPU > 0 && threads > in.NumCPU) {
		threads = max(1, in.NumCPU)
	}

	caps := Capabilities{
		SIMD:           in.CPU.SIMD,
		Threads:        threads,
		MaxConcurrency: max(1, threads/2),
	}

	switch {
	case !in.CPU.HasAcceleration():
		caps.Reason = "no SIMD extension usable by XNNPACK"
	case !in.DelegateCreated:
		caps.Reason = "XNNPACK delegate unavailable"
	default:
		caps.Accelerated = true
	}

	if !caps.Accelerated {
		caps.MaxConcurrency = SafeConcurrency
	}
	if in.AvailableMemory > 0 && in.AvailableMemory < lowMemoryBytes {
		caps.MaxConcurrency = 1
		if caps.Reason == "" {
			caps.Reason = "low available memory"
		}
	}
	return caps
}
