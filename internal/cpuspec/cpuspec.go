// Package cpuspec inspects the host CPU to size inference thread pools and to
// tell whether accelerated (SIMD) inference kernels are usable.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string
	PerformanceCores int
	LogicalCores     int
	SIMD             []string // accelerated instruction sets usable by XNNPACK
}

// GetCPUSpec returns CPU specifications for the running host
func GetCPUSpec() CPUSpec {
	brandName := cpuid.CPU.BrandName

	return CPUSpec{
		BrandName:        brandName,
		PerformanceCores: determinePerformanceCores(brandName),
		LogicalCores:     cpuid.CPU.LogicalCores,
		SIMD:             detectSIMD(),
	}
}

// HasAcceleration reports whether the CPU offers a SIMD extension the XNNPACK
// delegate can use. Without one, model layers would run on reference kernels.
func (c CPUSpec) HasAcceleration() bool {
	return len(c.SIMD) > 0
}

// GetOptimalThreadCount returns the recommended number of inference threads
func (c CPUSpec) GetOptimalThreadCount() int {
	availableCPUs := runtime.NumCPU()

	// Hybrid architectures: stick to performance cores
	if c.PerformanceCores > 0 {
		return min(c.PerformanceCores, availableCPUs)
	}

	if c.LogicalCores > 0 {
		return min(c.LogicalCores, availableCPUs)
	}
	return availableCPUs
}

// detectSIMD lists the vector extensions relevant to TFLite/XNNPACK kernels
func detectSIMD() []string {
	var features []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpuid.CPU.Supports(cpuid.SSE4) {
			features = append(features, "sse4.1")
		}
		if cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) {
			features = append(features, "avx2")
		}
		if cpuid.CPU.Supports(cpuid.AVX512F) {
			features = append(features, "avx512f")
		}
	case "arm64":
		// NEON is mandatory on arm64
		features = append(features, "neon")
		if cpuid.CPU.Supports(cpuid.ASIMDDP) {
			features = append(features, "dotprod")
		}
	}
	return features
}

// Performance core counts for hybrid CPUs, keyed by model number
var (
	intelPCores = map[string]int{
		"12900": 8, "12700": 8, "12600": 6, "12400": 6, "12100": 4,
		"13900": 8, "13700": 8, "13600": 6, "13500": 6, "13400": 6, "13100": 4,
		"14900": 8, "14700": 8, "14600": 6, "14400": 6, "14100": 4,
	}
	intelUltraPCores = map[string]int{
		"9 285": 8,
		"7 265": 8, "7 255": 8,
		"5 235": 6, "5 225": 4,
	}
	applePCores = map[string]int{
		"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
		"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
		"m3": 4, "m3 pro": 8, "m3 max": 12, "m3 ultra": 24,
		"m4": 6, "m4 pro": 8, "m4 max": 12,
	}

	intelCoreRegex = regexp.MustCompile(`intel.*(?:core.*i[3579]-(\d{5})|core.*ultra\s+([579])\s+(?:processor\s+)?(\d{3}))`)
	appleRegex     = regexp.MustCompile(`apple\s+(m[1-4](?:\s+(?:pro|max|ultra))?)`)
)

// determinePerformanceCores returns the P-core count for known hybrid CPUs, 0 otherwise
func determinePerformanceCores(brandName string) int {
	brandName = strings.ToLower(brandName)

	if m := intelCoreRegex.FindStringSubmatch(brandName); len(m) > 1 {
		if m[1] != "" {
			return intelPCores[m[1]]
		}
		return intelUltraPCores[m[2]+" "+m[3]]
	}

	if m := appleRegex.FindStringSubmatch(brandName); len(m) > 1 {
		return applePCores[strings.Join(strings.Fields(m[1]), " ")]
	}

	return 0
}
