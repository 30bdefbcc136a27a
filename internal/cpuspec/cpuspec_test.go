package cpuspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterminePerformanceCores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		brand string
		want  int
	}{
		{"12th Gen Intel(R) Core(TM) i7-12700K", 8},
		{"13th Gen Intel(R) Core(TM) i5-13400F", 6},
		{"Intel(R) Core(TM) Ultra 5 225", 4},
		{"Apple M2 Max", 12},
		{"Apple M1", 4},
		{"AMD Ryzen 7 5800X 8-Core Processor", 0},
		{"", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, determinePerformanceCores(tt.brand), tt.brand)
	}
}

func TestGetOptimalThreadCountIsPositive(t *testing.T) {
	t.Parallel()

	assert.Positive(t, GetCPUSpec().GetOptimalThreadCount())
	assert.Positive(t, CPUSpec{}.GetOptimalThreadCount())
}
