package cpu

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// features tracks available CPU instruction set extensions
type features struct {
	HasSSE4    bool
	HasAVX     bool
	HasAVX2    bool
	HasAVX512F bool
	HasFMA     bool
	HasASIMD   bool
	HasSVE     bool
}

func detectFeatures() features {
	return features{
		HasSSE4:    cpu.X86.HasSSE41 || cpu.X86.HasSSE42,
		HasAVX:     cpu.X86.HasAVX,
		HasAVX2:    cpu.X86.HasAVX2,
		HasAVX512F: cpu.X86.HasAVX512F,
		HasFMA:     cpu.X86.HasFMA,
		HasASIMD:   cpu.ARM64.HasASIMD,
		HasSVE:     cpu.ARM64.HasSVE,
	}
}

// vectorWidth returns the float32 lane count of the widest SIMD unit.
func (f features) vectorWidth() int {
	switch {
	case f.HasAVX512F:
		return 16
	case f.HasAVX2, f.HasAVX:
		return 8
	case f.HasSSE4, f.HasASIMD, f.HasSVE:
		return 4
	case runtime.GOARCH == "amd64":
		return 4 // SSE2 is baseline
	default:
		return 1
	}
}

// names returns a list describing available CPU features
func (f features) names() []string {
	var out []string
	if f.HasSSE4 {
		out = append(out, "SSE4")
	}
	if f.HasAVX {
		out = append(out, "AVX")
	}
	if f.HasAVX2 {
		out = append(out, "AVX2")
	}
	if f.HasFMA {
		out = append(out, "FMA")
	}
	if f.HasAVX512F {
		out = append(out, "AVX512F")
	}
	if f.HasASIMD {
		out = append(out, "ASIMD")
	}
	if f.HasSVE {
		out = append(out, "SVE")
	}
	return out
}
