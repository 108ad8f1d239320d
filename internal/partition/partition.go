// Package partition classifies scheduler partitions by the resource class
// they provide. The only distinction the dispatcher cares about is whether a
// partition hands out GPUs.
package partition

import "slices"

// defaultGPU is the fixed set of GPU-class partitions. The interactive GPU
// partition is shared between users and is kept out on purpose.
var defaultGPU = []string{
	"gpu-2080ti",
	"gpu-2080ti-dev",
	"gpu-2080ti-preemptable",
	// "gpu-2080ti-interactive",
	"gpu-v100",
	"gpu-v100-preemptable",
}

// DefaultGPUPartitions returns a copy of the built-in GPU partition set.
func DefaultGPUPartitions() []string {
	return slices.Clone(defaultGPU)
}

// IsGPU reports whether name is one of the built-in GPU partitions. An
// empty name (no partition requested) is never GPU-class.
func IsGPU(name string) bool {
	return slices.Contains(defaultGPU, name)
}

// Classifier labels partitions against a configurable GPU set.
type Classifier struct {
	gpu map[string]struct{}
}

// NewClassifier builds a classifier for the given GPU partitions. With no
// names it falls back to the built-in set.
func NewClassifier(gpuPartitions ...string) *Classifier {
	if len(gpuPartitions) == 0 {
		gpuPartitions = defaultGPU
	}
	c := &Classifier{gpu: make(map[string]struct{}, len(gpuPartitions))}
	for _, p := range gpuPartitions {
		if p == "" {
			continue
		}
		c.gpu[p] = struct{}{}
	}
	return c
}

// IsGPU reports whether name belongs to the classifier's GPU set.
func (c *Classifier) IsGPU(name string) bool {
	if c == nil {
		return IsGPU(name)
	}
	_, ok := c.gpu[name]
	return ok
}

// Split returns the indices of GPU-class and non-GPU-class entries of
// partitions, each in list order.
func (c *Classifier) Split(partitions []string) (gpu, other []int) {
	for i, p := range partitions {
		if c.IsGPU(p) {
			gpu = append(gpu, i)
		} else {
			other = append(other, i)
		}
	}
	return gpu, other
}
