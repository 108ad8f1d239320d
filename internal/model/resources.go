// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file models the resource parameters requested from the batch
// scheduler, both for a whole batch (ResourceSpec) and for one job
// (JobResources).
package model

import (
	"fmt"
	"strconv"
)

// DefaultJobName returns the job name used for the i-th submitted target
// when the caller did not name its jobs.
func DefaultJobName(i int) string {
	return fmt.Sprintf("redo%02d", i)
}

// LengthMismatchError reports a list-valued field whose length differs from
// the number of targets it is meant to describe.
type LengthMismatchError struct {
	Field   string
	Len     int
	Targets int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("%s has %d values but there are %d targets", e.Field, e.Len, e.Targets)
}

// ResourceSpec holds the scheduler parameters for a batch of targets.
type ResourceSpec struct {
	Partition Field[string]
	CPUs      Field[int]
	Memory    Field[string]
	Time      Field[string]
	Name      Field[string]
}

// Validate checks that every list-valued field has exactly n entries.
func (s ResourceSpec) Validate(n int) error {
	checks := []struct {
		name string
		len  int
	}{
		{"partition", s.Partition.Len()},
		{"cpus", s.CPUs.Len()},
		{"mem", s.Memory.Len()},
		{"time", s.Time.Len()},
		{"name", s.Name.Len()},
	}
	for _, c := range checks {
		if c.len >= 0 && c.len != n {
			return &LengthMismatchError{Field: c.name, Len: c.len, Targets: n}
		}
	}
	return nil
}

// Filter narrows every list-valued field to the entries whose keep flag is set.
func (s ResourceSpec) Filter(keep []bool) ResourceSpec {
	return ResourceSpec{
		Partition: s.Partition.Filter(keep),
		CPUs:      s.CPUs.Filter(keep),
		Memory:    s.Memory.Filter(keep),
		Time:      s.Time.Filter(keep),
		Name:      s.Name.Filter(keep),
	}
}

// WithDefaults fills every unset field from defaults.
func (s ResourceSpec) WithDefaults(defaults ResourceSpec) ResourceSpec {
	return ResourceSpec{
		Partition: s.Partition.Or(defaults.Partition),
		CPUs:      s.CPUs.Or(defaults.CPUs),
		Memory:    s.Memory.Or(defaults.Memory),
		Time:      s.Time.Or(defaults.Time),
		Name:      s.Name.Or(defaults.Name),
	}
}

// Expand produces the per-job parameters for n targets. Unnamed jobs get
// DefaultJobName of their position. s must already pass Validate(n).
func (s ResourceSpec) Expand(n int) []JobResources {
	out := make([]JobResources, n)
	for i := range out {
		name := DefaultJobName(i)
		if v, ok := s.Name.At(i); ok && v != "" {
			name = v
		}
		out[i] = JobResources{
			Partition: s.Partition.Ptr(i),
			CPUs:      s.CPUs.Ptr(i),
			Memory:    s.Memory.Ptr(i),
			Time:      s.Time.Ptr(i),
			Name:      name,
		}
	}
	return out
}

// JobResources is the parameter set of a single batch job. Nil pointers mean
// the scheduler default applies.
type JobResources struct {
	Partition *string
	CPUs      *int
	Memory    *string
	Time      *string
	Name      string
}

// PartitionName returns the partition or "" when unset.
func (r JobResources) PartitionName() string {
	if r.Partition == nil {
		return ""
	}
	return *r.Partition
}

// LogArgs lists the set parameters as flat strings for structured logs.
func (r JobResources) LogArgs() []any {
	attrs := []any{"name", r.Name}
	if r.Partition != nil {
		attrs = append(attrs, "partition", *r.Partition)
	}
	if r.CPUs != nil {
		attrs = append(attrs, "cpus", strconv.Itoa(*r.CPUs))
	}
	if r.Memory != nil {
		attrs = append(attrs, "mem", *r.Memory)
	}
	if r.Time != nil {
		attrs = append(attrs, "time", *r.Time)
	}
	return attrs
}
