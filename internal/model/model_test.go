package model

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField_ScalarAppliesToEveryTarget(t *testing.T) {
	f := Scalar("cpu-short")

	for i := 0; i < 3; i++ {
		v, ok := f.At(i)
		require.True(t, ok)
		assert.Equal(t, "cpu-short", v)
	}
	assert.Equal(t, -1, f.Len())
	assert.False(t, f.IsList())
}

func TestField_UnsetYieldsNothing(t *testing.T) {
	f := Unset[int]()

	_, ok := f.At(0)
	assert.False(t, ok)
	assert.Nil(t, f.Ptr(0))
	assert.False(t, f.IsSet())
}

func TestField_FilterShrinksListOnly(t *testing.T) {
	keep := []bool{true, false, true}

	list := List("a", "b", "c").Filter(keep)
	require.Equal(t, 2, list.Len())
	v, _ := list.At(1)
	assert.Equal(t, "c", v)

	scalar := Scalar(4).Filter(keep)
	v2, ok := scalar.At(1)
	require.True(t, ok)
	assert.Equal(t, 4, v2)
}

func TestResourceSpec_ValidateLengthMismatch(t *testing.T) {
	spec := ResourceSpec{Partition: List("gpu-v100", "cpu-short")}

	err := spec.Validate(3)

	var mismatch *LengthMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "partition", mismatch.Field)
	assert.Equal(t, 2, mismatch.Len)
	assert.Equal(t, 3, mismatch.Targets)

	require.NoError(t, spec.Validate(2))
	require.NoError(t, ResourceSpec{Partition: Scalar("x")}.Validate(7))
}

func TestResourceSpec_ExpandDefaultsJobNames(t *testing.T) {
	spec := ResourceSpec{
		Partition: Scalar("cpu-short"),
		CPUs:      List(2, 8),
	}

	jobs := spec.Expand(2)

	require.Len(t, jobs, 2)
	assert.Equal(t, "redo00", jobs[0].Name)
	assert.Equal(t, "redo01", jobs[1].Name)
	assert.Equal(t, "cpu-short", jobs[1].PartitionName())
	require.NotNil(t, jobs[1].CPUs)
	assert.Equal(t, 8, *jobs[1].CPUs)
	assert.Nil(t, jobs[0].Memory)
	assert.Nil(t, jobs[0].Time)
}

func TestResourceSpec_ExpandKeepsExplicitNames(t *testing.T) {
	spec := ResourceSpec{Name: List("train", "")}

	jobs := spec.Expand(2)

	assert.Equal(t, "train", jobs[0].Name)
	assert.Equal(t, "redo01", jobs[1].Name)
}

func TestResourceSpec_WithDefaults(t *testing.T) {
	spec := ResourceSpec{Partition: Scalar("cpu-short")}
	defaults := ResourceSpec{Partition: Scalar("gpu-v100"), Memory: Scalar("10G")}

	merged := spec.WithDefaults(defaults)

	p, _ := merged.Partition.At(0)
	m, _ := merged.Memory.At(0)
	assert.Equal(t, "cpu-short", p)
	assert.Equal(t, "10G", m)
	assert.False(t, merged.CPUs.IsSet())
}

func TestJobIDsAndNames(t *testing.T) {
	jobs := []SubmittedJob{
		{ID: "11", Name: "redo00", Target: "/w/a"},
		{ID: "12", Name: "redo01", Target: "/w/b"},
	}

	if diff := cmp.Diff([]string{"11", "12"}, JobIDs(jobs)); diff != "" {
		t.Errorf("JobIDs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"redo00", "redo01"}, JobNames(jobs)); diff != "" {
		t.Errorf("JobNames mismatch (-want +got):\n%s", diff)
	}
}
