// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines Target and SubmittedJob.
package model

// Target is a filesystem path naming an artifact the build tool can produce.
type Target string

// Strings converts targets to plain strings, preserving order.
func Strings(targets []Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = string(t)
	}
	return out
}

// Targets converts plain strings to targets, preserving order.
func Targets(paths ...string) []Target {
	out := make([]Target, len(paths))
	for i, p := range paths {
		out[i] = Target(p)
	}
	return out
}

// SubmittedJob is the record of one accepted batch submission.
type SubmittedJob struct {
	ID     string
	Name   string
	Target Target
}

// JobIDs returns the scheduler identifiers of jobs, preserving order.
func JobIDs(jobs []SubmittedJob) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

// JobNames returns the names of jobs, preserving order.
func JobNames(jobs []SubmittedJob) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Name
	}
	return out
}
