// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model holds the domain types shared by the dispatcher: build
// targets, the per-target resource parameters requested from the batch
// scheduler, and the record of a submitted job.
//
// # Core Concepts
//
//   - Target: a filesystem path naming a buildable artifact. The build tool
//     owns the artifact; the dispatcher only decides where it gets computed.
//
//   - Field: a value that is either a single scalar applied to every target
//     or a list holding one entry per target. All ResourceSpec fields are
//     Fields, which mirrors how callers describe a batch: "every target on
//     cpu-short" or "this target on gpu-v100, that one on cpu-short".
//
//   - ResourceSpec: the partition, CPU, memory, wall-clock and job name
//     parameters for a whole batch. Expand turns it into one JobResources
//     per target.
//
//   - SubmittedJob: the immutable record of one accepted submission.
package model
