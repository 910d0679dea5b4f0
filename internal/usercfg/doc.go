// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

// Package usercfg models the access-control configuration: users, groups,
// roles, ACL entries and resource pools, together with the line-oriented
// persisted text format.
//
// A Config is always loaded and replaced wholesale: Parse produces a fresh
// snapshot from persisted bytes, and mutations happen inside a Manager
// lock/commit cycle that re-reads, mutates and writes back the whole blob.
// Parsing is never fatal; malformed lines are skipped and reported as
// Warnings so that a damaged configuration still loads as far as possible.
package usercfg
