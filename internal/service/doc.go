// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Andrei Vetrov

// Package service implements the offline sync domain: the durable mutation
// queue, the per-entity-type caches, and the sync engine that drains the
// queue against the remote API.
//
// Ownership discipline: the queue and the caches are mutated only through
// their own methods. The engine orchestrates but never reaches into their
// internals, so the queue/cache invariants have a single point of
// enforcement each.
package service
