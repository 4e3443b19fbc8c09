// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Andrei Vetrov

// Package client assembles the offline sync core into the single [App]
// facade the platform shell embeds.
//
// It wires configuration, the three storage tiers, the transport adapter,
// the connectivity monitor, the mutation queue, the entity caches and the
// sync engine into one process lifecycle.
package client
