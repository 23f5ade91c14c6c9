// SPDX-License-Identifier: Apache-2.0

// Package notifier pushes live updates to connected clients. Broadcasts are
// a UX enhancement, never a correctness mechanism: every failure is logged
// and swallowed so ingestion latency and availability stay decoupled from
// the messaging layer's health.
package notifier

import "context"

// Notifier publishes a message to the topic derived from targetID and
// channel. Implementations must not return delivery failures to callers;
// there is no acknowledgement, retry, or ordering guarantee.
type Notifier interface {
	Broadcast(ctx context.Context, targetID, channel, eventType string, payload any)
}

// Nop drops every broadcast. Used when no messaging backend is configured.
type Nop struct{}

func (Nop) Broadcast(context.Context, string, string, string, any) {}
