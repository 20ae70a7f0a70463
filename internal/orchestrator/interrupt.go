package orchestrator

import "sync/atomic"

// InterruptFlag is the shared cancellation signal between the router and the
// decoding loop. The loop polls IsSet once per generation step; the router
// sets it on an interrupt command and resets it exactly once at the start of
// every generate. atomic.Bool gives the write-visibility the producer and
// consumer need without a lock.
type InterruptFlag struct {
	v atomic.Bool
}

// NewInterruptFlag returns a cleared flag.
func NewInterruptFlag() *InterruptFlag { return &InterruptFlag{} }

// Set requests a cooperative stop of the active generation.
func (f *InterruptFlag) Set() { f.v.Store(true) }

// Reset clears any pending interrupt. Resetting a cleared flag is a no-op.
func (f *InterruptFlag) Reset() { f.v.Store(false) }

// IsSet reports whether an interrupt is pending.
func (f *InterruptFlag) IsSet() bool { return f.v.Load() }
