package sched

import (
	"fmt"
	"time"
)

// nowHook exists so speed metering goes through one call site; tests that
// need deterministic timestamps can't substitute time.Now itself, but every
// Add call in this package routes through here rather than scattering
// time.Now() calls across backend.go.
func nowHook() time.Time { return time.Now() }

// recoverErr turns a recovered panic value into an error, so a panicking
// Request implementation surfaces as a normal DoSend/DoRecv/DoConn error
// instead of unwinding the scheduler's own goroutine (spec.md §4.E
// "Failure semantics").
func recoverErr(p interface{}) error {
	if err, ok := p.(error); ok {
		return fmt.Errorf("sched: recovered panic: %w", err)
	}
	return fmt.Errorf("sched: recovered panic: %v", p)
}
