package partdata

import (
	"errors"
	"os"
)

// ErrInvalidTransition is returned by state transitions that don't apply
// to the current RunState (spec.md §4.G "State machine").
var ErrInvalidTransition = errors.New("partdata: invalid state transition")

// Pause moves Running -> Paused, flushing any buffered writes first.
func (p *PartData) Pause() error {
	p.mu.Lock()
	if p.state != Running {
		p.mu.Unlock()
		return ErrInvalidTransition
	}
	p.state = Paused
	p.paused = true
	p.mu.Unlock()
	return p.Flush()
}

// Resume moves Paused -> Running.
func (p *PartData) Resume() error {
	p.mu.Lock()
	if p.state != Paused {
		p.mu.Unlock()
		return ErrInvalidTransition
	}
	p.state = Running
	p.paused = false
	p.mu.Unlock()
	return nil
}

// Stop moves Running -> Stopped, flushing first.
func (p *PartData) Stop() error {
	p.mu.Lock()
	if p.state != Running {
		p.mu.Unlock()
		return ErrInvalidTransition
	}
	p.state = Stopped
	p.stopped = true
	p.mu.Unlock()
	return p.Flush()
}

// Restart moves Stopped -> Running.
func (p *PartData) Restart() error {
	p.mu.Lock()
	if p.state != Stopped {
		p.mu.Unlock()
		return ErrInvalidTransition
	}
	p.state = Running
	p.stopped = false
	p.mu.Unlock()
	return nil
}

// Cancel moves any state other than Canceled to Canceled, closing the
// storage and deleting the temp file at Location (spec.md §4.G).
func (p *PartData) Cancel() error {
	p.mu.Lock()
	if p.state == Canceled {
		p.mu.Unlock()
		return nil
	}
	p.state = Canceled
	p.mu.Unlock()
	err := p.storage.Close()
	if rerr := os.Remove(p.Location); rerr != nil && !os.IsNotExist(rerr) && err == nil {
		err = rerr
	}
	return err
}

// Save is the explicit flush entry point from spec.md §4.G's flush
// triggers ("explicit save").
func (p *PartData) Save() error {
	return p.Flush()
}

// IsPaused, IsStopped and IsAutoPaused expose the three flags spec.md §3
// lists alongside RunState: paused/stopped track explicit user action,
// autoPaused is the orthogonal flag the disk-full handler sets and clears
// on its own (spec.md §4.G: "autoPaused is a flag orthogonal to Paused").
func (p *PartData) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *PartData) IsStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *PartData) IsAutoPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoPaused
}
