package pipeline

import (
	"fmt"
	"strings"
)

// Policy decides what the producer does when the slot is still full.
type Policy int

const (
	// PolicyDrop discards the new frame; the producer captures afresh on
	// the next tick.
	PolicyDrop Policy = iota
	// PolicyStall keeps the new frame and offers it again next tick,
	// capturing nothing while it waits.
	PolicyStall
	// PolicyOverwrite replaces the pending frame with the new one.
	PolicyOverwrite
)

func (p Policy) String() string {
	switch p {
	case PolicyDrop:
		return "drop"
	case PolicyStall:
		return "stall"
	case PolicyOverwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a config value onto a Policy. Empty means drop.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return PolicyDrop, nil
	case "stall":
		return PolicyStall, nil
	case "overwrite":
		return PolicyOverwrite, nil
	default:
		return PolicyDrop, fmt.Errorf("pipeline: unknown publish policy %q", s)
	}
}

// Slot is the single-frame mailbox between capture and redraw. Both sides
// run on the pipeline goroutine, so it needs no locking and never blocks.
type Slot struct {
	frame *Frame
}

// Publish stores f if the slot is empty and reports whether it did.
func (s *Slot) Publish(f *Frame) bool {
	if s.frame != nil {
		return false
	}
	s.frame = f
	return true
}

// Replace stores f unconditionally and returns the frame it displaced.
func (s *Slot) Replace(f *Frame) *Frame {
	old := s.frame
	s.frame = f
	return old
}

// Peek returns the pending frame without taking it, or nil.
func (s *Slot) Peek() *Frame {
	return s.frame
}

// Clear empties the slot. The caller owns whatever frame was in it.
func (s *Slot) Clear() {
	s.frame = nil
}

func (s *Slot) Full() bool {
	return s.frame != nil
}
