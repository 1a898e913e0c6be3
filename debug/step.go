package debug

import "context"

// Granularity selects how far a step request runs before suspending.
type Granularity int

const (
	// GranularityInstruction executes exactly one instruction, following
	// calls into the callee.
	GranularityInstruction Granularity = iota
	// GranularityInto is the instruction-level step of front ends that
	// distinguish "step" from "next": one instruction, entering callees.
	GranularityInto
	// GranularityOver executes one instruction but runs a called function
	// to completion, suspending back at the caller's depth.
	GranularityOver
	// GranularityOut runs until the current function returns, suspending
	// in the caller.
	GranularityOut
)

func (g Granularity) String() string {
	switch g {
	case GranularityInstruction:
		return "instruction"
	case GranularityInto:
		return "into"
	case GranularityOver:
		return "over"
	case GranularityOut:
		return "out"
	}
	return "unknown"
}

// stepRequest is an active step target, satisfied at the first instruction
// boundary that matches its granularity after at least one instruction ran.
type stepRequest struct {
	granularity Granularity
	baseDepth   int
	started     bool
}

func (r *stepRequest) satisfied(depth int) bool {
	if !r.started {
		return false
	}
	switch r.granularity {
	case GranularityInstruction, GranularityInto:
		return true
	case GranularityOver:
		return depth <= r.baseDepth
	case GranularityOut:
		return depth < r.baseDepth
	}
	return false
}

// Step resumes execution until the given granularity's target is reached,
// unless a breakpoint, watchpoint or pause suspends it first.
func (s *Session) Step(ctx context.Context, g Granularity) (State, error) {
	s.mu.Lock()
	if s.state != StateSuspended {
		st := s.state
		s.mu.Unlock()
		return st, &StateError{Op: "step", State: st}
	}
	req := &stepRequest{granularity: g, baseDepth: s.machine.Depth()}
	s.mu.Unlock()
	return s.resume(ctx, req)
}

// StepInstruction executes one instruction.
func (s *Session) StepInstruction(ctx context.Context) (State, error) {
	return s.Step(ctx, GranularityInstruction)
}

// StepInto executes one instruction, stopping inside a called function.
func (s *Session) StepInto(ctx context.Context) (State, error) {
	return s.Step(ctx, GranularityInto)
}

// StepOver executes one instruction, running any called function to
// completion first.
func (s *Session) StepOver(ctx context.Context) (State, error) {
	return s.Step(ctx, GranularityOver)
}

// StepOut runs until the current function returns.
func (s *Session) StepOut(ctx context.Context) (State, error) {
	return s.Step(ctx, GranularityOut)
}
