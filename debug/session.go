package debug

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wasmscope/wasmscope/engine"
	"github.com/wasmscope/wasmscope/wasm/binary"
)

// StopReason says why a session became suspended.
type StopReason int

const (
	StopNone StopReason = iota
	// StopEntry: the entry function is set up but has not executed yet.
	StopEntry
	// StopBreakpoint: an enabled breakpoint with a true condition hit.
	StopBreakpoint
	// StopWatchpoint: a watched value changed between boundaries.
	StopWatchpoint
	// StopStep: an active step request reached its target.
	StopStep
	// StopPause: an asynchronous Pause request was honored.
	StopPause
)

func (r StopReason) String() string {
	switch r {
	case StopEntry:
		return "entry"
	case StopBreakpoint:
		return "breakpoint"
	case StopWatchpoint:
		return "watchpoint"
	case StopStep:
		return "step"
	case StopPause:
		return "pause"
	}
	return "none"
}

// Stop describes the most recent suspension.
type Stop struct {
	Reason     StopReason
	Breakpoint *Breakpoint // set for StopBreakpoint
	Watchpoint *Watchpoint // set for StopWatchpoint
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger; the default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// Session is the debugger controller for one instance. One goroutine drives
// execution (Run, Continue, Step); the control plane (Pause, breakpoint and
// watchpoint management, State) and, while stopped, the inspection surface
// are safe to use from other goroutines.
type Session struct {
	mu    sync.Mutex
	state State
	stop  Stop
	cause error // Trap or HostTrap when StateTrapped

	pause atomic.Bool

	inst    *engine.Instance
	machine *engine.Machine
	entry   *engine.FunctionInstance
	results []uint64
	closed  bool

	breakpoints      map[int]*Breakpoint
	bySite           map[site]*Breakpoint
	nextBreakpointID int
	watchpoints      map[int]*Watchpoint
	nextWatchpointID int

	log *zap.Logger
}

// New wraps an already instantiated module in a debugging session.
func New(inst *engine.Instance, opts ...Option) *Session {
	s := &Session{
		state:       StateIdle,
		inst:        inst,
		machine:     engine.NewMachine(inst),
		breakpoints: map[int]*Breakpoint{},
		bySite:      map[site]*Breakpoint{},
		watchpoints: map[int]*Watchpoint{},
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load runs the full pipeline on raw module bytes: decode, validate,
// instantiate (running the start function, if any), and wrap the result in
// a session. Each stage's failure keeps its own error type.
func Load(ctx context.Context, bin []byte, imports *engine.Imports, opts ...Option) (*Session, error) {
	mod, err := binary.DecodeModule(bin)
	if err != nil {
		return nil, err
	}
	if err := mod.Validate(); err != nil {
		return nil, err
	}
	inst, err := engine.NewInstance(ctx, mod, imports)
	if err != nil {
		return nil, err
	}
	return New(inst, opts...), nil
}

// Instance returns the instance under debug.
func (s *Session) Instance() *engine.Instance { return s.inst }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stopped describes the most recent suspension.
func (s *Session) Stopped() Stop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop
}

// Cause returns the Trap or HostTrap that put the session in StateTrapped,
// or nil.
func (s *Session) Cause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Results returns the entry function's results after StateTerminated.
func (s *Session) Results() ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StateTerminated {
		return nil, &StateError{Op: "read results", State: s.state}
	}
	return s.results, nil
}

// Start sets up a call to the named exported function and suspends at its
// first instruction, so breakpoints and watchpoints can take effect from
// instruction zero.
func (s *Session) Start(export string, args ...uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StateIdle {
		return &StateError{Op: "start", State: s.state}
	}
	fn, err := s.inst.ExportedFunction(export)
	if err != nil {
		return err
	}
	if fn.IsHost() {
		return fmt.Errorf("export %q is a host function", export)
	}
	if len(args) != len(fn.Type.Params) {
		return fmt.Errorf("export %q takes %d arguments, got %d", export, len(fn.Type.Params), len(args))
	}
	for _, arg := range args {
		s.machine.PushOperand(arg)
	}
	if trap := s.machine.EnterFunction(fn); trap != nil {
		return trap
	}
	s.entry = fn
	s.state = StateSuspended
	s.stop = Stop{Reason: StopEntry}
	s.log.Debug("session started", zap.String("export", export), zap.Uint32("func", fn.Index))
	return nil
}

// Run starts the named export and runs until the first suspension,
// termination, or trap.
func (s *Session) Run(ctx context.Context, export string, args ...uint64) (State, error) {
	if err := s.Start(export, args...); err != nil {
		return s.State(), err
	}
	return s.Continue(ctx)
}

// Continue resumes a suspended session until the next suspension,
// termination, or trap. The returned state is the state it stopped in; the
// error is non-nil for traps and host traps.
func (s *Session) Continue(ctx context.Context) (State, error) {
	return s.resume(ctx, nil)
}

// Pause asks a running session to suspend at the next instruction boundary.
// It returns immediately; any number of concurrent calls produce at most
// one suspension.
func (s *Session) Pause() {
	s.pause.Store(true)
}

// Close tears down the session. Execution state is discarded, nothing is
// persisted. Closing a running session is an error; pause it first.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return &StateError{Op: "close", State: StateRunning}
	}
	s.closed = true
	s.state = StateTerminated
	s.machine = nil
	s.log.Debug("session closed")
	return nil
}

// resume is the interpretation loop. Suspension conditions are evaluated at
// every instruction boundary in priority order: breakpoint, watchpoint,
// step target, pause flag. The breakpoint at the resume site itself is
// skipped once so Continue makes progress.
func (s *Session) resume(ctx context.Context, step *stepRequest) (State, error) {
	s.mu.Lock()
	if s.closed || s.state != StateSuspended {
		st := s.state
		s.mu.Unlock()
		return st, &StateError{Op: "resume", State: st}
	}
	s.state = StateRunning
	skip := noSite
	if f := s.machine.CurrentFrame(); f != nil {
		skip = site{fn: f.Func.Index, offset: f.PC}
	}
	mode := "continue"
	if step != nil {
		mode = step.granularity.String()
	}
	s.log.Debug("resuming", zap.String("mode", mode))
	s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			s.suspend(Stop{Reason: StopPause})
			return StateSuspended, err
		}

		s.mu.Lock()
		f := s.machine.CurrentFrame()
		st := site{fn: f.Func.Index, offset: f.PC}
		if st != skip {
			if bp := s.hitBreakpointLocked(f, st); bp != nil {
				s.suspendLocked(Stop{Reason: StopBreakpoint, Breakpoint: bp})
				s.mu.Unlock()
				return StateSuspended, nil
			}
		}
		if wp := s.checkWatchpointsLocked(f); wp != nil {
			s.suspendLocked(Stop{Reason: StopWatchpoint, Watchpoint: wp})
			s.mu.Unlock()
			return StateSuspended, nil
		}
		if step != nil && step.satisfied(s.machine.Depth()) {
			s.suspendLocked(Stop{Reason: StopStep})
			s.mu.Unlock()
			return StateSuspended, nil
		}
		if s.pause.Swap(false) {
			s.suspendLocked(Stop{Reason: StopPause})
			s.mu.Unlock()
			return StateSuspended, nil
		}
		s.mu.Unlock()
		skip = noSite

		out := s.machine.Step()
		if step != nil {
			step.started = true
		}
		switch out.Kind {
		case engine.OutcomeContinue, engine.OutcomeBranch:
		case engine.OutcomeCall:
			if out.Target.IsHost() {
				if err := s.machine.CallHost(ctx, out.Target); err != nil {
					s.enterTrapped(err)
					return StateTrapped, err
				}
			} else if trap := s.machine.EnterFunction(out.Target); trap != nil {
				s.enterTrapped(trap)
				return StateTrapped, trap
			}
		case engine.OutcomeReturn:
			s.machine.LeaveFunction()
			if s.machine.Depth() == 0 {
				s.terminate()
				return StateTerminated, nil
			}
		case engine.OutcomeTrap:
			s.enterTrapped(out.Trap)
			return StateTrapped, out.Trap
		}
	}
}

func (s *Session) suspend(stop Stop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspendLocked(stop)
}

func (s *Session) suspendLocked(stop Stop) {
	s.state = StateSuspended
	s.stop = stop
	s.pause.Store(false)
	fields := []zap.Field{zap.Stringer("reason", stop.Reason)}
	if f := s.machine.CurrentFrame(); f != nil {
		fields = append(fields, zap.Uint32("func", f.Func.Index), zap.Uint64("offset", f.PC))
	}
	s.log.Debug("suspended", fields...)
}

// enterTrapped freezes the session at the fault. The call stack is not
// unwound; inspection sees the machine exactly as the trap left it.
func (s *Session) enterTrapped(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateTrapped
	s.cause = cause
	s.pause.Store(false)
	s.log.Debug("trapped", zap.Error(cause))
}

func (s *Session) terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	arity := len(s.entry.Type.Results)
	results := make([]uint64, arity)
	for i := arity - 1; i >= 0; i-- {
		results[i] = s.machine.PopOperand()
	}
	s.results = results
	s.state = StateTerminated
	s.pause.Store(false)
	s.log.Debug("terminated", zap.Int("results", arity))
}
