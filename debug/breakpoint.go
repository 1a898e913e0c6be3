package debug

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/wasmscope/wasmscope/engine"
)

// site is one instruction position: function index plus byte offset into
// its body.
type site struct {
	fn     uint32
	offset uint64
}

var noSite = site{fn: 0xffffffff, offset: 0xffffffffffffffff}

// SubjectKind selects what a breakpoint condition reads.
type SubjectKind int

const (
	SubjectLocal SubjectKind = iota
	SubjectGlobal
)

// CompareOp is the comparison of a breakpoint condition, applied to the raw
// 64-bit values unsigned.
type CompareOp int

const (
	CmpEq CompareOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

// Condition gates a breakpoint on a comparison of one local of the hit
// frame, or one global, against a constant. Out-of-range subjects make the
// condition false rather than failing the run.
type Condition struct {
	Subject SubjectKind
	Index   uint32
	Compare CompareOp
	Value   uint64
}

func (c *Condition) eval(f *engine.Frame, inst *engine.Instance) bool {
	var subject uint64
	switch c.Subject {
	case SubjectLocal:
		if int(c.Index) >= len(f.Locals) {
			return false
		}
		subject = f.Locals[c.Index]
	case SubjectGlobal:
		if int(c.Index) >= len(inst.Globals) {
			return false
		}
		subject = inst.Globals[c.Index].Value
	}
	switch c.Compare {
	case CmpEq:
		return subject == c.Value
	case CmpNe:
		return subject != c.Value
	case CmpLt:
		return subject < c.Value
	case CmpLe:
		return subject <= c.Value
	case CmpGt:
		return subject > c.Value
	case CmpGe:
		return subject >= c.Value
	}
	return false
}

// Breakpoint suspends execution when the instruction at (FuncIndex, Offset)
// is about to execute, the breakpoint is enabled, its condition (if any)
// holds, and its ignore count is spent.
type Breakpoint struct {
	ID        int
	FuncIndex uint32
	Offset    uint64
	Enabled   bool

	// Condition, when non-nil, must evaluate true for the breakpoint to
	// suspend. A false condition does not count as a hit.
	Condition *Condition
	// IgnoreCount is how many further hits to pass over before suspending.
	IgnoreCount uint64
	// HitCount is how many times the site was reached with a true
	// condition, including ignored hits.
	HitCount uint64
}

// SetBreakpoint places a breakpoint at the given function index and byte
// offset into that function's body. The offset must be an instruction
// boundary of a module-defined function; setting a second breakpoint on the
// same site returns the existing one.
func (s *Session) SetBreakpoint(funcIndex uint32, offset uint64) (*Breakpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &StateError{Op: "set breakpoint", State: StateTerminated}
	}
	if err := s.checkSite(funcIndex, offset); err != nil {
		return nil, err
	}
	st := site{fn: funcIndex, offset: offset}
	if bp, ok := s.bySite[st]; ok {
		return bp, nil
	}
	s.nextBreakpointID++
	bp := &Breakpoint{
		ID:        s.nextBreakpointID,
		FuncIndex: funcIndex,
		Offset:    offset,
		Enabled:   true,
	}
	s.breakpoints[bp.ID] = bp
	s.bySite[st] = bp
	s.log.Debug("breakpoint set",
		zap.Int("id", bp.ID), zap.Uint32("func", funcIndex), zap.Uint64("offset", offset))
	return bp, nil
}

// checkSite verifies a (function, offset) pair names an instruction of a
// module-defined function, using the per-offset metadata the validator left
// on the module.
func (s *Session) checkSite(funcIndex uint32, offset uint64) error {
	if int(funcIndex) >= len(s.inst.Functions) {
		return fmt.Errorf("no function at index %d", funcIndex)
	}
	fn := s.inst.Functions[funcIndex]
	if fn.IsHost() {
		return fmt.Errorf("function %d is a host function", funcIndex)
	}
	if _, ok := fn.Meta.StackTypes[offset]; !ok {
		return fmt.Errorf("offset 0x%x is not an instruction boundary of function %d", offset, funcIndex)
	}
	return nil
}

// ClearBreakpoint removes the breakpoint with the given id.
func (s *Session) ClearBreakpoint(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bp, ok := s.breakpoints[id]
	if !ok {
		return fmt.Errorf("no breakpoint %d", id)
	}
	delete(s.breakpoints, id)
	delete(s.bySite, site{fn: bp.FuncIndex, offset: bp.Offset})
	return nil
}

// EnableBreakpoint turns the breakpoint with the given id on or off without
// removing it.
func (s *Session) EnableBreakpoint(id int, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bp, ok := s.breakpoints[id]
	if !ok {
		return fmt.Errorf("no breakpoint %d", id)
	}
	bp.Enabled = enabled
	return nil
}

// SetBreakpointCondition attaches or clears (nil) the condition of the
// breakpoint with the given id.
func (s *Session) SetBreakpointCondition(id int, cond *Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bp, ok := s.breakpoints[id]
	if !ok {
		return fmt.Errorf("no breakpoint %d", id)
	}
	bp.Condition = cond
	return nil
}

// SetBreakpointIgnoreCount makes the breakpoint pass over its next n hits.
func (s *Session) SetBreakpointIgnoreCount(id int, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bp, ok := s.breakpoints[id]
	if !ok {
		return fmt.Errorf("no breakpoint %d", id)
	}
	bp.IgnoreCount = n
	return nil
}

// Breakpoints lists all breakpoints ordered by id. The returned values are
// copies; mutate breakpoints through the Session methods.
func (s *Session) Breakpoints() []Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]Breakpoint, 0, len(s.breakpoints))
	for _, bp := range maps.Values(s.breakpoints) {
		ret = append(ret, *bp)
	}
	slices.SortFunc(ret, func(a, b Breakpoint) int { return a.ID - b.ID })
	return ret
}

// hitBreakpointLocked applies enablement, condition, and ignore count for
// the breakpoint at st, if any, and reports whether to suspend.
func (s *Session) hitBreakpointLocked(f *engine.Frame, st site) *Breakpoint {
	bp, ok := s.bySite[st]
	if !ok || !bp.Enabled {
		return nil
	}
	if bp.Condition != nil && !bp.Condition.eval(f, s.inst) {
		return nil
	}
	bp.HitCount++
	if bp.IgnoreCount > 0 {
		bp.IgnoreCount--
		return nil
	}
	return bp
}
