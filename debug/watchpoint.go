package debug

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/wasmscope/wasmscope/engine"
)

// WatchKind selects what a watchpoint observes.
type WatchKind int

const (
	// WatchGlobal observes a global by index.
	WatchGlobal WatchKind = iota
	// WatchLocal observes a local of the innermost frame by index. Frames
	// without that local are skipped.
	WatchLocal
	// WatchMemory observes the 4-byte little-endian word at Addr. Out of
	// bounds addresses are skipped until memory grows over them.
	WatchMemory
)

// Watchpoint suspends execution when the observed value differs between two
// consecutive instruction boundaries.
type Watchpoint struct {
	ID      int
	Kind    WatchKind
	Index   uint32 // global or local index
	Addr    uint32 // memory address, WatchMemory only
	Enabled bool

	last    uint64
	hasLast bool
}

func (w *Watchpoint) read(f *engine.Frame, inst *engine.Instance) (uint64, bool) {
	switch w.Kind {
	case WatchGlobal:
		if int(w.Index) >= len(inst.Globals) {
			return 0, false
		}
		return inst.Globals[w.Index].Value, true
	case WatchLocal:
		if int(w.Index) >= len(f.Locals) {
			return 0, false
		}
		return f.Locals[w.Index], true
	case WatchMemory:
		mem := inst.Memory
		if mem == nil || uint64(w.Addr)+4 > uint64(len(mem.Buffer)) {
			return 0, false
		}
		return uint64(binary.LittleEndian.Uint32(mem.Buffer[w.Addr:])), true
	}
	return 0, false
}

func (s *Session) addWatchpoint(w *Watchpoint) *Watchpoint {
	s.nextWatchpointID++
	w.ID = s.nextWatchpointID
	w.Enabled = true
	s.watchpoints[w.ID] = w
	return w
}

// WatchGlobalValue watches the global at the given index.
func (s *Session) WatchGlobalValue(index uint32) (*Watchpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(index) >= len(s.inst.Globals) {
		return nil, fmt.Errorf("no global at index %d", index)
	}
	return s.addWatchpoint(&Watchpoint{Kind: WatchGlobal, Index: index}), nil
}

// WatchLocalValue watches the local at the given index of whichever frame
// is innermost when execution passes an instruction boundary.
func (s *Session) WatchLocalValue(index uint32) (*Watchpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addWatchpoint(&Watchpoint{Kind: WatchLocal, Index: index}), nil
}

// WatchMemoryWord watches the 4-byte word at addr in linear memory.
func (s *Session) WatchMemoryWord(addr uint32) (*Watchpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inst.Memory == nil {
		return nil, fmt.Errorf("module has no memory")
	}
	return s.addWatchpoint(&Watchpoint{Kind: WatchMemory, Addr: addr}), nil
}

// ClearWatchpoint removes the watchpoint with the given id.
func (s *Session) ClearWatchpoint(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watchpoints[id]; !ok {
		return fmt.Errorf("no watchpoint %d", id)
	}
	delete(s.watchpoints, id)
	return nil
}

// Watchpoints lists all watchpoints ordered by id, as copies.
func (s *Session) Watchpoints() []Watchpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]Watchpoint, 0, len(s.watchpoints))
	for _, w := range maps.Values(s.watchpoints) {
		ret = append(ret, *w)
	}
	slices.SortFunc(ret, func(a, b Watchpoint) int { return a.ID - b.ID })
	return ret
}

// checkWatchpointsLocked samples every enabled watchpoint and returns the
// first (lowest id) whose value changed since the previous boundary.
func (s *Session) checkWatchpointsLocked(f *engine.Frame) *Watchpoint {
	if len(s.watchpoints) == 0 {
		return nil
	}
	ids := maps.Keys(s.watchpoints)
	slices.Sort(ids)
	var hit *Watchpoint
	for _, id := range ids {
		w := s.watchpoints[id]
		if !w.Enabled {
			continue
		}
		v, ok := w.read(f, s.inst)
		if !ok {
			continue
		}
		if w.hasLast && v != w.last && hit == nil {
			hit = w
		}
		w.last, w.hasLast = v, true
	}
	return hit
}
