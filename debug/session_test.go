package debug

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmscope/wasmscope/engine"
	"github.com/wasmscope/wasmscope/wasm"
	"github.com/wasmscope/wasmscope/wasm/binary"
)

var vi32 = wasm.ValueTypeI32

// mainDoubleModule exports main(x) = double(x+1) + 3 so tests can observe a
// call boundary. main is function 1, double is function 0.
//
// main body offsets: 0 local.get, 2 i32.const, 4 i32.add, 5 call,
// 7 i32.const, 9 i32.add, 10 end.
func mainDoubleModule() *wasm.Module {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{vi32}, Results: []wasm.ValueType{vi32}}
	return &wasm.Module{
		TypeSection:     []*wasm.FunctionType{sig},
		FunctionSection: []uint32{0, 0},
		CodeSection: []*wasm.Code{
			{Body: []byte{0x20, 0x00, 0x20, 0x00, 0x6a, 0x0b}},
			{Body: []byte{0x20, 0x00, 0x41, 0x01, 0x6a, 0x10, 0x00, 0x41, 0x03, 0x6a, 0x0b}},
		},
		ExportSection: []*wasm.Export{{Name: "main", Kind: wasm.ExternKindFunc, Index: 1}},
		FunctionNames: map[uint32]string{0: "double", 1: "main"},
	}
}

// sumModule exports sum(n) adding n..1 into local 1 with a loop.
//
// Body offsets: 0 loop, 2 local.get 1, 4 local.get 0, 6 i32.add,
// 7 local.set 1, 9 local.get 0, 11 i32.const, 13 i32.sub, 14 local.tee 0,
// 16 br_if, 18 end, 19 local.get 1, 21 end.
func sumModule() *wasm.Module {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{vi32}, Results: []wasm.ValueType{vi32}}
	return &wasm.Module{
		TypeSection:     []*wasm.FunctionType{sig},
		FunctionSection: []uint32{0},
		CodeSection: []*wasm.Code{{LocalTypes: []wasm.ValueType{vi32}, Body: []byte{
			0x03, 0x40,
			0x20, 0x01,
			0x20, 0x00,
			0x6a,
			0x21, 0x01,
			0x20, 0x00,
			0x41, 0x01,
			0x6b,
			0x22, 0x00,
			0x0d, 0x00,
			0x0b,
			0x20, 0x01,
			0x0b,
		}}},
		ExportSection: []*wasm.Export{{Name: "sum", Kind: wasm.ExternKindFunc, Index: 0}},
	}
}

func newSession(t *testing.T, m *wasm.Module, imports *engine.Imports) *Session {
	t.Helper()
	require.NoError(t, m.Validate())
	inst, err := engine.NewInstance(context.Background(), m, imports)
	require.NoError(t, err)
	return New(inst)
}

func mustSuspend(t *testing.T, s *Session, ctx context.Context, reason StopReason) Stop {
	t.Helper()
	st, err := s.Continue(ctx)
	require.NoError(t, err)
	require.Equal(t, StateSuspended, st)
	stop := s.Stopped()
	require.Equal(t, reason, stop.Reason)
	return stop
}

func TestSession_RunToCompletion(t *testing.T) {
	s := newSession(t, mainDoubleModule(), nil)
	st, err := s.Run(context.Background(), "main", 5)
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, st)

	results, err := s.Results()
	require.NoError(t, err)
	assert.Equal(t, []uint64{15}, results)

	// the inspection surface stays open after termination
	frames, err := s.Backtrace()
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestSession_EntryStop(t *testing.T) {
	s := newSession(t, mainDoubleModule(), nil)
	require.NoError(t, s.Start("main", 5))
	assert.Equal(t, StateSuspended, s.State())
	assert.Equal(t, StopEntry, s.Stopped().Reason)

	frames, err := s.Backtrace()
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, uint32(1), frames[0].FuncIndex)
	assert.Equal(t, "main", frames[0].FuncName)
	assert.Equal(t, uint64(0), frames[0].PC)
	assert.Equal(t, "local.get", frames[0].Instruction)

	locals, err := s.ReadLocals(0)
	require.NoError(t, err)
	assert.Equal(t, []Value{{Type: vi32, Raw: 5}}, locals)

	// a second start is rejected
	err = s.Start("main", 5)
	var se *StateError
	require.ErrorAs(t, err, &se)
}

func TestSession_StartErrors(t *testing.T) {
	s := newSession(t, mainDoubleModule(), nil)
	assert.Error(t, s.Start("nope"))
	assert.Error(t, s.Start("main"), "arity mismatch")
	assert.Error(t, s.Start("main", 1, 2), "arity mismatch")
}

func TestBreakpoint_SuspendAndInspect(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, mainDoubleModule(), nil)

	// at the call instruction in main
	bp, err := s.SetBreakpoint(1, 5)
	require.NoError(t, err)
	require.NoError(t, s.Start("main", 5))

	stop := mustSuspend(t, s, ctx, StopBreakpoint)
	assert.Equal(t, bp.ID, stop.Breakpoint.ID)

	frames, err := s.Backtrace()
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, uint64(5), frames[0].PC)
	assert.Equal(t, "call", frames[0].Instruction)

	// x+1 is the sole operand, typed from the validator's snapshot
	stack, err := s.ReadStack(0)
	require.NoError(t, err)
	assert.Equal(t, []Value{{Type: vi32, Raw: 6}}, stack)

	st, err := s.Continue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, st)
	results, err := s.Results()
	require.NoError(t, err)
	assert.Equal(t, []uint64{15}, results)
}

func TestBreakpoint_InCallee(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, mainDoubleModule(), nil)

	_, err := s.SetBreakpoint(0, 4) // i32.add inside double
	require.NoError(t, err)
	require.NoError(t, s.Start("main", 5))
	mustSuspend(t, s, ctx, StopBreakpoint)

	frames, err := s.Backtrace()
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "double", frames[0].FuncName)
	assert.Equal(t, uint64(4), frames[0].PC)
	assert.Equal(t, "main", frames[1].FuncName)
	// the caller's pc already names the instruction after the call
	assert.Equal(t, uint64(7), frames[1].PC)

	stack, err := s.ReadStack(0)
	require.NoError(t, err)
	assert.Equal(t, []Value{{Type: vi32, Raw: 6}, {Type: vi32, Raw: 6}}, stack)

	// the caller's operand segment is empty at this point
	stack, err = s.ReadStack(1)
	require.NoError(t, err)
	assert.Empty(t, stack)
}

func TestBreakpoint_AtResumeSiteRunsThrough(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, mainDoubleModule(), nil)
	_, err := s.SetBreakpoint(1, 0)
	require.NoError(t, err)
	require.NoError(t, s.Start("main", 5))

	// suspended at (1, 0) by the entry stop; continuing must not re-hit
	// the breakpoint on the same instruction
	st, err := s.Continue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, st)
}

func TestBreakpoint_Condition(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, sumModule(), nil)

	bp, err := s.SetBreakpoint(0, 2) // top of the loop body
	require.NoError(t, err)
	require.NoError(t, s.SetBreakpointCondition(bp.ID, &Condition{
		Subject: SubjectLocal, Index: 0, Compare: CmpEq, Value: 3,
	}))
	require.NoError(t, s.Start("sum", 5))
	mustSuspend(t, s, ctx, StopBreakpoint)

	locals, err := s.ReadLocals(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), locals[0].Raw)

	// false-condition passes are not hits
	assert.Equal(t, uint64(1), s.Breakpoints()[0].HitCount)

	st, err := s.Continue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, st)
}

func TestBreakpoint_IgnoreCount(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, sumModule(), nil)

	bp, err := s.SetBreakpoint(0, 2)
	require.NoError(t, err)
	require.NoError(t, s.SetBreakpointIgnoreCount(bp.ID, 2))
	require.NoError(t, s.Start("sum", 5))
	mustSuspend(t, s, ctx, StopBreakpoint)

	// the first two arrivals (n=5, n=4) were passed over
	locals, err := s.ReadLocals(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), locals[0].Raw)
	assert.Equal(t, uint64(3), s.Breakpoints()[0].HitCount)
}

func TestBreakpoint_DisabledAndCleared(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, mainDoubleModule(), nil)

	bp, err := s.SetBreakpoint(1, 5)
	require.NoError(t, err)
	require.NoError(t, s.EnableBreakpoint(bp.ID, false))
	require.NoError(t, s.Start("main", 5))
	st, err := s.Continue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, st)

	require.NoError(t, s.ClearBreakpoint(bp.ID))
	assert.Error(t, s.ClearBreakpoint(bp.ID))
	assert.Empty(t, s.Breakpoints())
}

func TestBreakpoint_SiteValidation(t *testing.T) {
	s := newSession(t, mainDoubleModule(), nil)

	_, err := s.SetBreakpoint(1, 1) // mid-instruction
	assert.ErrorContains(t, err, "not an instruction boundary")
	_, err = s.SetBreakpoint(9, 0)
	assert.ErrorContains(t, err, "no function at index 9")

	// same site yields the same breakpoint
	a, err := s.SetBreakpoint(1, 5)
	require.NoError(t, err)
	b, err := s.SetBreakpoint(1, 5)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, s.Breakpoints(), 1)
}

func TestStep_Granularities(t *testing.T) {
	ctx := context.Background()

	stepTo := func(t *testing.T, s *Session, n int) {
		t.Helper()
		for i := 0; i < n; i++ {
			st, err := s.StepInstruction(ctx)
			require.NoError(t, err)
			require.Equal(t, StateSuspended, st)
		}
	}
	pcAt := func(t *testing.T, s *Session) (uint32, uint64) {
		t.Helper()
		frames, err := s.Backtrace()
		require.NoError(t, err)
		require.NotEmpty(t, frames)
		return frames[0].FuncIndex, frames[0].PC
	}

	t.Run("instruction", func(t *testing.T) {
		s := newSession(t, mainDoubleModule(), nil)
		require.NoError(t, s.Start("main", 5))
		stepTo(t, s, 1)
		assert.Equal(t, StopStep, s.Stopped().Reason)
		fn, pc := pcAt(t, s)
		assert.Equal(t, uint32(1), fn)
		assert.Equal(t, uint64(2), pc)
	})

	t.Run("over a call", func(t *testing.T) {
		s := newSession(t, mainDoubleModule(), nil)
		require.NoError(t, s.Start("main", 5))
		stepTo(t, s, 3) // at the call
		st, err := s.StepOver(ctx)
		require.NoError(t, err)
		require.Equal(t, StateSuspended, st)
		fn, pc := pcAt(t, s)
		assert.Equal(t, uint32(1), fn)
		assert.Equal(t, uint64(7), pc)
	})

	t.Run("into and out of a call", func(t *testing.T) {
		s := newSession(t, mainDoubleModule(), nil)
		require.NoError(t, s.Start("main", 5))
		stepTo(t, s, 3)
		st, err := s.StepInto(ctx)
		require.NoError(t, err)
		require.Equal(t, StateSuspended, st)
		fn, pc := pcAt(t, s)
		assert.Equal(t, uint32(0), fn)
		assert.Equal(t, uint64(0), pc)

		frames, err := s.Backtrace()
		require.NoError(t, err)
		require.Len(t, frames, 2)

		st, err = s.StepOut(ctx)
		require.NoError(t, err)
		require.Equal(t, StateSuspended, st)
		fn, pc = pcAt(t, s)
		assert.Equal(t, uint32(1), fn)
		assert.Equal(t, uint64(7), pc)
	})

	t.Run("stepping off the last instruction terminates", func(t *testing.T) {
		s := newSession(t, mainDoubleModule(), nil)
		require.NoError(t, s.Start("main", 5))
		for {
			st, err := s.StepInstruction(ctx)
			require.NoError(t, err)
			if st == StateTerminated {
				break
			}
			require.Equal(t, StateSuspended, st)
		}
		results, err := s.Results()
		require.NoError(t, err)
		assert.Equal(t, []uint64{15}, results)
	})
}

// spinModule exports an infinite loop, for pause and concurrency tests.
func spinModule() *wasm.Module {
	return &wasm.Module{
		TypeSection:     []*wasm.FunctionType{{}},
		FunctionSection: []uint32{0},
		CodeSection:     []*wasm.Code{{Body: []byte{0x03, 0x40, 0x0c, 0x00, 0x0b, 0x0b}}},
		ExportSection:   []*wasm.Export{{Name: "spin", Kind: wasm.ExternKindFunc, Index: 0}},
	}
}

func TestPause_SuspendsARunningSession(t *testing.T) {
	s := newSession(t, spinModule(), nil)
	require.NoError(t, s.Start("spin"))

	done := make(chan State, 1)
	go func() {
		st, _ := s.Continue(context.Background())
		done <- st
	}()
	for s.State() != StateRunning {
		runtime.Gosched()
	}
	s.Pause()
	assert.Equal(t, StateSuspended, <-done)
	assert.Equal(t, StopPause, s.Stopped().Reason)

	// the pause flag was consumed: resuming runs again instead of
	// suspending immediately
	go func() {
		st, _ := s.Continue(context.Background())
		done <- st
	}()
	for s.State() != StateRunning {
		runtime.Gosched()
	}
	s.Pause()
	assert.Equal(t, StateSuspended, <-done)
	require.NoError(t, s.Close())
}

func TestInspect_RejectedWhileRunning(t *testing.T) {
	s := newSession(t, spinModule(), nil)
	require.NoError(t, s.Start("spin"))

	done := make(chan struct{})
	go func() {
		s.Continue(context.Background())
		close(done)
	}()
	for s.State() != StateRunning {
		runtime.Gosched()
	}

	var se *StateError
	_, err := s.Backtrace()
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StateRunning, se.State)
	_, err = s.ReadLocals(0)
	require.ErrorAs(t, err, &se)
	_, err = s.Results()
	require.ErrorAs(t, err, &se)

	// closing a running session is also refused
	require.ErrorAs(t, s.Close(), &se)

	s.Pause()
	<-done
	require.NoError(t, s.Close())
}

func TestSession_ContextCancellation(t *testing.T) {
	s := newSession(t, spinModule(), nil)
	require.NoError(t, s.Start("spin"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, err := s.Continue(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateSuspended, st)
}

func TestTrap_FreezesSession(t *testing.T) {
	sig := &wasm.FunctionType{Params: []wasm.ValueType{vi32, vi32}, Results: []wasm.ValueType{vi32}}
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{sig},
		FunctionSection: []uint32{0},
		CodeSection:     []*wasm.Code{{Body: []byte{0x20, 0x00, 0x20, 0x01, 0x6d, 0x0b}}},
		ExportSection:   []*wasm.Export{{Name: "div", Kind: wasm.ExternKindFunc, Index: 0}},
	}
	s := newSession(t, m, nil)

	st, err := s.Run(context.Background(), "div", 7, 0)
	assert.Equal(t, StateTrapped, st)
	var trap *wasm.Trap
	require.ErrorAs(t, err, &trap)
	assert.Equal(t, wasm.TrapIntegerDivideByZero, trap.Reason)
	assert.Same(t, err, s.Cause())

	// frozen at the fault: backtrace and operands intact, nothing unwound
	frames, err := s.Backtrace()
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, uint64(4), frames[0].PC)
	assert.Equal(t, "i32.div_s", frames[0].Instruction)

	stack, err := s.ReadStack(0)
	require.NoError(t, err)
	assert.Equal(t, []Value{{Type: vi32, Raw: 7}, {Type: vi32, Raw: 0}}, stack)

	// a trapped session cannot be resumed
	var se *StateError
	_, err = s.Continue(context.Background())
	require.ErrorAs(t, err, &se)
}

func TestHostTrap_DistinctFromEngineTrap(t *testing.T) {
	sig := &wasm.FunctionType{}
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{sig},
		ImportSection:   []*wasm.Import{{Module: "env", Name: "fail", Kind: wasm.ExternKindFunc, DescFunc: 0}},
		FunctionSection: []uint32{0},
		CodeSection:     []*wasm.Code{{Body: []byte{0x10, 0x00, 0x0b}}},
		ExportSection:   []*wasm.Export{{Name: "main", Kind: wasm.ExternKindFunc, Index: 1}},
	}
	cause := errors.New("exit(1)")
	imports := engine.NewImports()
	imports.RegisterFunc("env", "fail", sig, func(ctx context.Context, inst *engine.Instance, args []uint64) ([]uint64, error) {
		return nil, cause
	})
	s := newSession(t, m, imports)

	st, err := s.Run(context.Background(), "main")
	assert.Equal(t, StateTrapped, st)
	var ht *wasm.HostTrap
	require.ErrorAs(t, err, &ht)
	assert.Equal(t, "env", ht.Module)
	assert.Equal(t, "fail", ht.Name)
	var trap *wasm.Trap
	assert.False(t, errors.As(err, &trap))
}

func TestWatchpoint_Global(t *testing.T) {
	ctx := context.Background()
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{{}},
		FunctionSection: []uint32{0},
		CodeSection:     []*wasm.Code{{Body: []byte{0x41, 0x2a, 0x24, 0x00, 0x0b}}},
		GlobalSection: []*wasm.Global{{
			Type: &wasm.GlobalType{ValType: vi32, Mutable: true},
			Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x00}},
		}},
		ExportSection: []*wasm.Export{{Name: "setg", Kind: wasm.ExternKindFunc, Index: 0}},
	}
	s := newSession(t, m, nil)
	wp, err := s.WatchGlobalValue(0)
	require.NoError(t, err)
	require.NoError(t, s.Start("setg"))

	stop := mustSuspend(t, s, ctx, StopWatchpoint)
	assert.Equal(t, wp.ID, stop.Watchpoint.ID)

	g, err := s.ReadGlobal(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), g.Raw)

	st, err := s.Continue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, st)
}

func TestWatchpoint_Local(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, sumModule(), nil)
	_, err := s.WatchLocalValue(0)
	require.NoError(t, err)
	require.NoError(t, s.Start("sum", 5))

	mustSuspend(t, s, ctx, StopWatchpoint)
	// the boundary right after local.tee decremented n
	frames, err := s.Backtrace()
	require.NoError(t, err)
	assert.Equal(t, uint64(16), frames[0].PC)
	locals, err := s.ReadLocals(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), locals[0].Raw)
}

func TestWatchpoint_Memory(t *testing.T) {
	ctx := context.Background()
	sig := &wasm.FunctionType{Params: []wasm.ValueType{vi32}}
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{sig},
		FunctionSection: []uint32{0},
		CodeSection:     []*wasm.Code{{Body: []byte{0x41, 0x08, 0x20, 0x00, 0x36, 0x02, 0x00, 0x0b}}},
		MemorySection:   []*wasm.MemoryType{{Min: 1}},
		ExportSection:   []*wasm.Export{{Name: "store", Kind: wasm.ExternKindFunc, Index: 0}},
	}
	s := newSession(t, m, nil)
	_, err := s.WatchMemoryWord(8)
	require.NoError(t, err)
	require.NoError(t, s.Start("store", 0xbeef))

	mustSuspend(t, s, ctx, StopWatchpoint)
	data, err := s.ReadMemory(8, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xef, 0xbe, 0x00, 0x00}, data)

	require.NoError(t, s.ClearWatchpoint(1))
	assert.Empty(t, s.Watchpoints())
}

func TestInspect_Writes(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, mainDoubleModule(), nil)
	require.NoError(t, s.Start("main", 5))

	// overwrite the argument at the entry stop
	require.NoError(t, s.WriteLocal(0, 0, 10))
	st, err := s.Continue(ctx)
	require.NoError(t, err)
	require.Equal(t, StateTerminated, st)
	results, err := s.Results()
	require.NoError(t, err)
	assert.Equal(t, []uint64{25}, results)
}

func TestInspect_MemoryBounds(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{{}},
		FunctionSection: []uint32{0},
		CodeSection:     []*wasm.Code{{Body: []byte{0x0b}}},
		MemorySection:   []*wasm.MemoryType{{Min: 1}},
		ExportSection:   []*wasm.Export{{Name: "noop", Kind: wasm.ExternKindFunc, Index: 0}},
	}
	s := newSession(t, m, nil)
	require.NoError(t, s.Start("noop"))

	require.NoError(t, s.WriteMemory(16, []byte{1, 2, 3, 4}))
	data, err := s.ReadMemory(16, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)

	_, err = s.ReadMemory(65536-2, 4)
	assert.ErrorContains(t, err, "out of bounds")
	assert.ErrorContains(t, s.WriteMemory(65536-2, []byte{1, 2, 3, 4}), "out of bounds")
}

func TestInspect_Table(t *testing.T) {
	sig := &wasm.FunctionType{}
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{sig},
		FunctionSection: []uint32{0},
		CodeSection:     []*wasm.Code{{Body: []byte{0x0b}}},
		TableSection:    []*wasm.TableType{{ElemType: wasm.RefTypeFuncref, Limits: &wasm.Limits{Min: 2}}},
		ElementSection: []*wasm.ElementSegment{{
			Offset: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x00}},
			Init:   []uint32{0},
		}},
		ExportSection: []*wasm.Export{{Name: "noop", Kind: wasm.ExternKindFunc, Index: 0}},
	}
	s := newSession(t, m, nil)
	require.NoError(t, s.Start("noop"))

	fn, ok, err := s.ReadTable(0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(0), fn)

	_, ok, err = s.ReadTable(1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.ReadTable(5)
	assert.Error(t, err)
}

func TestLoad_FullPipeline(t *testing.T) {
	bin := binary.EncodeModule(mainDoubleModule())
	s, err := Load(context.Background(), bin, nil)
	require.NoError(t, err)

	st, err := s.Run(context.Background(), "main", 5)
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, st)
	results, err := s.Results()
	require.NoError(t, err)
	assert.Equal(t, []uint64{15}, results)

	t.Run("malformed bytes", func(t *testing.T) {
		_, err := Load(context.Background(), []byte{0x00, 0x61, 0x73}, nil)
		var de *wasm.DecodeError
		require.ErrorAs(t, err, &de)
	})
	t.Run("invalid module", func(t *testing.T) {
		m := mainDoubleModule()
		m.CodeSection[0].Body = []byte{0x6a, 0x0b} // i32.add on an empty stack
		_, err := Load(context.Background(), binary.EncodeModule(m), nil)
		var ve *wasm.ValidationError
		require.ErrorAs(t, err, &ve)
	})
}

func TestClose(t *testing.T) {
	s := newSession(t, mainDoubleModule(), nil)
	require.NoError(t, s.Start("main", 5))
	require.NoError(t, s.Close())

	var se *StateError
	_, err := s.Continue(context.Background())
	require.ErrorAs(t, err, &se)
	_, err = s.SetBreakpoint(1, 0)
	require.ErrorAs(t, err, &se)
	_, err = s.Backtrace()
	require.ErrorAs(t, err, &se)

	// The entry function never returned, so no results exist to read.
	_, err = s.Results()
	require.ErrorAs(t, err, &se)
}
