package debug

import (
	"context"
	"testing"

	"github.com/chazu/cilemu/cil"
	"github.com/chazu/cilemu/metadata"
)

func TestProfilerCountsInstructions(t *testing.T) {
	p := newProgram()
	d := p.debugger(t)
	m := d.Machine()

	prof := NewProfiler()
	prof.HotThreshold = 5
	var hot []*metadata.MethodDef
	prof.OnHot = func(method *metadata.MethodDef, _ *MethodProfile) {
		hot = append(hot, method)
	}
	prof.Attach(m)

	v, err := m.Call(context.Background(), p.main, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v.Int32() != 42 {
		t.Errorf("Main() = %d, want 42", v.Int32())
	}

	if got := prof.MethodProfile(p.main).Instructions; got != 5 {
		t.Errorf("Main instructions = %d, want 5", got)
	}
	if got := prof.MethodProfile(p.leaf).Instructions; got != 4 {
		t.Errorf("Leaf instructions = %d, want 4", got)
	}
	if prof.OpCodeCount(cil.Ret) != 2 || prof.OpCodeCount(cil.Add) != 1 || prof.OpCodeCount(cil.Nop) != 0 {
		t.Errorf("opcode counts: ret=%d add=%d nop=%d", prof.OpCodeCount(cil.Ret), prof.OpCodeCount(cil.Add), prof.OpCodeCount(cil.Nop))
	}
	if len(hot) != 1 || hot[0] != p.main {
		t.Errorf("hot methods = %v, want [Main]", hot)
	}

	stats := prof.Stats()
	want := ProfilerStats{Methods: 2, HotMethods: 1, Instructions: 9, OpCodes: 8}
	if stats != want {
		t.Errorf("Stats = %+v, want %+v", stats, want)
	}

	top := prof.TopMethods(5)
	if len(top) != 2 || top[0] != p.main || top[1] != p.leaf {
		t.Errorf("TopMethods = %v, want [Main Leaf]", top)
	}

	prof.Reset()
	if stats := prof.Stats(); stats != (ProfilerStats{}) {
		t.Errorf("after Reset: %+v", stats)
	}
	if prof.MethodProfile(p.main) != nil {
		t.Error("Reset should drop method profiles")
	}
}
