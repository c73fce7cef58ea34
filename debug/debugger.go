// Package debug drives a vm.Machine interactively: breakpoints on IL
// offsets, stepping, frame and memory inspection, and CBOR snapshots of
// machine state for external tools.
package debug

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
	"github.com/chazu/cilemu/vm"
)

var log = commonlog.GetLogger("cilemu.debug")

// ---------------------------------------------------------------------------
// Debugger: breakpoints and stepping over a Machine
// ---------------------------------------------------------------------------

// ErrNoBreakpoint is returned when editing a breakpoint that was never set.
var ErrNoBreakpoint = errors.New("debug: no breakpoint at location")

// Location is an instruction within a method.
type Location struct {
	Method *metadata.MethodDef
	Offset int
}

func (l Location) String() string {
	if l.Method == nil {
		return "<root>"
	}
	return fmt.Sprintf("%s+IL_%04X", l.Method.FullName(), l.Offset)
}

// Breakpoint is a breakpoint as reported to clients.
type Breakpoint struct {
	Location Location
	Active   bool
}

// StopReason says why Continue returned.
type StopReason int

const (
	// StopCompleted means every frame above the root returned.
	StopCompleted StopReason = iota
	// StopBreakpoint means an active breakpoint was reached.
	StopBreakpoint
)

func (r StopReason) String() string {
	switch r {
	case StopCompleted:
		return "completed"
	case StopBreakpoint:
		return "breakpoint"
	}
	return fmt.Sprintf("StopReason(%d)", int(r))
}

// Stop describes where execution paused.
type Stop struct {
	Reason   StopReason
	Location Location
}

// Debugger controls one machine. Execution methods must not run
// concurrently with each other; the breakpoint table may be edited from any
// goroutine.
type Debugger struct {
	machine *vm.Machine

	mu          sync.Mutex
	breakpoints map[Location]bool
}

// New attaches a debugger to m.
func New(m *vm.Machine) *Debugger {
	return &Debugger{
		machine:     m,
		breakpoints: make(map[Location]bool),
	}
}

// Machine returns the machine under control.
func (d *Debugger) Machine() *vm.Machine {
	return d.machine
}

// ---------------------------------------------------------------------------
// Breakpoint management
// ---------------------------------------------------------------------------

// SetBreakpoint sets an active breakpoint on the instruction at offset.
// The offset must start an instruction of method's body.
func (d *Debugger) SetBreakpoint(method *metadata.MethodDef, offset int) error {
	if method == nil || method.Body == nil || method.Body.Instructions == nil {
		return fmt.Errorf("debug: %v has no method body", method)
	}
	if method.Body.Instructions.GetByOffset(offset) == nil {
		return fmt.Errorf("debug: no instruction at IL_%04X in %s", offset, method.FullName())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints[Location{method, offset}] = true
	log.Debugf("breakpoint set at %s", Location{method, offset})
	return nil
}

// RemoveBreakpoint deletes a breakpoint.
func (d *Debugger) RemoveBreakpoint(method *metadata.MethodDef, offset int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	loc := Location{method, offset}
	if _, exists := d.breakpoints[loc]; !exists {
		return fmt.Errorf("%w %s", ErrNoBreakpoint, loc)
	}
	delete(d.breakpoints, loc)
	return nil
}

// EnableBreakpoint re-enables a disabled breakpoint.
func (d *Debugger) EnableBreakpoint(method *metadata.MethodDef, offset int) error {
	return d.setActive(Location{method, offset}, true)
}

// DisableBreakpoint keeps a breakpoint but stops it from firing.
func (d *Debugger) DisableBreakpoint(method *metadata.MethodDef, offset int) error {
	return d.setActive(Location{method, offset}, false)
}

func (d *Debugger) setActive(loc Location, active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.breakpoints[loc]; !exists {
		return fmt.Errorf("%w %s", ErrNoBreakpoint, loc)
	}
	d.breakpoints[loc] = active
	return nil
}

// HasBreakpoint reports whether an active breakpoint is set at the location.
func (d *Debugger) HasBreakpoint(method *metadata.MethodDef, offset int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.breakpoints[Location{method, offset}]
}

// ListBreakpoints returns every breakpoint ordered by method name and
// offset.
func (d *Debugger) ListBreakpoints() []Breakpoint {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]Breakpoint, 0, len(d.breakpoints))
	for loc, active := range d.breakpoints {
		result = append(result, Breakpoint{Location: loc, Active: active})
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Location, result[j].Location
		if an, bn := a.Method.FullName(), b.Method.FullName(); an != bn {
			return an < bn
		}
		return a.Offset < b.Offset
	})
	return result
}

// ClearAllBreakpoints removes every breakpoint.
func (d *Debugger) ClearAllBreakpoints() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints = make(map[Location]bool)
}

// ---------------------------------------------------------------------------
// Execution control
// ---------------------------------------------------------------------------

// Start pushes a frame for method without executing it, so execution can
// be driven by the stepping methods.
func (d *Debugger) Start(method *metadata.MethodDef, args []*bitvec.Vector) error {
	if _, err := d.machine.Enter(method, args); err != nil {
		return err
	}
	log.Infof("started %s", method.FullName())
	return nil
}

// Current returns the location about to execute.
func (d *Debugger) Current() Location {
	frame := d.machine.CallStack.Peek()
	return Location{Method: frame.Method, Offset: frame.ProgramCounter}
}

// Continue executes at least one instruction, then runs until an active
// breakpoint is about to execute or the call stack drains.
func (d *Debugger) Continue(ctx context.Context) (Stop, error) {
	reason := StopCompleted
	err := d.machine.StepWhile(ctx, func(ec *vm.ExecutionContext) bool {
		frame := ec.CurrentFrame()
		if frame.IsRoot() {
			return false
		}
		if d.HasBreakpoint(frame.Method, frame.ProgramCounter) {
			reason = StopBreakpoint
			return false
		}
		return true
	})
	stop := Stop{Reason: reason, Location: d.Current()}
	if err != nil {
		return stop, err
	}
	log.Debugf("stopped (%s) at %s", reason, stop.Location)
	return stop, nil
}

// StepInto executes one instruction, entering calls that push frames.
func (d *Debugger) StepInto(ctx context.Context) (Location, error) {
	err := d.machine.Step(ctx)
	return d.Current(), err
}

// StepOver executes one instruction, running any call it makes to
// completion.
func (d *Debugger) StepOver(ctx context.Context) (Location, error) {
	err := d.machine.StepOver(ctx)
	return d.Current(), err
}

// StepOut runs until the current frame returns.
func (d *Debugger) StepOut(ctx context.Context) (Location, error) {
	err := d.machine.StepOut(ctx)
	return d.Current(), err
}
