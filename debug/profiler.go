package debug

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chazu/cilemu/cil"
	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/vm"
)

// ---------------------------------------------------------------------------
// Profiler: instruction counts per method and per opcode
// ---------------------------------------------------------------------------

// MethodProfile holds the counters of one method.
type MethodProfile struct {
	Instructions uint64 // instructions executed in the method's own frames
	IsHot        bool   // set once Instructions reaches the hot threshold
}

// Profiler counts executed instructions. Counters may be read from another
// goroutine while the machine runs.
type Profiler struct {
	methods sync.Map // *metadata.MethodDef -> *MethodProfile
	opcodes sync.Map // cil.Code -> *uint64

	// HotThreshold is the instruction count at which a method becomes hot.
	HotThreshold uint64
	// OnHot is called once per method when it becomes hot.
	OnHot func(method *metadata.MethodDef, profile *MethodProfile)
}

// NewProfiler creates a profiler with a hot threshold of 1000 instructions.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: 1000}
}

// Attach wraps every handler registered on m's dispatcher so that each
// dispatched instruction is counted. Handlers registered after Attach are
// not profiled.
func (p *Profiler) Attach(m *vm.Machine) {
	for _, op := range cil.OpCodes() {
		if h, ok := m.Dispatcher.Lookup(op.Code); ok {
			m.Dispatcher.Register(op.Code, profiledHandler{inner: h, profiler: p})
		}
	}
}

type profiledHandler struct {
	inner    vm.OpCodeHandler
	profiler *Profiler
}

func (h profiledHandler) Dispatch(ctx *vm.ExecutionContext, instr *cil.Instruction) (vm.DispatchResult, error) {
	h.profiler.Record(ctx.CurrentFrame().Method, instr.OpCode.Code)
	return h.inner.Dispatch(ctx, instr)
}

// Record counts one instruction of method. It reports whether the
// instruction made the method hot.
func (p *Profiler) Record(method *metadata.MethodDef, code cil.Code) bool {
	counter, _ := p.opcodes.LoadOrStore(code, new(uint64))
	atomic.AddUint64(counter.(*uint64), 1)

	if method == nil {
		return false
	}
	val, _ := p.methods.LoadOrStore(method, &MethodProfile{})
	profile := val.(*MethodProfile)
	count := atomic.AddUint64(&profile.Instructions, 1)

	if !profile.IsHot && p.HotThreshold > 0 && count >= p.HotThreshold {
		profile.IsHot = true
		log.Infof("%s is hot after %d instructions", method.FullName(), count)
		if p.OnHot != nil {
			p.OnHot(method, profile)
		}
		return true
	}
	return false
}

// MethodProfile returns the profile for a method, or nil if it never ran.
func (p *Profiler) MethodProfile(method *metadata.MethodDef) *MethodProfile {
	if val, ok := p.methods.Load(method); ok {
		return val.(*MethodProfile)
	}
	return nil
}

// OpCodeCount returns how many times code was dispatched.
func (p *Profiler) OpCodeCount(code cil.Code) uint64 {
	if val, ok := p.opcodes.Load(code); ok {
		return atomic.LoadUint64(val.(*uint64))
	}
	return 0
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Methods      int    // methods that executed at least one instruction
	HotMethods   int
	Instructions uint64 // total instructions dispatched
	OpCodes      int    // distinct opcodes dispatched
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	p.methods.Range(func(_, value any) bool {
		stats.Methods++
		if value.(*MethodProfile).IsHot {
			stats.HotMethods++
		}
		return true
	})
	p.opcodes.Range(func(_, value any) bool {
		stats.OpCodes++
		stats.Instructions += atomic.LoadUint64(value.(*uint64))
		return true
	})
	return stats
}

// TopMethods returns the n methods that executed the most instructions.
func (p *Profiler) TopMethods(n int) []*metadata.MethodDef {
	type methodCount struct {
		method *metadata.MethodDef
		count  uint64
	}

	var all []methodCount
	p.methods.Range(func(key, value any) bool {
		all = append(all, methodCount{key.(*metadata.MethodDef), atomic.LoadUint64(&value.(*MethodProfile).Instructions)})
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].method.FullName() < all[j].method.FullName()
	})

	result := make([]*metadata.MethodDef, 0, n)
	for i := 0; i < n && i < len(all); i++ {
		result = append(result, all[i].method)
	}
	return result
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	p.methods = sync.Map{}
	p.opcodes = sync.Map{}
}
