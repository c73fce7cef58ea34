package debug

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chazu/cilemu/pkg/bitvec"
)

// ---------------------------------------------------------------------------
// Snapshots of machine state
// ---------------------------------------------------------------------------

// Region is one mapped address range.
type Region struct {
	Name   string `cbor:"1,keyasint"`
	Start  uint64 `cbor:"2,keyasint"`
	Length uint64 `cbor:"3,keyasint"`
}

// FrameState is a frame with its variables and evaluation stack.
type FrameState struct {
	Frame     StackFrame `cbor:"1,keyasint"`
	Variables []Variable `cbor:"2,keyasint,omitempty"`
	Stack     []Variable `cbor:"3,keyasint,omitempty"`
}

// Snapshot is a point-in-time capture of a machine, frames innermost first.
type Snapshot struct {
	ID          string       `cbor:"1,keyasint"`
	Machine     string       `cbor:"2,keyasint"`
	Arch        string       `cbor:"3,keyasint"`
	Regions     []Region     `cbor:"4,keyasint"`
	Frames      []FrameState `cbor:"5,keyasint,omitempty"`
	HeapUsed    int          `cbor:"6,keyasint"`
	HeapObjects int          `cbor:"7,keyasint"`
}

// Snapshot captures the machine's regions and every active frame.
func (d *Debugger) Snapshot() (*Snapshot, error) {
	m := d.machine
	arch := "x64"
	if m.Is32Bit() {
		arch = "x86"
	}
	snap := &Snapshot{
		ID:          uuid.NewString(),
		Machine:     m.ID.String(),
		Arch:        arch,
		HeapUsed:    m.Heap.Used(),
		HeapObjects: len(m.Heap.Objects()),
	}

	names := map[uint64]string{
		m.Layout.Heap:         "heap",
		m.Layout.ObjectMap:    "objects",
		m.Layout.StaticFields: "statics",
		m.Layout.TypeHandles:  "types",
		m.Layout.CallStack:    "stack",
	}
	for _, mapping := range m.Memory.Mappings() {
		r := mapping.Range()
		name, ok := names[r.Start]
		if !ok {
			name = fmt.Sprintf("region@%#x", r.Start)
		}
		snap.Regions = append(snap.Regions, Region{Name: name, Start: r.Start, Length: r.Length()})
	}

	for _, frame := range d.CallStack() {
		vars, err := d.Variables(frame.ID)
		if err != nil {
			return nil, err
		}
		stack, err := d.EvaluationStack(frame.ID)
		if err != nil {
			return nil, err
		}
		snap.Frames = append(snap.Frames, FrameState{Frame: frame, Variables: vars, Stack: stack})
	}
	return snap, nil
}

// MemoryDump is a raw copy of a memory range with its known-mask.
type MemoryDump struct {
	Address uint64 `cbor:"1,keyasint"`
	Bits    []byte `cbor:"2,keyasint"`
	Mask    []byte `cbor:"3,keyasint"`
}

// DumpMemory copies n bytes at addr.
func (d *Debugger) DumpMemory(addr uint64, n int) (*MemoryDump, error) {
	v, err := d.ReadMemory(addr, n)
	if err != nil {
		return nil, err
	}
	return &MemoryDump{
		Address: addr,
		Bits:    append([]byte(nil), v.Bits()...),
		Mask:    append([]byte(nil), v.Mask()...),
	}, nil
}

// Vector rebuilds the partially known value held by the dump.
func (md *MemoryDump) Vector() (*bitvec.Vector, error) {
	if len(md.Bits) != len(md.Mask) {
		return nil, fmt.Errorf("debug: dump has %d value bytes but %d mask bytes", len(md.Bits), len(md.Mask))
	}
	v := bitvec.New(len(md.Bits), false)
	bits, mask := v.Bits(), v.Mask()
	for i := range md.Bits {
		mask[i] = md.Mask[i]
		bits[i] = md.Bits[i] & md.Mask[i]
	}
	return v, nil
}
