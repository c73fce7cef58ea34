package debug

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Canonical mode makes encodings of equal values byte-identical.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("debug: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalSnapshot serializes a Snapshot to CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("debug: unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// MarshalMemoryDump serializes a MemoryDump to CBOR bytes.
func MarshalMemoryDump(d *MemoryDump) ([]byte, error) {
	return cborEncMode.Marshal(d)
}

// UnmarshalMemoryDump deserializes a MemoryDump from CBOR bytes.
func UnmarshalMemoryDump(data []byte) (*MemoryDump, error) {
	var d MemoryDump
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("debug: unmarshal memory dump: %w", err)
	}
	return &d, nil
}
