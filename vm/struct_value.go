package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/pkg/bitvec"
)

// StructValue is a field-by-field view of a value-type instance (or a
// snapshot of an object's fields). It owns its field vectors; Copy produces
// an independent deep copy.
type StructValue struct {
	Type    *metadata.TypeDef
	factory *ValueFactory
	fields  map[*metadata.FieldDef]*bitvec.Vector
	order   []*metadata.FieldDef
}

// NewStructValue creates a struct with every instance field, inherited
// fields included, either zeroed or fully unknown.
func NewStructValue(factory *ValueFactory, t *metadata.TypeDef, zero bool) *StructValue {
	layout := factory.Layout(t)
	s := &StructValue{
		Type:    t,
		factory: factory,
		fields:  make(map[*metadata.FieldDef]*bitvec.Vector, len(layout.Fields)),
		order:   layout.Fields,
	}
	for _, field := range layout.Fields {
		s.fields[field] = bitvec.New(factory.TypeSize(field.Signature), zero)
	}
	return s
}

// Fields returns the field descriptors in layout order.
func (s *StructValue) Fields() []*metadata.FieldDef {
	return s.order
}

// Field returns the live vector backing field.
func (s *StructValue) Field(field *metadata.FieldDef) (*bitvec.Vector, error) {
	v, ok := s.fields[field]
	if !ok {
		return nil, fmt.Errorf("vm: field %v is not defined in %v", field, s.Type)
	}
	return v, nil
}

// SetField copies value into field.
func (s *StructValue) SetField(field *metadata.FieldDef, value *bitvec.Vector) error {
	v, err := s.Field(field)
	if err != nil {
		return err
	}
	if v.Width() != value.Width() {
		return fmt.Errorf("vm: field %v expects %d bytes, got %d", field, v.Width(), value.Width())
	}
	v.CopyFrom(value)
	return nil
}

// Copy returns a deep copy.
func (s *StructValue) Copy() *StructValue {
	c := &StructValue{
		Type:    s.Type,
		factory: s.factory,
		fields:  make(map[*metadata.FieldDef]*bitvec.Vector, len(s.fields)),
		order:   s.order,
	}
	for field, v := range s.fields {
		c.fields[field] = v.Clone()
	}
	return c
}

// Encode flattens the fields into the type's memory layout.
func (s *StructValue) Encode() *bitvec.Vector {
	layout := s.factory.Layout(s.Type)
	out := bitvec.New(layout.Size, true)
	for _, field := range s.order {
		off, _ := layout.Offset(field)
		out.WriteAt(off, s.fields[field])
	}
	return out
}

// DecodeStruct reads a struct out of its flat memory layout.
func DecodeStruct(factory *ValueFactory, t *metadata.TypeDef, data *bitvec.Vector) (*StructValue, error) {
	layout := factory.Layout(t)
	if data.Width() < layout.Size {
		return nil, fmt.Errorf("vm: %v needs %d bytes, got %d", t, layout.Size, data.Width())
	}
	s := NewStructValue(factory, t, false)
	for _, field := range s.order {
		off, _ := layout.Offset(field)
		v := s.fields[field]
		v.CopyFrom(data.Slice(off, v.Width()))
	}
	return s, nil
}

func (s *StructValue) String() string {
	var sb strings.Builder
	sb.WriteString(s.Type.Name)
	sb.WriteString(" {")
	for i, field := range s.order {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %v", field.Name, s.fields[field])
	}
	sb.WriteString("}")
	return sb.String()
}
