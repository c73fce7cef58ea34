// Package trilean implements three-valued logic for decisions that may
// depend on unknown bits.
package trilean

// Trilean is a truth value that is either true, false or unknown.
type Trilean uint8

const (
	False Trilean = iota
	True
	Unknown
)

// FromBool converts a concrete boolean into a known trilean.
func FromBool(b bool) Trilean {
	if b {
		return True
	}
	return False
}

// IsKnown returns true if the value is either True or False.
func (t Trilean) IsKnown() bool {
	return t == True || t == False
}

// ToBool returns the concrete boolean and whether it is known.
func (t Trilean) ToBool() (value bool, ok bool) {
	switch t {
	case True:
		return true, true
	case False:
		return false, true
	default:
		return false, false
	}
}

// Not inverts a known value; Unknown stays Unknown.
func (t Trilean) Not() Trilean {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

// And is Kleene conjunction: a known False dominates.
func (t Trilean) And(o Trilean) Trilean {
	if t == False || o == False {
		return False
	}
	if t == True && o == True {
		return True
	}
	return Unknown
}

// Or is Kleene disjunction: a known True dominates.
func (t Trilean) Or(o Trilean) Trilean {
	if t == True || o == True {
		return True
	}
	if t == False && o == False {
		return False
	}
	return Unknown
}

// Xor is known only when both operands are known.
func (t Trilean) Xor(o Trilean) Trilean {
	if !t.IsKnown() || !o.IsKnown() {
		return Unknown
	}
	return FromBool(t != o)
}

func (t Trilean) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}
