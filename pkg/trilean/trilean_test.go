package trilean

import "testing"

func TestTrileanTruthTables(t *testing.T) {
	values := []Trilean{False, True, Unknown}

	and := [3][3]Trilean{
		{False, False, False},
		{False, True, Unknown},
		{False, Unknown, Unknown},
	}
	or := [3][3]Trilean{
		{False, True, Unknown},
		{True, True, True},
		{Unknown, True, Unknown},
	}
	xor := [3][3]Trilean{
		{False, True, Unknown},
		{True, False, Unknown},
		{Unknown, Unknown, Unknown},
	}

	for i, a := range values {
		for j, b := range values {
			if got := a.And(b); got != and[i][j] {
				t.Errorf("%v.And(%v) = %v, want %v", a, b, got, and[i][j])
			}
			if got := a.Or(b); got != or[i][j] {
				t.Errorf("%v.Or(%v) = %v, want %v", a, b, got, or[i][j])
			}
			if got := a.Xor(b); got != xor[i][j] {
				t.Errorf("%v.Xor(%v) = %v, want %v", a, b, got, xor[i][j])
			}
		}
	}
}

func TestTrileanNot(t *testing.T) {
	tests := []struct {
		in, want Trilean
	}{
		{True, False},
		{False, True},
		{Unknown, Unknown},
	}
	for _, tc := range tests {
		if got := tc.in.Not(); got != tc.want {
			t.Errorf("%v.Not() = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTrileanToBool(t *testing.T) {
	if v, ok := True.ToBool(); !v || !ok {
		t.Errorf("True.ToBool() = %v, %v", v, ok)
	}
	if v, ok := False.ToBool(); v || !ok {
		t.Errorf("False.ToBool() = %v, %v", v, ok)
	}
	if _, ok := Unknown.ToBool(); ok {
		t.Error("Unknown.ToBool() should not be ok")
	}
	if FromBool(true) != True || FromBool(false) != False {
		t.Error("FromBool mismatch")
	}
	if Unknown.IsKnown() {
		t.Error("Unknown.IsKnown() should be false")
	}
}
