package bytecode

import "testing"

func TestEveryConditionalHasAnOpposite(t *testing.T) {
	conditionals := []Family{
		FamilyIfEq, FamilyIfNe, FamilyIfLt, FamilyIfGe, FamilyIfGt, FamilyIfLe,
		FamilyIfEqz, FamilyIfNez, FamilyIfLtz, FamilyIfGez, FamilyIfGtz, FamilyIfLez,
	}

	for _, f := range conditionals {
		o, ok := f.Opposite()
		if !ok {
			t.Errorf("%s has no opposite", f)
			continue
		}
		if o == f {
			t.Errorf("%s is its own opposite", f)
		}
		back, ok := o.Opposite()
		if !ok || back != f {
			t.Errorf("opposite of %s is %s, whose opposite is %s", f, o, back)
		}
		if !f.IsBranch() {
			t.Errorf("%s.IsBranch() = false", f)
		}
	}

	if len(opposites) != len(conditionals) {
		t.Errorf("opposites table has %d entries, want %d", len(opposites), len(conditionals))
	}
}

func TestOppositeTestsTheNegatedCondition(t *testing.T) {
	values := []int32{-2, -1, 0, 1, 2}
	for f, o := range opposites {
		for _, a := range values {
			for _, b := range values {
				if f >= FamilyIfEqz {
					b = 0
				}
				if compare(f, a, b) == compare(o, a, b) {
					t.Errorf("%s and %s agree on (%d, %d)", f, o, a, b)
				}
			}
		}
	}
}

func TestNonConditionalsHaveNoOpposite(t *testing.T) {
	for _, f := range []Family{FamilyGoto, FamilyNop, FamilyAddInt, FamilyCmpLong} {
		if _, ok := f.Opposite(); ok {
			t.Errorf("%s.Opposite() reported ok", f)
		}
		if f.IsConditional() {
			t.Errorf("%s.IsConditional() = true", f)
		}
	}
	if !FamilyGoto.IsBranch() {
		t.Error("goto should be a branch")
	}
}

func TestFamilyNameRoundTrip(t *testing.T) {
	for f, name := range familyNames {
		got, ok := FamilyByName(name)
		if !ok || got != f {
			t.Errorf("FamilyByName(%q) = %s, %v; want %s", name, got, ok, f)
		}
		if f.String() != name {
			t.Errorf("Family(0x%02X).String() = %q, want %q", uint8(f), f.String(), name)
		}
	}

	if _, ok := FamilyByName("frobnicate"); ok {
		t.Error("FamilyByName accepted an unknown name")
	}
	if got := Family(0xFE).String(); got != "family(0xFE)" {
		t.Errorf("unknown family String() = %q", got)
	}
}

func TestStandardDescriptorsIsACopy(t *testing.T) {
	a := StandardDescriptors()
	a[0].Name = "clobbered"
	if StandardDescriptors()[0].Name != "nop" {
		t.Error("StandardDescriptors exposed the shared table")
	}
}

func TestTwoAddrDescriptorsAre12x(t *testing.T) {
	for _, d := range standardDescriptors {
		if d.TwoAddr && d.Form != Form12x {
			t.Errorf("%s is two-address but uses form %s", d.Name, d.Form)
		}
	}
}
