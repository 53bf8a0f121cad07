package bytecode

import (
	"strings"
	"testing"
)

func TestDefaultCatalogLookup(t *testing.T) {
	cat := Default()
	if cat != Default() {
		t.Fatal("Default() should return the same shared catalog")
	}

	for _, d := range cat.Descriptors() {
		got := cat.Lookup(d.Family, d.Form)
		if got == nil {
			t.Errorf("Lookup(%s, %s) = nil for %s", d.Family, d.Form, d.Name)
			continue
		}
		if got.Family != d.Family || got.Form != d.Form {
			t.Errorf("Lookup(%s, %s) = %s", d.Family, d.Form, got.Name)
		}
		byOp, err := cat.Get(d.Opcode)
		if err != nil || byOp != d {
			t.Errorf("Get(0x%02X) = %v, %v; want %s", d.Opcode, byOp, err, d.Name)
		}
	}

	if cat.Len() != len(standardDescriptors) {
		t.Errorf("Len() = %d, want %d", cat.Len(), len(standardDescriptors))
	}
}

func TestNaturalFormIsNarrowest(t *testing.T) {
	cat := Default()
	for f := range familyNames {
		nat, ok := cat.Natural(f)
		if !ok {
			t.Errorf("%s has no natural form", f)
			continue
		}
		for _, v := range cat.Variants(f) {
			if v.Form < nat.Form {
				t.Errorf("%s: variant %s (%s) is narrower than natural %s (%s)",
					f, v.Name, v.Form, nat.Name, nat.Form)
			}
		}
	}
}

func TestNaturalForms(t *testing.T) {
	cat := Default()
	tests := []struct {
		family Family
		want   string
	}{
		{FamilyAddInt, "add-int/2addr"},
		{FamilyMove, "move"},
		{FamilyConst, "const/4"},
		{FamilyConstWide, "const-wide/16"},
		{FamilyGoto, "goto"},
		{FamilyInvokeStatic, "invoke-static"},
		{FamilyRsubInt, "rsub-int/lit8"},
	}

	for _, tt := range tests {
		d, ok := cat.Natural(tt.family)
		if !ok || d.Name != tt.want {
			t.Errorf("Natural(%s) = %v, want %s", tt.family, d, tt.want)
		}
	}
}

func TestEveryVariantReachableFromNatural(t *testing.T) {
	cat := Default()
	for f := range familyNames {
		nat, _ := cat.Natural(f)
		reach := map[Form]bool{}
		for form := nat.Form; form != FormNone; form = form.NextUp() {
			reach[form] = true
		}
		for _, v := range cat.Variants(f) {
			if !reach[v.Form] {
				t.Errorf("%s: %s unreachable from natural form %s", f, v.Name, nat.Form)
			}
		}
	}
}

func TestCatalogMisses(t *testing.T) {
	cat := Default()
	if d := cat.Lookup(FamilyGoto, Form23x); d != nil {
		t.Errorf("Lookup(goto, 23x) = %s, want nil", d.Name)
	}
	if _, err := cat.Get(0xFF); err == nil {
		t.Error("Get(0xFF) should fail")
	}
	if _, ok := cat.ByName("add-int/lit8"); !ok {
		t.Error("ByName(add-int/lit8) not found")
	}
}

func TestNewCatalogValidates(t *testing.T) {
	_, err := NewCatalog([]Descriptor{
		{0x01, FamilyMove, Form12x, true, "move", false},
		{0x01, FamilyMove, Form22x, true, "move/from16", false},
	})
	if err == nil || !strings.Contains(err.Error(), "defined twice") {
		t.Errorf("duplicate opcode: err = %v", err)
	}

	_, err = NewCatalog([]Descriptor{{0x00, FamilyNop, FormNone, false, "nop", false}})
	if err == nil || !strings.Contains(err.Error(), "invalid form") {
		t.Errorf("invalid form: err = %v", err)
	}
}

func TestFirstDescriptorWinsForSharedKey(t *testing.T) {
	cat, err := NewCatalog([]Descriptor{
		{0x40, FamilyMove, Form12x, true, "first", false},
		{0x41, FamilyMove, Form12x, true, "second", false},
	})
	if err != nil {
		t.Fatal(err)
	}
	if d := cat.Lookup(FamilyMove, Form12x); d.Name != "first" {
		t.Errorf("Lookup = %s, want first", d.Name)
	}
	if n := len(cat.Variants(FamilyMove)); n != 2 {
		t.Errorf("Variants = %d, want 2", n)
	}
}

func TestDescriptorsInOpcodeOrder(t *testing.T) {
	ds := Default().Descriptors()
	for i := 1; i < len(ds); i++ {
		if ds[i-1].Opcode >= ds[i].Opcode {
			t.Fatalf("descriptors out of order at %d: 0x%02X then 0x%02X", i, ds[i-1].Opcode, ds[i].Opcode)
		}
	}
}
