package constpool

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func frozenPool(t *testing.T, cs ...Constant) *Pool {
	t.Helper()
	p := New()
	if err := p.InternAll(cs); err != nil {
		t.Fatal(err)
	}
	p.Freeze()
	return p
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, ":memory:")

	p := frozenPool(t,
		String("hello"),
		Method("LMain;", "print", "(Ljava/lang/String;)V"),
		Field("LMain;", "count", "I"),
	)
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Frozen() {
		t.Error("loaded pool should be frozen")
	}
	if diff := cmp.Diff(p.Entries(), got.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pool.db")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, frozenPool(t, String("a"), String("b"))); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2 := openTestStore(t, path)
	p, err := s2.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Index(String("b")); got != 1 {
		t.Errorf("Index(b) after reopen = %d, want 1", got)
	}
}

func TestStoreRejectsUnfrozenPool(t *testing.T) {
	s := openTestStore(t, ":memory:")
	err := s.Save(context.Background(), New())
	if !errors.Is(err, ErrNotFrozen) {
		t.Errorf("err = %v, want ErrNotFrozen", err)
	}
}

func TestStoreLoadEmpty(t *testing.T) {
	s := openTestStore(t, ":memory:")
	p, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !p.Frozen() || p.Len() != 0 {
		t.Errorf("empty load: frozen=%v len=%d", p.Frozen(), p.Len())
	}
}

func TestStoreExtend(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, ":memory:")
	if err := s.Save(ctx, frozenPool(t, String("m"))); err != nil {
		t.Fatal(err)
	}

	p, err := s.Extend(ctx, []Constant{String("a"), String("z")})
	if err != nil {
		t.Fatal(err)
	}
	if p.Frozen() {
		t.Fatal("extended pool should not be frozen yet")
	}
	p.Freeze()
	for i, v := range []string{"a", "m", "z"} {
		if got := p.Index(String(v)); got != i {
			t.Errorf("Index(%s) = %d, want %d", v, got, i)
		}
	}
}

func TestRestoreRejectsDuplicateIndex(t *testing.T) {
	_, err := restore([]Entry{
		{String("a"), 0},
		{String("b"), 0},
	})
	if err == nil {
		t.Error("duplicate index should be rejected")
	}
}
