package finisher

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/dexasm/constpool"
	"github.com/chazu/dexasm/pkg/bytecode"
)

// run evaluates an unfinished clone of u, finishes u, executes the encoded
// result, and checks both runs returned the same words with the same side
// effects.
func run(t *testing.T, u *Unit, r constpool.Resolver, args []uint32, methods map[int]func([]uint32) []uint32) []uint32 {
	t.Helper()

	newEnv := func() *bytecode.MapEnv {
		env := bytecode.NewMapEnv()
		for k, fn := range methods {
			env.Methods[k] = fn
		}
		return env
	}

	before := newEnv()
	want, err := u.Clone().Eval(r, before, args, 0)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}

	l := mustFinish(t, u, r)
	c, err := l.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	after := newEnv()
	got, err := bytecode.NewVM(nil).Execute(c, after, args)
	if err != nil {
		t.Fatalf("Execute: %v\n%s", err, c.Disassemble())
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-eval +vm):\n%s", diff)
	}
	if diff := cmp.Diff(before.Calls(), after.Calls()); diff != "" {
		t.Errorf("calls mismatch (-eval +vm):\n%s", diff)
	}
	if diff := cmp.Diff(before.FieldDump(), after.FieldDump()); diff != "" {
		t.Errorf("fields mismatch (-eval +vm):\n%s", diff)
	}

	// the finished buffer means the same thing too
	finished, err := u.Eval(r, newEnv(), args, 0)
	if err != nil {
		t.Fatalf("Eval after Finish: %v", err)
	}
	if diff := cmp.Diff(want, finished); diff != "" {
		t.Errorf("finished result mismatch (-before +after):\n%s", diff)
	}
	return got
}

func TestPreservesLoopAcrossBranchRanges(t *testing.T) {
	// v0 = sum, v3 = n; the loop body is long enough that the exit test
	// must be reversed and the back edge needs goto/32
	u := newUnit(4)
	head := u.NewAddress()
	exit := u.NewAddress()

	mustAdd(t, u, OpLit(bytecode.FamilyConst, 0, R(0)))
	mustPlace(t, u, head)
	mustAdd(t, u,
		OpBranch(bytecode.FamilyIfEqz, exit, R(3)),
		Op(bytecode.FamilyAddInt, R(0), R(0), R(3)),
		OpLit(bytecode.FamilyAddInt, -1, R(3), R(3)),
	)
	for i := 0; i < 40000; i++ {
		mustAdd(t, u, Op(bytecode.FamilyNop))
	}
	mustAdd(t, u, OpBranch(bytecode.FamilyGoto, head))
	mustPlace(t, u, exit)
	mustAdd(t, u, Op(bytecode.FamilyReturn, R(0)))

	got := run(t, u, nil, []uint32{3}, nil)
	if diff := cmp.Diff([]uint32{6}, got); diff != "" {
		t.Errorf("sum mismatch (-want +got):\n%s", diff)
	}
	// the back edge and the goto inserted for the exit both need 32 bits
	if st := u.Stats(); st.Reversed != 1 || st.Widened != 2 {
		t.Errorf("Reversed = %d Widened = %d, want 1 2", st.Reversed, st.Widened)
	}
}

func TestPreservesExpansion(t *testing.T) {
	sum := constpool.Method("LMath;", "sum", "(II)I")
	total := constpool.Field("LMath;", "total", "I")
	pool := constpool.New()

	u := newUnit(300)
	mustAdd(t, u,
		OpLit(bytecode.FamilyConst, 4, R(0)),
		OpConst(bytecode.FamilyInvokeStatic, sum, R(0), R(299)),
		Op(bytecode.FamilyMoveResult, R(280)),
		OpLit(bytecode.FamilyConstWide, 1<<40, W(2)),
		Op(bytecode.FamilyAddLong, W(4), W(2), W(290)),
		OpConst(bytecode.FamilySput, total, R(280)),
		Op(bytecode.FamilyReturnWide, W(4)),
	)
	if err := pool.InternAll(u.Constants()); err != nil {
		t.Fatalf("InternAll: %v", err)
	}
	pool.Freeze()

	methods := map[int]func([]uint32) []uint32{
		pool.Index(sum): func(args []uint32) []uint32 { return []uint32{args[0] + args[1]} },
	}
	// v290:v291 = 5, v299 = 6
	args := make([]uint32, 10)
	args[0], args[9] = 5, 6

	got := run(t, u, pool, args, methods)
	if diff := cmp.Diff([]uint32{5, 256}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if u.Reserved() != 4 {
		t.Errorf("Reserved = %d, want 4", u.Reserved())
	}
}
