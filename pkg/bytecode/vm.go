package bytecode

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultMaxSteps bounds a single Execute call.
const DefaultMaxSteps = 10_000_000

// VM executes finished code units. It exists to check that the finisher
// preserved a unit's meaning, so it favors clarity over speed.
type VM struct {
	catalog  *Catalog
	MaxSteps int

	// Steps counts the instructions executed by the last Execute call.
	Steps int
}

// NewVM creates a VM that decodes with the given catalog.
func NewVM(cat *Catalog) *VM {
	if cat == nil {
		cat = Default()
	}
	return &VM{catalog: cat, MaxSteps: DefaultMaxSteps}
}

// Execute runs the chunk from address 0 with args placed in the highest
// registers and returns the words the unit returned.
func (vm *VM) Execute(chunk *Chunk, env Environment, args []uint32) ([]uint32, error) {
	m, err := NewMachine(int(chunk.RegisterCount), env, args)
	if err != nil {
		return nil, err
	}

	vm.Steps = 0
	code := chunk.Code
	pc := 0
	for {
		if pc < 0 || pc >= len(code) {
			return nil, fmt.Errorf("%w: pc %04X", ErrFellOffEnd, pc)
		}
		if vm.MaxSteps > 0 && vm.Steps >= vm.MaxSteps {
			return nil, fmt.Errorf("%w: %d", ErrStepLimit, vm.MaxSteps)
		}
		vm.Steps++

		dec, err := Decode(vm.catalog, code, pc)
		if err != nil {
			return nil, err
		}

		out, err := m.Step(dec.Desc.Family, dec.Regs, dec.Literal, dec.Index)
		if err != nil {
			return nil, fmt.Errorf("at %04X (%s): %w", pc, dec.Desc.Name, err)
		}

		switch out {
		case OutcomeReturn:
			return m.Returned, nil
		case OutcomeJump:
			pc += dec.Offset
		default:
			pc += dec.Size
		}
	}
}

// Call is one recorded method invocation.
type Call struct {
	Method int
	Args   []uint32
}

type fieldKey struct {
	obj   uint32
	field int
}

// MapEnv is an in-memory Environment that records every side effect, so
// two runs of the same unit can be compared.
type MapEnv struct {
	mu     sync.Mutex
	fields map[fieldKey]uint32
	calls  []Call

	// Methods supplies results for invoked methods; methods not listed
	// return nothing.
	Methods map[int]func(args []uint32) []uint32
}

// NewMapEnv creates an empty environment.
func NewMapEnv() *MapEnv {
	return &MapEnv{
		fields:  make(map[fieldKey]uint32),
		Methods: make(map[int]func([]uint32) []uint32),
	}
}

func (e *MapEnv) Invoke(method int, args []uint32) ([]uint32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Method: method, Args: append([]uint32(nil), args...)})
	fn := e.Methods[method]
	e.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(args), nil
}

func (e *MapEnv) GetField(obj uint32, field int) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fields[fieldKey{obj, field}]
}

func (e *MapEnv) SetField(obj uint32, field int, v uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fields[fieldKey{obj, field}] = v
}

// Calls returns the invocations recorded so far.
func (e *MapEnv) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// FieldDump returns the written fields as "obj.field=value" strings in a
// stable order.
func (e *MapEnv) FieldDump() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.fields))
	for k, v := range e.fields {
		out = append(out, fmt.Sprintf("%d.%d=%d", k.obj, k.field, v))
	}
	sort.Strings(out)
	return out
}
