package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/chazu/dexasm/constpool"
	"github.com/chazu/dexasm/finisher"
	"github.com/chazu/dexasm/listing"
	"github.com/chazu/dexasm/pkg/bytecode"
)

// job is one assembler run: the parsed units and everything produced from
// them.
type job struct {
	catalog *bytecode.Catalog
	opts    finisher.Options

	units  []*finisher.Unit
	clones []*finisher.Unit // unfinished copies kept for -verify
	pool   *constpool.Pool
	lists  []*finisher.InsnList
	chunks []*bytecode.Chunk
}

func newJob(cat *bytecode.Catalog, opts finisher.Options) *job {
	if cat == nil {
		cat = bytecode.Default()
	}
	return &job{catalog: cat, opts: opts}
}

// parseFile adds the units of one listing file. Units of a file without a
// .unit directive are named after the file.
func (j *job) parseFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return j.parse(string(data), unitName(path))
}

func (j *job) parse(src, name string) error {
	units, err := listing.Parse(src, name, j.catalog, j.opts)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	j.units = append(j.units, units...)
	return nil
}

func unitName(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".dxs")
}

// keepClones snapshots the units before they are finished.
func (j *job) keepClones() {
	j.clones = make([]*finisher.Unit, len(j.units))
	for i, u := range j.units {
		j.clones[i] = u.Clone()
	}
}

// constants collects the embedded constants of every unit.
func (j *job) constants() []constpool.Constant {
	var out []constpool.Constant
	for _, u := range j.units {
		out = append(out, u.Constants()...)
	}
	return out
}

// buildPool interns every constant and freezes the pool. With a store the
// stored constants are merged in first and the frozen result is saved
// back.
func (j *job) buildPool(ctx context.Context, store *constpool.Store) error {
	var p *constpool.Pool
	if store != nil {
		var err error
		if p, err = store.Extend(ctx, j.constants()); err != nil {
			return fmt.Errorf("loading constant pool: %w", err)
		}
	} else {
		p = constpool.New()
		if err := p.InternAll(j.constants()); err != nil {
			return err
		}
	}
	p.Freeze()

	if store != nil {
		if err := store.Save(ctx, p); err != nil {
			return fmt.Errorf("saving constant pool: %w", err)
		}
	}
	j.pool = p
	log.Debugf("constant pool: %d entries", p.Len())
	return nil
}

// finish finishes all units and encodes the results.
func (j *job) finish(ctx context.Context, concurrency int) error {
	lists, err := finisher.FinishAll(ctx, j.units, j.pool, concurrency)
	if err != nil {
		return err
	}
	j.lists = lists

	j.chunks = make([]*bytecode.Chunk, len(lists))
	for i, l := range lists {
		c, err := l.Encode()
		if err != nil {
			return fmt.Errorf("%s: %w", l.Name, err)
		}
		j.chunks[i] = c
	}
	return nil
}

// write emits every chunk in the given format. Binary and CBOR output is a
// plain concatenation of self-delimiting chunks.
func (j *job) write(w io.Writer, format string) error {
	for i, c := range j.chunks {
		var data []byte
		var err error
		switch format {
		case "binary":
			data, err = c.Serialize()
		case "cbor":
			data, err = bytecode.MarshalChunk(c)
		case "listing":
			data = []byte(c.DisassembleWithName(j.catalog, j.lists[i].Name))
		default:
			return fmt.Errorf("unknown output format %q", format)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", j.lists[i].Name, err)
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// verify runs every unfinished clone through the abstract evaluator and
// the matching chunk through the VM, and reports the first unit whose
// results, calls or field writes differ.
func (j *job) verify(args []uint32) error {
	if len(j.clones) != len(j.chunks) {
		return fmt.Errorf("verify: %d clones for %d chunks", len(j.clones), len(j.chunks))
	}
	vm := bytecode.NewVM(j.catalog)
	for i, clone := range j.clones {
		name := j.lists[i].Name

		wantEnv := bytecode.NewMapEnv()
		want, err := clone.Eval(j.pool, wantEnv, args, 0)
		if err != nil {
			return fmt.Errorf("%s: eval: %w", name, err)
		}
		gotEnv := bytecode.NewMapEnv()
		got, err := vm.Execute(j.chunks[i], gotEnv, args)
		if err != nil {
			return fmt.Errorf("%s: vm: %w", name, err)
		}

		if diff := cmp.Diff(want, got); diff != "" {
			return fmt.Errorf("%s: result mismatch (-eval +vm):\n%s", name, diff)
		}
		if diff := cmp.Diff(wantEnv.Calls(), gotEnv.Calls()); diff != "" {
			return fmt.Errorf("%s: call mismatch (-eval +vm):\n%s", name, diff)
		}
		if diff := cmp.Diff(wantEnv.FieldDump(), gotEnv.FieldDump()); diff != "" {
			return fmt.Errorf("%s: field mismatch (-eval +vm):\n%s", name, diff)
		}
		log.Infof("%s: verified, result %v", name, got)
	}
	return nil
}

// statsTable renders what finishing did to each unit.
func (j *job) statsTable() string {
	t := table.NewWriter()
	t.SetTitle("Finisher statistics")
	t.AppendHeader(table.Row{"Unit", "Entries", "Code units", "Reserved", "Expanded",
		"Reserve passes", "Fixup passes", "Widened", "Reversed", "Index widened"})
	for _, u := range j.units {
		s := u.Stats()
		t.AppendRow(table.Row{s.Name, s.Entries, s.CodeUnits, s.Reserved, s.Expanded,
			s.ReservePasses, s.FixupPasses, s.Widened, s.Reversed, s.IndexWidened})
	}
	return t.Render()
}

// parseArgs parses a comma-separated list of argument words.
func parseArgs(s string) ([]uint32, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []uint32
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("bad argument %q: %w", f, err)
		}
		if v < -(1<<31) || v > 1<<32-1 {
			return nil, fmt.Errorf("argument %q does not fit in a word", f)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}
