// dexasm assembles register bytecode listings into finished dex unit code.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tebeka/atexit"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/xyproto/env/v2"

	"github.com/chazu/dexasm/constpool"
	"github.com/chazu/dexasm/manifest"
)

var log = commonlog.GetLogger("dexasm")

func main() {
	verbosity := flag.Int("v", -1, "Log verbosity, up to 5 for debug traces (default: config)")
	showStats := flag.Bool("stats", false, "Print a table of finisher statistics to stderr")
	verify := flag.Bool("verify", false, "Check every finished unit against the abstract evaluator")
	argList := flag.String("args", "", "Comma-separated argument words used by -verify")
	outPath := flag.String("o", "", "Output file (default: config or stdout)")
	format := flag.String("format", "", "Output format: binary, cbor or listing")
	poolPath := flag.String("pool", "", "SQLite constant pool database")
	configDir := flag.String("config", "", "Directory containing dexasm.toml (default: search upward from cwd)")
	jobs := flag.Int("j", -1, "Units finished concurrently (0 is unlimited)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dexasm [options] listing.dxs...\n\n")
		fmt.Fprintf(os.Stderr, "Parses listings, finishes every unit and writes the encoded code.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  DEXASM_VERBOSITY, DEXASM_FORMAT, DEXASM_POOL override dexasm.toml\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  dexasm -format listing sum.dxs          # Show the finished code\n")
		fmt.Fprintf(os.Stderr, "  dexasm -o sum.dxu -stats sum.dxs        # Write binary, report stats\n")
		fmt.Fprintf(os.Stderr, "  dexasm -verify -args 4 -format listing sum.dxs\n")
		fmt.Fprintf(os.Stderr, "  dexasm -pool pool.db a.dxs b.dxs        # Merge constants into a persisted pool\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		atexit.Exit(2)
	}

	m, err := loadManifest(*configDir)
	if err != nil {
		fail(err)
	}
	applyEnv(m)
	applyFlags(m, *verbosity, *format, *poolPath, *outPath, *jobs)

	commonlog.Configure(m.Log.Verbosity, m.LogPath())

	args, err := parseArgs(*argList)
	if err != nil {
		fail(err)
	}

	if err := run(context.Background(), m, flag.Args(), *verify, args, *showStats); err != nil {
		fail(err)
	}
	atexit.Exit(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	atexit.Exit(1)
}

// loadManifest loads dexasm.toml from dir, or searches upward from the
// working directory. Without a file the defaults apply.
func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

// applyEnv lets DEXASM_* variables override the configuration file.
func applyEnv(m *manifest.Manifest) {
	m.Log.Verbosity = env.Int("DEXASM_VERBOSITY", m.Log.Verbosity)
	m.Output.Format = env.Str("DEXASM_FORMAT", m.Output.Format)
	m.Pool.Database = env.Str("DEXASM_POOL", m.Pool.Database)
}

// applyFlags lets explicitly set flags override everything else. Paths
// given on the command line are relative to the working directory.
func applyFlags(m *manifest.Manifest, verbosity int, format, pool, out string, jobs int) {
	if verbosity >= 0 {
		m.Log.Verbosity = verbosity
	}
	if format != "" {
		m.Output.Format = format
	}
	if pool != "" {
		m.Pool.Database = absPath(pool)
	}
	if out != "" {
		m.Output.Path = absPath(out)
	}
	if jobs >= 0 {
		m.Finisher.Concurrency = jobs
	}
}

func absPath(p string) string {
	if p == ":memory:" {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// run assembles the given listing files.
func run(ctx context.Context, m *manifest.Manifest, paths []string, verify bool, args []uint32, showStats bool) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	j := newJob(nil, m.Options())
	for _, path := range paths {
		if err := j.parseFile(path); err != nil {
			return err
		}
	}
	log.Infof("parsed %d units from %d files", len(j.units), len(paths))
	if verify {
		j.keepClones()
	}

	var store *constpool.Store
	if p := m.PoolPath(); p != "" {
		var err error
		if store, err = constpool.Open(p); err != nil {
			return err
		}
		atexit.Register(func() {
			if err := store.Close(); err != nil {
				log.Errorf("closing constant pool: %s", err)
			}
		})
	}
	if err := j.buildPool(ctx, store); err != nil {
		return err
	}

	if err := j.finish(ctx, m.Finisher.Concurrency); err != nil {
		return err
	}

	if showStats {
		fmt.Fprintln(os.Stderr, j.statsTable())
	}
	if verify {
		if err := j.verify(args); err != nil {
			return err
		}
	}

	return writeOutput(j, m.OutputPath(), m.Output.Format)
}

func writeOutput(j *job, path, format string) error {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := j.write(f, format); err != nil {
			f.Close()
			return err
		}
		log.Infof("wrote %d units to %s", len(j.chunks), path)
		return f.Close()
	}
	return j.write(os.Stdout, format)
}
