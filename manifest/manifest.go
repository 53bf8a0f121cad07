// Package manifest handles dexasm.toml project configuration.
package manifest

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"

	"github.com/chazu/dexasm/finisher"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "dexasm.toml"

//go:embed schema.cue
var schemaSource string

// Manifest represents a dexasm.toml configuration.
type Manifest struct {
	Finisher FinisherConfig `toml:"finisher" json:"finisher"`
	Output   OutputConfig   `toml:"output" json:"output"`
	Pool     PoolConfig     `toml:"pool" json:"pool"`
	Log      LogConfig      `toml:"log" json:"log"`

	// Dir is the directory containing the dexasm.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// FinisherConfig bounds the finisher's fixed-point loops. Zero means the
// finisher's default.
type FinisherConfig struct {
	MaxReservePasses int `toml:"max-reserve-passes" json:"max-reserve-passes"`
	MaxFixupPasses   int `toml:"max-fixup-passes" json:"max-fixup-passes"`

	// Concurrency is how many units finish at once; 0 is unlimited.
	Concurrency int `toml:"concurrency" json:"concurrency"`
}

// OutputConfig selects how finished chunks are written.
type OutputConfig struct {
	Format string `toml:"format" json:"format"` // binary, cbor or listing
	Path   string `toml:"path" json:"path"`
}

// PoolConfig locates the constant pool database.
type PoolConfig struct {
	Database string `toml:"database" json:"database"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// Default returns the configuration used when no dexasm.toml exists.
func Default() *Manifest {
	m := &Manifest{Dir: "."}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Output.Format == "" {
		m.Output.Format = "binary"
	}
}

// Load parses a dexasm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a dexasm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the configuration against the embedded CUE schema.
func (m *Manifest) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Manifest"))
	v := def.Unify(ctx.Encode(m))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}

// Options returns the finisher options this configuration asks for.
func (m *Manifest) Options() finisher.Options {
	return finisher.Options{
		MaxReservePasses: m.Finisher.MaxReservePasses,
		MaxFixupPasses:   m.Finisher.MaxFixupPasses,
	}
}

// resolve makes a configured path absolute relative to the manifest.
func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || p == ":memory:" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// PoolPath returns the constant pool database path, or "" when the pool
// is not persisted.
func (m *Manifest) PoolPath() string {
	return m.resolve(m.Pool.Database)
}

// OutputPath returns the output path, or "" for standard output.
func (m *Manifest) OutputPath() string {
	return m.resolve(m.Output.Path)
}

// LogPath returns the log file path, or nil to log to standard error.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.resolve(m.Log.File)
	return &p
}
