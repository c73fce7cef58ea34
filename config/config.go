// Package config loads cilemu.toml / cilemu.yaml machine profiles.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"gopkg.in/yaml.v3"

	"github.com/chazu/cilemu/metadata"
	"github.com/chazu/cilemu/vm"
)

var log = commonlog.GetLogger("cilemu.config")

// FileNames are the profile names FindAndLoad looks for, in order.
var FileNames = []string{"cilemu.toml", "cilemu.yaml", "cilemu.yml"}

// Profile is a machine configuration.
type Profile struct {
	Machine Machine `toml:"machine" yaml:"machine"`
	Logging Logging `toml:"logging" yaml:"logging"`

	// Path is the file the profile was read from (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Machine configures the emulated address space and policies. Zero sizes
// take the vm defaults.
type Machine struct {
	Arch           string `toml:"arch" yaml:"arch"` // "x64" (default) or "x86"
	HeapSize       int    `toml:"heap-size" yaml:"heap-size"`
	StackSize      int    `toml:"stack-size" yaml:"stack-size"`
	StaticsSize    int    `toml:"statics-size" yaml:"statics-size"`
	ObjectMapSize  int    `toml:"object-map-size" yaml:"object-map-size"`
	TypeHandleSize int    `toml:"type-handle-size" yaml:"type-handle-size"`
	Invoker        string `toml:"invoker" yaml:"invoker"`
	Resolver       string `toml:"resolver" yaml:"resolver"`
}

// Logging configures commonlog.
type Logging struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	File      string `toml:"file" yaml:"file"` // stderr when empty
}

// Load parses the profile at path. The format follows the extension.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var p *Profile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		p, err = parseTOML(data)
	case ".yaml", ".yml":
		p, err = parseYAML(data)
	default:
		return nil, fmt.Errorf("config: unsupported profile format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	p.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	log.Debugf("loaded profile %s", p.Path)
	return p, nil
}

func parseTOML(data []byte) (*Profile, error) {
	var p Profile
	md, err := toml.Decode(string(data), &p)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys %v", undecoded)
	}
	return &p, nil
}

func parseYAML(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &p, nil
}

// FindAndLoad walks up from startDir to find a profile file, then loads
// and returns it. Returns nil if no profile is found.
func FindAndLoad(startDir string) (*Profile, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return Load(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Options converts the machine section to vm.Options.
func (p *Profile) Options() (vm.Options, error) {
	var opts vm.Options
	mc := p.Machine

	switch strings.ToLower(mc.Arch) {
	case "", "x64", "amd64":
	case "x86", "386":
		opts.Is32Bit = true
	default:
		return opts, fmt.Errorf("config: unknown architecture %q", mc.Arch)
	}

	sizes := []struct {
		name string
		v    int
		dst  *int
	}{
		{"heap-size", mc.HeapSize, &opts.HeapSize},
		{"stack-size", mc.StackSize, &opts.StackSize},
		{"statics-size", mc.StaticsSize, &opts.StaticsSize},
		{"object-map-size", mc.ObjectMapSize, &opts.ObjectMapSize},
		{"type-handle-size", mc.TypeHandleSize, &opts.TypeHandleSize},
	}
	for _, s := range sizes {
		if s.v < 0 {
			return opts, fmt.Errorf("config: %s must not be negative, got %d", s.name, s.v)
		}
		*s.dst = s.v
	}

	var err error
	if opts.Invoker, err = vm.InvokerPreset(mc.Invoker); err != nil {
		return opts, err
	}
	if opts.UnknownResolver, err = vm.ResolverPreset(mc.Resolver); err != nil {
		return opts, err
	}
	return opts, nil
}

// NewMachine creates a machine for module configured by the profile.
func (p *Profile) NewMachine(module *metadata.Module) (*vm.Machine, error) {
	opts, err := p.Options()
	if err != nil {
		return nil, err
	}
	return vm.New(module, opts)
}

// ConfigureLogging applies the logging section to commonlog.
func (p *Profile) ConfigureLogging() {
	var path *string
	if p.Logging.File != "" {
		path = &p.Logging.File
	}
	commonlog.Configure(p.Logging.Verbosity, path)
}
