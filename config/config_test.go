package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/cilemu/metadata"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cilemu.toml")
	writeFile(t, path, `
[machine]
arch = "x86"
heap-size = 4096
stack-size = 2048
invoker = "step-in"
resolver = "conservative"

[logging]
verbosity = 2
file = "emu.log"
`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Machine.Arch != "x86" {
		t.Errorf("arch = %q, want x86", p.Machine.Arch)
	}
	if p.Machine.HeapSize != 4096 || p.Machine.StackSize != 2048 {
		t.Errorf("sizes = %d/%d, want 4096/2048", p.Machine.HeapSize, p.Machine.StackSize)
	}
	if p.Machine.Invoker != "step-in" || p.Machine.Resolver != "conservative" {
		t.Errorf("policies = %q/%q", p.Machine.Invoker, p.Machine.Resolver)
	}
	if p.Logging.Verbosity != 2 || p.Logging.File != "emu.log" {
		t.Errorf("logging = %+v", p.Logging)
	}
	if p.Path != path {
		t.Errorf("path = %q, want %q", p.Path, path)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cilemu.yml")
	writeFile(t, path, `
machine:
  arch: x64
  heap-size: 8192
  invoker: external-return-unknown
logging:
  verbosity: 1
`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Machine.Arch != "x64" || p.Machine.HeapSize != 8192 {
		t.Errorf("machine = %+v", p.Machine)
	}
	if p.Machine.Invoker != "external-return-unknown" {
		t.Errorf("invoker = %q", p.Machine.Invoker)
	}
	if p.Logging.Verbosity != 1 {
		t.Errorf("verbosity = %d, want 1", p.Logging.Verbosity)
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cilemu.yaml")
	writeFile(t, path, "")

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Machine != (Machine{}) {
		t.Errorf("empty profile machine = %+v, want zero", p.Machine)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown toml key", "a.toml", "[machine]\nheap = 1\n"},
		{"unknown yaml key", "b.yaml", "machine:\n  heap: 1\n"},
		{"bad toml", "c.toml", "[machine\n"},
		{"bad yaml", "d.yaml", "machine: [\n"},
		{"wrong type", "e.toml", "[machine]\nheap-size = \"big\"\n"},
		{"unsupported format", "f.json", "{}"},
	}
	for _, tc := range tests {
		path := filepath.Join(dir, tc.file)
		writeFile(t, path, tc.content)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: Load should fail", tc.name)
		}
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("loading a missing file should fail")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "cilemu.yaml"), "machine:\n  arch: x86\n")

	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	p, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if p == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if p.Machine.Arch != "x86" {
		t.Errorf("arch = %q, want x86", p.Machine.Arch)
	}

	// TOML wins over YAML in the same directory.
	writeFile(t, filepath.Join(root, "cilemu.toml"), "[machine]\narch = \"x64\"\n")
	p, err = FindAndLoad(nested)
	if err != nil || p.Machine.Arch != "x64" {
		t.Errorf("FindAndLoad = %+v, %v, want the TOML profile", p, err)
	}
}

func TestFindAndLoadNoProfile(t *testing.T) {
	p, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	// A profile somewhere above the temp dir would be found too, so only
	// check the result is consistent.
	if p != nil && p.Path == "" {
		t.Error("found profile without a path")
	}
}

func TestOptions(t *testing.T) {
	p := &Profile{Machine: Machine{
		Arch:          "x86",
		HeapSize:      4096,
		StackSize:     1024,
		ObjectMapSize: 512,
		Invoker:       "return-default",
		Resolver:      "conservative",
	}}

	opts, err := p.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if !opts.Is32Bit {
		t.Error("x86 should produce a 32-bit machine")
	}
	if opts.HeapSize != 4096 || opts.StackSize != 1024 || opts.ObjectMapSize != 512 || opts.StaticsSize != 0 {
		t.Errorf("sizes = %+v", opts)
	}
	if opts.Invoker == nil || opts.UnknownResolver == nil {
		t.Error("presets should be resolved")
	}

	m, err := p.NewMachine(metadata.NewModule("Cfg"))
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	if !m.Is32Bit() || m.Heap.Size() != 4096 {
		t.Errorf("machine is32=%v heap=%d, want 32-bit with 4096 bytes", m.Is32Bit(), m.Heap.Size())
	}
}

func TestOptionsErrors(t *testing.T) {
	tests := []struct {
		name    string
		machine Machine
	}{
		{"arch", Machine{Arch: "arm64"}},
		{"negative size", Machine{StackSize: -1}},
		{"invoker", Machine{Invoker: "teleport"}},
		{"resolver", Machine{Resolver: "guess"}},
	}
	for _, tc := range tests {
		p := &Profile{Machine: tc.machine}
		if _, err := p.Options(); err == nil {
			t.Errorf("%s: Options should fail", tc.name)
		}
	}
}

func TestConfigureLogging(t *testing.T) {
	p := &Profile{Logging: Logging{Verbosity: 0}}
	p.ConfigureLogging()
	log.Debugf("logging configured")
}
