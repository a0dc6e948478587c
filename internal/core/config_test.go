package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	if cfg.ChunkSize <= 0 {
		t.Errorf("ChunkSize = %d, want > 0", cfg.ChunkSize)
	}
	if cfg.ReadBudget <= 0 {
		t.Errorf("ReadBudget = %d, want > 0", cfg.ReadBudget)
	}
	if cfg.QueueSoftCap <= 0 {
		t.Errorf("QueueSoftCap = %d, want > 0", cfg.QueueSoftCap)
	}
}

func TestGetSocketPath(t *testing.T) {
	t.Setenv("HOME", "/home/alice")
	got, err := GetSocketPath()
	if err != nil {
		t.Fatalf("GetSocketPath() error: %v", err)
	}
	want := filepath.Join("/home/alice", SocketName)
	if got != want {
		t.Errorf("GetSocketPath() = %q, want %q", got, want)
	}
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "nope.hcl"))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if *cfg != *GetDefaultConfig() {
		t.Errorf("LoadConfig() on missing file = %+v, want defaults %+v", cfg, GetDefaultConfig())
	}
}

func TestLoadConfig_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weaver.hcl")
	contents := `chunk_size = 2048`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.ChunkSize != 2048 {
		t.Errorf("ChunkSize = %d, want 2048", cfg.ChunkSize)
	}
	if cfg.ReadBudget != GetDefaultConfig().ReadBudget {
		t.Errorf("ReadBudget = %d, want default %d", cfg.ReadBudget, GetDefaultConfig().ReadBudget)
	}
}

func TestLoadConfig_InvalidFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weaver.hcl")
	if err := os.WriteFile(path, []byte("not = valid = hcl = ["), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() with malformed file: want error, got nil")
	}
}

func TestSetConfigThenGetConfigReturnsWhatWasStored(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(nil)
	if got := GetConfig(); got != nil {
		t.Errorf("GetConfig() before any SetConfig = %+v, want nil", got)
	}

	cfg := &Configuration{ChunkSize: 1, ReadBudget: 2, QueueSoftCap: 3}
	SetConfig(cfg)
	if got := GetConfig(); got != cfg {
		t.Errorf("GetConfig() = %+v, want the pointer stored by SetConfig", got)
	}
}
