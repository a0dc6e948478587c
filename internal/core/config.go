package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

const SocketName = ".weaver.socket"

// Configuration holds the handful of tunables spec.md leaves as
// implementation choices. None of it is required for weaver to run;
// an absent config file yields GetDefaultConfig().
type Configuration struct {
	// ChunkSize bounds how many bytes a single CommandOutput/CommandErr
	// chunk carries (§4.5).
	ChunkSize int `hcl:"chunk_size,optional"`
	// ReadBudget is the cooperative budget K: the max reads a ChildTask
	// performs per stream per scheduling turn before yielding (§4.5, §4.7).
	ReadBudget int `hcl:"read_budget,optional"`
	// QueueSoftCap is the soft cap on a ClientConn's outbound queue
	// mentioned in §4.3; crossing it only logs a warning, it never drops
	// or blocks (overflow policy is "keep buffering").
	QueueSoftCap int `hcl:"queue_soft_cap,optional"`
}

// config holds the process-wide tunable configuration behind an atomic
// pointer: WatchConfig's reload goroutine swaps it concurrently with
// reads from daemon.outboundQueue.Push and daemon.NewChildTask, on every
// command a ChildTask handles, so a bare package-level pointer would be
// a data race. SetConfig/GetConfig are the only ways in or out.
var config atomic.Pointer[Configuration]

// SetConfig installs cfg as the process-wide tunable configuration.
// Called once at daemon startup and again on every successful reload
// (spec.md §6).
func SetConfig(cfg *Configuration) {
	config.Store(cfg)
}

// GetConfig returns the current process-wide tunable configuration, or
// nil if SetConfig has never been called (e.g. in the client, which has
// no config file of its own).
func GetConfig() *Configuration {
	return config.Load()
}

func GetDefaultConfig() *Configuration {
	return &Configuration{
		ChunkSize:    1024,
		ReadBudget:   10,
		QueueSoftCap: 4096,
	}
}

// GetSocketPath returns $HOME/.weaver.socket (spec.md §6). The path is
// fixed; it is not one of the tunables in Configuration.
func GetSocketPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, SocketName), nil
}

// LoadConfig reads an HCL tunables file, falling back to defaults for any
// field the file omits.
func LoadConfig(path string) (*Configuration, error) {
	cfg := GetDefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = GetDefaultConfig().ChunkSize
	}
	if cfg.ReadBudget <= 0 {
		cfg.ReadBudget = GetDefaultConfig().ReadBudget
	}
	if cfg.QueueSoftCap <= 0 {
		cfg.QueueSoftCap = GetDefaultConfig().QueueSoftCap
	}
	return cfg, nil
}

// DefaultConfigPath returns the optional tunables file path,
// $HOME/.weaver.hcl.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".weaver.hcl"), nil
}
