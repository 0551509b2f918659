package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

var (
	ErrInvalidConfig    = errors.New("invalid config")
	ErrUnknownScheduler = errors.New("unknown scheduler type")
	ErrUnknownAllocator = errors.New("unknown allocator type")
)

const (
	SchedulerFCFS = "fcfs"
	SchedulerRR   = "rr"

	AllocatorFlat   = "flat"
	AllocatorPaging = "paging"
	AllocatorDemand = "demand"
)

// Config holds every knob the emulator core consumes. Sizes are in bytes,
// delays in milliseconds.
type Config struct {
	NumCPU           int    `json:"num-cpu"`
	Scheduler        string `json:"scheduler"`
	QuantumCycles    int    `json:"quantum-cycles"`
	BatchProcessFreq int    `json:"batch-process-freq"`
	MinIns           int    `json:"min-ins"`
	MaxIns           int    `json:"max-ins"`
	DelayPerExec     int    `json:"delay-per-exec"`

	MaxOverallMem int    `json:"max-overall-mem"`
	MemPerFrame   int    `json:"mem-per-frame"`
	MemPerProc    int    `json:"mem-per-proc"`
	MinMemPerProc int    `json:"min-mem-per-proc"`
	MaxMemPerProc int    `json:"max-mem-per-proc"`
	Allocator     string `json:"allocator"`
	BackingStore  string `json:"backing-store"`

	TickIntervalMs  int    `json:"tick-interval-ms"`
	PreSeed         int    `json:"pre-seed"`
	SymbolTableSize int    `json:"symbol-table-size"`
	LogLevel        string `json:"log-level"`
	ReportPath      string `json:"report-path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		NumCPU:           4,
		Scheduler:        SchedulerRR,
		QuantumCycles:    5,
		BatchProcessFreq: 1,
		MinIns:           1000,
		MaxIns:           2000,
		DelayPerExec:     0,
		MaxOverallMem:    16384,
		MemPerFrame:      256,
		MinMemPerProc:    1024,
		MaxMemPerProc:    4096,
		Allocator:        AllocatorDemand,
		BackingStore:     "csopesy-backing-store.txt",
		TickIntervalMs:   100,
		SymbolTableSize:  32,
		LogLevel:         "info",
		ReportPath:       "csopesy-log.txt",
	}
}

// Load reads a JSON config file on top of the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: opening config file", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads JSON from r; keys missing from the document keep their default.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Scheduler = strings.ToLower(strings.TrimSpace(cfg.Scheduler))
	cfg.Allocator = strings.ToLower(strings.TrimSpace(cfg.Allocator))
	return cfg, nil
}

// Validate rejects configurations the core cannot be built from.
func (c Config) Validate() error {
	switch c.Scheduler {
	case SchedulerFCFS, SchedulerRR:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScheduler, c.Scheduler)
	}
	switch c.Allocator {
	case AllocatorFlat, AllocatorPaging, AllocatorDemand:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAllocator, c.Allocator)
	}

	switch {
	case c.NumCPU < 1:
		return fmt.Errorf("%w: num-cpu must be at least 1", ErrInvalidConfig)
	case c.Scheduler == SchedulerRR && c.QuantumCycles < 1:
		return fmt.Errorf("%w: quantum-cycles must be at least 1", ErrInvalidConfig)
	case c.BatchProcessFreq < 1:
		return fmt.Errorf("%w: batch-process-freq must be at least 1", ErrInvalidConfig)
	case c.MinIns < 1 || c.MaxIns < c.MinIns:
		return fmt.Errorf("%w: need 1 <= min-ins <= max-ins", ErrInvalidConfig)
	case c.DelayPerExec < 0:
		return fmt.Errorf("%w: delay-per-exec cannot be negative", ErrInvalidConfig)
	case c.MemPerFrame < 1 || c.MaxOverallMem < c.MemPerFrame:
		return fmt.Errorf("%w: need 1 <= mem-per-frame <= max-overall-mem", ErrInvalidConfig)
	case c.MemPerProc < 0 || c.MemPerProc > c.MaxOverallMem:
		return fmt.Errorf("%w: mem-per-proc out of range", ErrInvalidConfig)
	case c.MinMemPerProc < 1 || c.MaxMemPerProc < c.MinMemPerProc:
		return fmt.Errorf("%w: need 1 <= min-mem-per-proc <= max-mem-per-proc", ErrInvalidConfig)
	case c.TickIntervalMs < 1:
		return fmt.Errorf("%w: tick-interval-ms must be at least 1", ErrInvalidConfig)
	case c.PreSeed < 0:
		return fmt.Errorf("%w: pre-seed cannot be negative", ErrInvalidConfig)
	case c.SymbolTableSize < 1:
		return fmt.Errorf("%w: symbol-table-size must be at least 1", ErrInvalidConfig)
	case c.Allocator == AllocatorDemand && c.BackingStore == "":
		return fmt.Errorf("%w: demand paging needs a backing-store path", ErrInvalidConfig)
	}
	return nil
}

// NumFrames is the size of the physical frame table.
func (c Config) NumFrames() int {
	return c.MaxOverallMem / c.MemPerFrame
}

// FlatBlockSize is the allocation granularity of the flat allocator.
func (c Config) FlatBlockSize() int {
	if c.MemPerProc > 0 {
		return c.MemPerProc
	}
	return c.MemPerFrame
}

// PagesFor returns how many frames a process of the given size spans.
func (c Config) PagesFor(bytes int) int {
	if bytes <= 0 {
		return 0
	}
	return (bytes + c.MemPerFrame - 1) / c.MemPerFrame
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

func (c Config) ExecDelay() time.Duration {
	return time.Duration(c.DelayPerExec) * time.Millisecond
}
