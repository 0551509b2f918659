package kernel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jar0582/CSCE4600/csopesy/config"
	"github.com/jar0582/CSCE4600/csopesy/memory"
	"github.com/jar0582/CSCE4600/csopesy/process"
	"github.com/jar0582/CSCE4600/csopesy/report"
	"github.com/jar0582/CSCE4600/csopesy/scheduler"
)

var (
	ErrNotInitialized    = errors.New("kernel not initialized")
	ErrInvalidMemorySize = errors.New("invalid memory size")
	ErrNotRunning        = errors.New("scheduler not running")
	ErrProcessExists     = errors.New("process already exists")
	ErrInvalidCount      = errors.New("invalid instruction count")
)

// Kernel owns the configuration and the scheduler/allocator pair built from
// it. The entry point constructs one and keeps it for the program's life.
type Kernel struct {
	cfg  config.Config
	log  log.FieldLogger
	seed int64

	mu      sync.RWMutex
	alloc   memory.Allocator
	sched   *scheduler.Scheduler
	factory *process.Factory
}

func New(cfg config.Config, logger log.FieldLogger) *Kernel {
	return &Kernel{
		cfg:  cfg,
		log:  logger.WithField("component", "kernel"),
		seed: time.Now().UnixNano(),
	}
}

// WithSeed fixes the seed of the process generator. Call before Init.
func (k *Kernel) WithSeed(seed int64) *Kernel {
	k.seed = seed
	return k
}

func (k *Kernel) Config() config.Config { return k.cfg }

// NewAllocator builds the allocator the configuration names.
func NewAllocator(cfg config.Config, logger log.FieldLogger) (memory.Allocator, error) {
	switch cfg.Allocator {
	case config.AllocatorFlat:
		return memory.NewFlatAllocator(cfg.MaxOverallMem, cfg.FlatBlockSize(), logger), nil
	case config.AllocatorPaging:
		return memory.NewPagingAllocator(cfg.MaxOverallMem, cfg.MemPerFrame, logger), nil
	case config.AllocatorDemand:
		return memory.NewDemandPagingAllocator(cfg.MaxOverallMem, cfg.MemPerFrame, cfg.BackingStore, logger), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownAllocator, cfg.Allocator)
}

// Init validates the configuration, builds the allocator and the scheduler,
// and launches the dispatcher and core goroutines. An unknown scheduler or
// allocator type fails here.
func (k *Kernel) Init() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.sched != nil {
		return nil
	}
	if err := k.cfg.Validate(); err != nil {
		return err
	}
	policy, err := scheduler.PolicyFor(k.cfg)
	if err != nil {
		return err
	}
	alloc, err := NewAllocator(k.cfg, k.log)
	if err != nil {
		return err
	}

	k.alloc = alloc
	k.factory = scheduler.FactoryFor(k.cfg, k.seed)
	k.sched = scheduler.New(k.cfg, policy, alloc, k.factory, k.log)
	k.sched.Launch()

	k.log.WithFields(log.Fields{
		"scheduler": k.cfg.Scheduler,
		"allocator": k.cfg.Allocator,
		"cores":     k.cfg.NumCPU,
		"frames":    k.cfg.NumFrames(),
	}).Info("initialized")
	return nil
}

func (k *Kernel) scheduler() (*scheduler.Scheduler, error) {
	s, _, err := k.current()
	return s, err
}

func (k *Kernel) current() (*scheduler.Scheduler, *process.Factory, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.sched == nil {
		return nil, nil, ErrNotInitialized
	}
	return k.sched, k.factory, nil
}

// Scheduler exposes the underlying scheduler, or nil before Init.
func (k *Kernel) Scheduler() *scheduler.Scheduler {
	s, _ := k.scheduler()
	return s
}

func (k *Kernel) Start() error {
	s, err := k.scheduler()
	if err != nil {
		return err
	}
	s.Start()
	return nil
}

func (k *Kernel) Stop() error {
	s, err := k.scheduler()
	if err != nil {
		return err
	}
	s.Stop()
	return nil
}

// Exit cleans the scheduler up and closes the allocator. The kernel can be
// initialized again afterwards.
func (k *Kernel) Exit() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.sched == nil {
		return nil
	}
	k.sched.CleanUp()
	err := k.alloc.Close()
	k.sched, k.alloc, k.factory = nil, nil, nil
	k.log.Info("exited")
	return err
}

func (k *Kernel) ScreenList() (string, error) {
	s, err := k.scheduler()
	if err != nil {
		return "", err
	}
	return s.DisplayScreenList(), nil
}

func (k *Kernel) VisualizeMemory() (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.alloc == nil {
		return "", ErrNotInitialized
	}
	return k.alloc.VisualizeMemory(), nil
}

// VMStat renders memory totals, CPU tick counts and paging counters.
func (k *Kernel) VMStat() (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.sched == nil {
		return "", ErrNotInitialized
	}

	mem := k.alloc.Stats()
	active, idle := k.sched.CPUTicks()
	var b strings.Builder
	report.Title(&b, "vmstat")
	report.KeyValues(&b, [][2]string{
		{"Total memory", fmt.Sprintf("%d bytes", mem.TotalMemory)},
		{"Used memory", fmt.Sprintf("%d bytes", mem.UsedMemory)},
		{"Free memory", fmt.Sprintf("%d bytes", mem.FreeMemory)},
		{"Idle CPU ticks", fmt.Sprint(idle)},
		{"Active CPU ticks", fmt.Sprint(active)},
		{"Total CPU ticks", fmt.Sprint(active + idle)},
		{"Page faults", fmt.Sprint(mem.PageFaults)},
		{"Pages paged in", fmt.Sprint(mem.PagedIn)},
		{"Pages paged out", fmt.Sprint(mem.PagedOut)},
	})
	return b.String(), nil
}

// ReportUtil writes the utilization report to the configured report path
// and returns that path.
func (k *Kernel) ReportUtil() (string, error) {
	s, err := k.scheduler()
	if err != nil {
		return "", err
	}
	f, err := os.Create(k.cfg.ReportPath)
	if err != nil {
		return "", fmt.Errorf("%w: creating report file", err)
	}
	s.WriteReport(f)
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: closing report file", err)
	}
	k.log.WithField("path", k.cfg.ReportPath).Info("report written")
	return k.cfg.ReportPath, nil
}

// IsValidMemorySize accepts positive sizes within both the overall and the
// per-process ceilings.
func (k *Kernel) IsValidMemorySize(mem int) bool {
	return mem > 0 && mem <= k.cfg.MaxOverallMem && mem <= k.cfg.MaxMemPerProc
}

// FetchProcessByName returns the live process called name, or synthesizes
// and submits one. A positive mem fixes its memory requirement; otherwise
// one is drawn from the configured band.
func (k *Kernel) FetchProcessByName(name string, mem int) (*process.Process, error) {
	s, factory, err := k.current()
	if err != nil {
		return nil, err
	}
	if p, ok := s.Lookup(name); ok {
		return p, nil
	}
	if mem > 0 && !k.IsValidMemorySize(mem) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMemorySize, mem)
	}

	p, _ := s.LookupOrAdd(name, func() *process.Process {
		return factory.New(s.NextPID(), name, mem)
	})
	if p == nil {
		return nil, ErrNotRunning
	}
	return p, nil
}

// SubmitProcess schedules a user-declared process with the given
// instructions.
func (k *Kernel) SubmitProcess(name string, mem int, cmds []process.Command) (*process.Process, error) {
	s, factory, err := k.current()
	if err != nil {
		return nil, err
	}
	if !k.IsValidMemorySize(mem) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMemorySize, mem)
	}

	p, loaded := s.LookupOrAdd(name, func() *process.Process {
		return factory.NewWithInstructions(s.NextPID(), name, mem, cmds)
	})
	switch {
	case loaded:
		return nil, fmt.Errorf("%w: %s", ErrProcessExists, name)
	case p == nil:
		return nil, ErrNotRunning
	}
	return p, nil
}

// SubmitGenerated schedules a named process with count random
// instructions. A non-positive mem draws one from the configured band.
func (k *Kernel) SubmitGenerated(name string, mem, count int) (*process.Process, error) {
	_, factory, err := k.current()
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	if mem <= 0 {
		mem = factory.RandomMemory()
	}
	return k.SubmitProcess(name, mem, factory.Instructions(name, count, mem))
}

// WaitIdle blocks until no process is queued or running.
func (k *Kernel) WaitIdle(ctx context.Context) error {
	s, err := k.scheduler()
	if err != nil {
		return err
	}
	return s.WaitIdle(ctx)
}
