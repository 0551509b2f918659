package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jar0582/CSCE4600/csopesy/config"
	"github.com/jar0582/CSCE4600/csopesy/memory"
	"github.com/jar0582/CSCE4600/csopesy/process"
	"github.com/jar0582/CSCE4600/csopesy/report"
)

type core struct {
	id      int
	mu      sync.Mutex
	cond    *sync.Cond
	current *process.Process
	busy    atomic.Bool
}

// Scheduler moves processes from the ready queue onto a fixed pool of
// cores. One goroutine dispatches, one goroutine per core executes, and
// while started a clock and a batch generator run in the background.
//
// Lock order is queueMu, then a core's mu, then the allocator's own lock.
// A core never holds its mu while executing instructions.
type Scheduler struct {
	cfg     config.Config
	policy  Policy
	alloc   memory.Allocator
	factory *process.Factory
	log     log.FieldLogger

	queueMu   sync.Mutex
	queueCond *sync.Cond
	queue     []*process.Process
	// epoch changes whenever a dispatch pass could turn out differently:
	// a process arrived, a core freed up, or the scheduler stopped.
	epoch    uint64
	lastCore int

	cores []*core

	running   atomic.Bool
	shutdown  atomic.Bool
	completed atomic.Int64
	nextPID   atomic.Int64

	launchOnce   sync.Once
	launchedAt   time.Time
	workers      sync.WaitGroup
	done         chan struct{}
	shutdownOnce sync.Once

	startMu    sync.Mutex
	stopClock  chan struct{}
	background sync.WaitGroup
	clock      *clock

	finishedMu sync.Mutex
	finished   []*process.Process
	slices     []report.TimeSlice

	tableMu sync.RWMutex
	table   map[int]*process.Process
	byName  map[string]int
}

// New wires a scheduler to its allocator. Unlike a scheduler that only
// admits work once started, it accepts processes right away so callers can
// queue work before Start; Stop closes admission. Launch starts the
// dispatcher and the cores.
func New(cfg config.Config, policy Policy, alloc memory.Allocator, factory *process.Factory, logger log.FieldLogger) *Scheduler {
	s := &Scheduler{
		cfg:        cfg,
		policy:     policy,
		alloc:      alloc,
		factory:    factory,
		log:        logger.WithField("component", "scheduler"),
		cores:      make([]*core, cfg.NumCPU),
		done:       make(chan struct{}),
		clock:      newClock(),
		table:      make(map[int]*process.Process),
		byName:     make(map[string]int),
		launchedAt: time.Now(),
	}
	s.queueCond = sync.NewCond(&s.queueMu)
	for i := range s.cores {
		c := &core{id: i}
		c.cond = sync.NewCond(&c.mu)
		s.cores[i] = c
	}
	s.running.Store(true)
	return s
}

// Launch starts the dispatcher goroutine and one goroutine per core. They
// live until CleanUp. Calling Launch again is a no-op.
func (s *Scheduler) Launch() {
	if s.shutdown.Load() {
		return
	}
	s.launchOnce.Do(func() {
		s.workers.Add(1 + len(s.cores))
		go s.dispatch()
		for _, c := range s.cores {
			go s.runCore(c)
		}
		s.log.WithFields(log.Fields{"cores": len(s.cores), "policy": s.policy.Name()}).Info("scheduler launched")
	})
}

// NextPID hands out process ids, starting at 1.
func (s *Scheduler) NextPID() int {
	return int(s.nextPID.Add(1))
}

func (s *Scheduler) Running() bool { return s.running.Load() }
func (s *Scheduler) Policy() Policy { return s.policy }

// AddProcess submits p. It is rejected when the scheduler is not running.
// Memory is requested immediately; a process that does not get any is
// queued anyway and the dispatcher retries later.
func (s *Scheduler) AddProcess(p *process.Process) bool {
	if !s.accepting() {
		s.log.WithField("process", p.Name()).Debug("scheduler not running, process rejected")
		return false
	}
	s.tableMu.Lock()
	s.registerLocked(p)
	s.tableMu.Unlock()

	s.admit(p)
	return true
}

// LookupOrAdd returns the process called name, or builds one with build and
// submits it. The name check and the registration happen under one lock, so
// concurrent callers with the same name share a single process. loaded
// reports whether the process already existed; a nil process means the
// scheduler is not running.
func (s *Scheduler) LookupOrAdd(name string, build func() *process.Process) (p *process.Process, loaded bool) {
	s.tableMu.Lock()
	if pid, ok := s.byName[name]; ok {
		p = s.table[pid]
		s.tableMu.Unlock()
		return p, true
	}
	if !s.accepting() {
		s.tableMu.Unlock()
		s.log.WithField("process", name).Debug("scheduler not running, process rejected")
		return nil, false
	}
	p = build()
	s.registerLocked(p)
	s.tableMu.Unlock()

	s.admit(p)
	return p, false
}

func (s *Scheduler) accepting() bool {
	return s.running.Load() && !s.shutdown.Load()
}

func (s *Scheduler) registerLocked(p *process.Process) {
	s.table[p.PID()] = p
	s.byName[p.Name()] = p.PID()
}

// admit requests memory for p and appends it to the ready queue.
func (s *Scheduler) admit(p *process.Process) {
	if _, ok := s.alloc.Allocate(p); ok {
		p.SetAllocated(true)
	} else {
		s.log.WithFields(log.Fields{"process": p.Name(), "memory": p.MemoryRequired()}).Debug("allocation deferred")
	}
	p.SetState(process.StateReady)

	s.queueMu.Lock()
	s.queue = append(s.queue, p)
	s.epoch++
	s.queueMu.Unlock()
	s.queueCond.Broadcast()
}

// dispatch is the scheduler goroutine. It sleeps until the queue is
// non-empty, a core is idle, and something changed since the last pass
// that placed nothing.
func (s *Scheduler) dispatch() {
	defer s.workers.Done()

	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	var blocked uint64
	hasBlocked := false
	for {
		for !s.shutdown.Load() && !(len(s.queue) > 0 && s.idleCoreLocked() && (!hasBlocked || s.epoch != blocked)) {
			s.queueCond.Wait()
		}
		if s.shutdown.Load() {
			return
		}
		if !s.placeLocked() {
			blocked, hasBlocked = s.epoch, true
		}
	}
}

func (s *Scheduler) idleCoreLocked() bool {
	for _, c := range s.cores {
		if !c.busy.Load() {
			return true
		}
	}
	return false
}

// placeLocked hands queued processes to idle cores, starting after the
// core used last. It reports whether anything was placed.
func (s *Scheduler) placeLocked() bool {
	placed := false
	n := len(s.cores)
	for i := 0; i < n && len(s.queue) > 0; i++ {
		c := s.cores[(s.lastCore+i)%n]
		if c.busy.Load() {
			continue
		}
		p := s.nextRunnableLocked()
		if p == nil {
			break
		}

		c.mu.Lock()
		c.current = p
		c.busy.Store(true)
		c.mu.Unlock()
		c.cond.Signal()

		s.lastCore = (c.id + 1) % n
		placed = true
	}
	return placed
}

// nextRunnableLocked pops the first queued process that holds or can get
// memory. Processes that cannot are moved to the tail, so memory pressure
// reorders the queue.
func (s *Scheduler) nextRunnableLocked() *process.Process {
	for tries := len(s.queue); tries > 0; tries-- {
		p := s.queue[0]
		s.queue = s.queue[1:]
		if p.IsAllocated() {
			return p
		}
		if _, ok := s.alloc.Allocate(p); ok {
			p.SetAllocated(true)
			return p
		}
		s.queue = append(s.queue, p)
	}
	return nil
}

func (s *Scheduler) runCore(c *core) {
	defer s.workers.Done()

	for {
		c.mu.Lock()
		for c.current == nil && !s.shutdown.Load() {
			c.cond.Wait()
		}
		p := c.current
		c.mu.Unlock()

		if s.shutdown.Load() {
			return
		}
		s.runSlice(c, p)
	}
}

// runSlice executes p on c until it finishes, its quantum runs out, a page
// cannot be brought in, or the scheduler shuts down.
func (s *Scheduler) runSlice(c *core, p *process.Process) {
	quantum := s.policy.Quantum()
	env := process.Env{Delay: s.cfg.ExecDelay(), Done: s.done}
	pager, _ := s.alloc.(memory.Pager)

	start := time.Now()
	p.Dispatch(start)
	s.log.WithFields(log.Fields{"process": p.Name(), "core": c.id, "pc": p.Counter()}).Debug("dispatched")

	for ran := 0; !p.IsFinished() && (quantum == 0 || ran < quantum); ran++ {
		if s.shutdown.Load() {
			break
		}
		if pager != nil && !s.touchPages(pager, p) {
			s.log.WithField("process", p.Name()).Debug("page fault could not be served, slice ended")
			break
		}
		cmd := p.CurrentCommand()
		p.ExecuteCurrentCommand(c.id, env)
		s.storeWrite(p, cmd)
		p.MoveToNextLine()
	}
	s.recordSlice(p.PID(), c.id, start, time.Now())

	if s.shutdown.Load() {
		s.releaseCore(c, nil)
		return
	}

	if p.IsFinished() {
		p.Terminate(time.Now())
		s.alloc.Deallocate(p)
		p.SetAllocated(false)

		s.finishedMu.Lock()
		s.finished = append(s.finished, p)
		s.finishedMu.Unlock()
		s.completed.Add(1)

		s.log.WithFields(log.Fields{"process": p.Name(), "core": c.id, "dispatches": p.Dispatches()}).Info("process finished")
		s.releaseCore(c, nil)
		return
	}

	p.SetState(process.StateReady)
	s.releaseCore(c, p)
}

// touchPages makes the pages the current instruction needs present: its
// code page, and for READ and WRITE the page of the address.
func (s *Scheduler) touchPages(pager memory.Pager, p *process.Process) bool {
	pages := p.NumPages()
	if pages == 0 {
		return true
	}
	if !pager.AccessPage(p.PID(), p.ProgramCounter()%pages, false) {
		return false
	}
	if addr, write, ok := process.DataAddress(p.CurrentCommand()); ok && s.cfg.MemPerFrame > 0 {
		if page := int(addr) / s.cfg.MemPerFrame; page < pages {
			return pager.AccessPage(p.PID(), page, write)
		}
	}
	return true
}

// storeWrite copies the word a WRITE left in the symbol table into the
// process's pages, when the allocator keeps page contents.
func (s *Scheduler) storeWrite(p *process.Process, cmd process.Command) {
	words, ok := s.alloc.(memory.WordStore)
	if !ok {
		return
	}
	addr, write, ok := process.DataAddress(cmd)
	if !ok || !write {
		return
	}
	if v, ok := p.SymbolTable().GetAt(addr); ok && !words.WriteWord(p.PID(), addr, v) {
		s.log.WithFields(log.Fields{"process": p.Name(), "address": addr}).Debug("word not stored in pages")
	}
}

// releaseCore frees c and, when requeue is set, puts it back at the tail of
// the ready queue in the same critical section.
func (s *Scheduler) releaseCore(c *core, requeue *process.Process) {
	s.queueMu.Lock()
	if requeue != nil {
		s.queue = append(s.queue, requeue)
	}
	c.mu.Lock()
	c.current = nil
	c.busy.Store(false)
	c.mu.Unlock()
	s.epoch++
	s.queueMu.Unlock()
	s.queueCond.Broadcast()
}

func (s *Scheduler) recordSlice(pid, coreID int, start, stop time.Time) {
	s.finishedMu.Lock()
	s.slices = append(s.slices, report.TimeSlice{
		PID:   pid,
		Core:  coreID,
		Start: start.Sub(s.launchedAt).Milliseconds(),
		Stop:  stop.Sub(s.launchedAt).Milliseconds(),
	})
	s.finishedMu.Unlock()
}

// Start opens admission, starts the clock, submits the pre-seed batch and
// starts the batch generator. Starting a started scheduler is a no-op.
func (s *Scheduler) Start() {
	if s.shutdown.Load() {
		return
	}
	s.Launch()

	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.stopClock != nil {
		return
	}

	s.running.Store(true)
	s.clock.resume()
	s.stopClock = make(chan struct{})

	s.background.Add(1)
	go s.runClock(s.cfg.TickInterval(), s.stopClock)

	for i := 0; i < s.cfg.PreSeed; i++ {
		s.spawn()
	}

	if s.cfg.BatchProcessFreq > 0 {
		s.background.Add(1)
		go s.runGenerator(uint64(s.cfg.BatchProcessFreq))
	}
	s.log.WithField("batch-process-freq", s.cfg.BatchProcessFreq).Info("scheduler started")
}

// Stop halts the clock and the generator and closes admission. Processes
// already queued still run to completion.
func (s *Scheduler) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.running.Store(false)
	if s.stopClock != nil {
		close(s.stopClock)
		s.clock.halt()
		s.background.Wait()
		s.stopClock = nil
		s.log.Info("scheduler stopped")
	}

	s.queueMu.Lock()
	s.epoch++
	s.queueMu.Unlock()
	s.queueCond.Broadcast()
}

// CleanUp tears everything down: the queue, every core slot, the finished
// list and the process table. The scheduler cannot be restarted.
func (s *Scheduler) CleanUp() {
	s.Stop()
	s.shutdown.Store(true)
	s.shutdownOnce.Do(func() { close(s.done) })

	s.queueMu.Lock()
	s.queue = nil
	for _, c := range s.cores {
		c.mu.Lock()
		c.current = nil
		c.busy.Store(false)
		c.mu.Unlock()
		c.cond.Broadcast()
	}
	s.queueMu.Unlock()
	s.queueCond.Broadcast()

	s.workers.Wait()

	s.tableMu.Lock()
	for _, p := range s.table {
		if p.IsAllocated() {
			s.alloc.Deallocate(p)
			p.SetAllocated(false)
		}
	}
	s.table = make(map[int]*process.Process)
	s.byName = make(map[string]int)
	s.tableMu.Unlock()

	s.finishedMu.Lock()
	s.finished = nil
	s.slices = nil
	s.finishedMu.Unlock()
	s.log.Info("scheduler cleaned up")
}

// WaitIdle blocks until the ready queue is empty and every core is idle.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.queueMu.Lock()
		defer s.queueMu.Unlock()
		s.queueCond.Broadcast()
	})
	defer stop()

	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	for len(s.queue) > 0 || s.busyCores() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.queueCond.Wait()
	}
	return nil
}

func (s *Scheduler) busyCores() int {
	n := 0
	for _, c := range s.cores {
		if c.busy.Load() {
			n++
		}
	}
	return n
}

// ReadyQueue copies the ready queue in visit order.
func (s *Scheduler) ReadyQueue() []*process.Process {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return append([]*process.Process(nil), s.queue...)
}

// OnCores lists the process on each core; idle cores hold nil.
func (s *Scheduler) OnCores() []*process.Process {
	out := make([]*process.Process, len(s.cores))
	for i, c := range s.cores {
		c.mu.Lock()
		out[i] = c.current
		c.mu.Unlock()
	}
	return out
}

// Finished copies the finished log in completion order.
func (s *Scheduler) Finished() []*process.Process {
	s.finishedMu.Lock()
	defer s.finishedMu.Unlock()
	return append([]*process.Process(nil), s.finished...)
}

// Slices copies the recorded dispatch slices.
func (s *Scheduler) Slices() []report.TimeSlice {
	s.finishedMu.Lock()
	defer s.finishedMu.Unlock()
	return append([]report.TimeSlice(nil), s.slices...)
}

func (s *Scheduler) Completed() int64 { return s.completed.Load() }

func (s *Scheduler) Ticks() uint64 { return s.clock.now() }

// CPUTicks reports how many ticks saw at least one busy core, and how many
// saw none.
func (s *Scheduler) CPUTicks() (active, idle uint64) { return s.clock.cpuTicks() }

// Lookup finds a live process by name.
func (s *Scheduler) Lookup(name string) (*process.Process, bool) {
	s.tableMu.RLock()
	defer s.tableMu.RUnlock()
	pid, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.table[pid], true
}

// Processes lists the process table ordered by pid.
func (s *Scheduler) Processes() []*process.Process {
	s.tableMu.RLock()
	out := make([]*process.Process, 0, len(s.table))
	for _, p := range s.table {
		out = append(out, p)
	}
	s.tableMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PID() < out[j].PID() })
	return out
}
