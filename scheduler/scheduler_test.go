package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jar0582/CSCE4600/csopesy/config"
	"github.com/jar0582/CSCE4600/csopesy/logging"
	"github.com/jar0582/CSCE4600/csopesy/memory"
	"github.com/jar0582/CSCE4600/csopesy/process"
)

func testConfig(cores int, scheduler string, quantum int) config.Config {
	cfg := config.Default()
	cfg.NumCPU = cores
	cfg.Scheduler = scheduler
	cfg.QuantumCycles = quantum
	cfg.TickIntervalMs = 2
	cfg.BatchProcessFreq = 1
	cfg.MinIns, cfg.MaxIns = 1, 3
	cfg.MinMemPerProc, cfg.MaxMemPerProc = 256, 512
	return cfg
}

func newScheduler(t *testing.T, cfg config.Config, alloc memory.Allocator) *Scheduler {
	t.Helper()
	policy, err := PolicyFor(cfg)
	require.NoError(t, err)
	s := New(cfg, policy, alloc, FactoryFor(cfg, 1), logging.Discard())
	t.Cleanup(s.CleanUp)
	return s
}

func roomy() memory.Allocator {
	return memory.NewFlatAllocator(1<<20, 256, logging.Discard())
}

func declares(n int) []process.Command {
	cmds := make([]process.Command, n)
	for i := range cmds {
		cmds[i] = process.Declare(fmt.Sprintf("v%d", i), uint16(i))
	}
	return cmds
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitIdle(ctx))
}

func names(ps []*process.Process) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name()
	}
	return out
}

func TestFCFSCompletesInSubmissionOrder(t *testing.T) {
	s := newScheduler(t, testConfig(1, config.SchedulerFCFS, 0), roomy())

	var submitted []string
	for i := 0; i < 3; i++ {
		pid := s.NextPID()
		p := process.New(pid, GeneratedName(pid), 256, 1, 8, declares(5))
		require.True(t, s.AddProcess(p))
		submitted = append(submitted, p.Name())
	}
	s.Launch()
	waitIdle(t, s)

	finished := s.Finished()
	assert.Equal(t, submitted, names(finished))
	for _, p := range finished {
		assert.Equal(t, process.StateTerminated, p.State())
		assert.Len(t, p.Logs(), 5)
		assert.Equal(t, 1, p.Dispatches())
		assert.False(t, p.IsAllocated())
	}
	assert.Equal(t, int64(3), s.Completed())
}

func TestRoundRobinPreemptsAfterQuantum(t *testing.T) {
	s := newScheduler(t, testConfig(2, config.SchedulerRR, 3), roomy())

	p := process.New(s.NextPID(), "long", 256, 1, 16, declares(10))
	require.True(t, s.AddProcess(p))
	s.Launch()
	waitIdle(t, s)

	assert.Equal(t, process.StateTerminated, p.State())
	assert.Equal(t, 4, p.Dispatches())
	assert.Len(t, s.Slices(), 4)
	assert.Len(t, p.Logs(), 10)
}

func TestRoundRobinIsFair(t *testing.T) {
	const procs, length = 4, 6
	s := newScheduler(t, testConfig(2, config.SchedulerRR, 1), roomy())

	for i := 0; i < procs; i++ {
		pid := s.NextPID()
		require.True(t, s.AddProcess(process.New(pid, GeneratedName(pid), 256, 1, 8, declares(length))))
	}
	s.Launch()
	waitIdle(t, s)

	slices := s.Slices()
	require.Len(t, slices, procs*length)

	last := make(map[int]int)
	for i, sl := range slices {
		if prev, ok := last[sl.PID]; ok {
			between := make(map[int]int)
			for _, other := range slices[prev+1 : i] {
				between[other.PID]++
			}
			for pid, n := range between {
				assert.LessOrEqual(t, n, 2, "pid %d ran %d times while pid %d waited", pid, n, sl.PID)
			}
		}
		last[sl.PID] = i
	}
	for _, p := range s.Finished() {
		assert.Equal(t, length, p.Dispatches())
	}
}

func TestProcessWithoutMemoryStaysQueued(t *testing.T) {
	cfg := testConfig(1, config.SchedulerFCFS, 0)
	cfg.MaxOverallMem, cfg.MemPerFrame = 4*256, 256
	alloc := memory.NewPagingAllocator(cfg.MaxOverallMem, cfg.MemPerFrame, logging.Discard())
	s := newScheduler(t, cfg, alloc)

	big := process.New(s.NextPID(), "big", 5*256, cfg.PagesFor(5*256), 8, declares(2))
	small := process.New(s.NextPID(), "small", 2*256, cfg.PagesFor(2*256), 8, declares(2))
	require.True(t, s.AddProcess(big))
	require.True(t, s.AddProcess(small))
	assert.False(t, big.IsAllocated())
	assert.True(t, small.IsAllocated())

	s.Launch()
	require.Eventually(t, func() bool { return s.Completed() == 1 }, 5*time.Second, time.Millisecond)

	assert.Equal(t, []string{"big"}, names(s.ReadyQueue()))
	assert.Equal(t, process.StateReady, big.State())
	assert.False(t, big.IsAllocated())
	assert.Equal(t, 0, big.ProgramCounter())
	assert.Equal(t, []string{"small"}, names(s.Finished()))
	assert.Contains(t, s.DisplayScreenList(), "waiting for memory")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.WaitIdle(ctx), context.DeadlineExceeded)
}

func TestDemandPagingRunsUnderFramePressure(t *testing.T) {
	cfg := testConfig(2, config.SchedulerRR, 2)
	cfg.MaxOverallMem, cfg.MemPerFrame = 2*64, 64
	alloc := memory.NewDemandPagingAllocator(cfg.MaxOverallMem, cfg.MemPerFrame, filepath.Join(t.TempDir(), "store"), logging.Discard())
	t.Cleanup(func() { _ = alloc.Close() })
	s := newScheduler(t, cfg, alloc)

	for i := 0; i < 3; i++ {
		cmds := []process.Command{
			process.Write(0, process.Lit(1)),
			process.Write(70, process.Lit(2)),
			process.Write(140, process.Lit(3)),
			process.Read("x", 200),
			process.Add("x", process.Var("x"), process.Lit(1)),
		}
		pid := s.NextPID()
		require.True(t, s.AddProcess(process.New(pid, GeneratedName(pid), 256, cfg.PagesFor(256), 8, cmds)))
	}
	s.Launch()
	waitIdle(t, s)

	assert.Len(t, s.Finished(), 3)
	stats := alloc.Stats()
	assert.Greater(t, stats.PageFaults, int64(3))
	assert.Greater(t, stats.Evictions, int64(0))
	assert.Equal(t, 0, stats.Processes)
	assert.Equal(t, 0, stats.UsedFrames)
	assert.Equal(t, 0, stats.BackingSlots)
}

func TestStartSeedsAndGenerates(t *testing.T) {
	cfg := testConfig(2, config.SchedulerRR, 2)
	cfg.PreSeed = 2
	s := newScheduler(t, cfg, roomy())

	s.Start()
	s.Start()
	require.Eventually(t, func() bool { return len(s.Processes()) >= 5 }, 5*time.Second, time.Millisecond)
	s.Stop()

	assert.False(t, s.Running())
	ticks := s.Ticks()
	assert.Greater(t, ticks, uint64(0))
	active, idle := s.CPUTicks()
	assert.Equal(t, ticks, active+idle)

	created := len(s.Processes())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, created, len(s.Processes()), "no new processes after stop")
	assert.Equal(t, ticks, s.Ticks(), "clock halted")

	waitIdle(t, s)
	assert.Len(t, s.Finished(), created, "queued work drains after stop")
	assert.Equal(t, GeneratedName(1), s.Processes()[0].Name())
}

func TestStopRejectsNewProcesses(t *testing.T) {
	s := newScheduler(t, testConfig(1, config.SchedulerFCFS, 0), roomy())
	s.Start()
	s.Stop()

	p := process.New(s.NextPID(), "late", 256, 1, 8, declares(1))
	assert.False(t, s.AddProcess(p))
	assert.Empty(t, s.ReadyQueue())
	_, ok := s.Lookup("late")
	assert.False(t, ok)
	assert.Equal(t, process.StateNew, p.State())
}

func TestLookupOrAdd(t *testing.T) {
	s := newScheduler(t, testConfig(1, config.SchedulerFCFS, 0), roomy())

	built := 0
	build := func() *process.Process {
		built++
		return process.New(s.NextPID(), "once", 256, 1, 8, declares(1))
	}
	first, loaded := s.LookupOrAdd("once", build)
	require.NotNil(t, first)
	assert.False(t, loaded)

	again, loaded := s.LookupOrAdd("once", build)
	assert.Same(t, first, again)
	assert.True(t, loaded)
	assert.Equal(t, 1, built)
	assert.Equal(t, []string{"once"}, names(s.ReadyQueue()))

	s.Stop()
	late, loaded := s.LookupOrAdd("late", build)
	assert.Nil(t, late)
	assert.False(t, loaded)
	assert.Equal(t, 1, built)
}

func TestCleanUpTearsEverythingDown(t *testing.T) {
	alloc := roomy()
	s := newScheduler(t, testConfig(1, config.SchedulerFCFS, 0), alloc)

	sleeper := process.New(s.NextPID(), "sleeper", 256, 1, 8, []process.Command{process.Sleep(time.Hour)})
	queued := process.New(s.NextPID(), "queued", 256, 1, 8, declares(1))
	require.True(t, s.AddProcess(sleeper))
	require.True(t, s.AddProcess(queued))
	s.Launch()
	require.Eventually(t, func() bool { return s.OnCores()[0] == sleeper }, 5*time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.CleanUp()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cleanup did not return")
	}

	assert.Empty(t, s.ReadyQueue())
	assert.Empty(t, s.Finished())
	assert.Empty(t, s.Processes())
	assert.Equal(t, []*process.Process{nil}, s.OnCores())
	assert.Equal(t, 0, alloc.Stats().Processes)
	assert.False(t, s.AddProcess(process.New(s.NextPID(), "after", 256, 1, 8, declares(1))))
}

func TestScreenListAndReport(t *testing.T) {
	s := newScheduler(t, testConfig(2, config.SchedulerRR, 2), roomy())
	for _, name := range []string{"alpha", "beta"} {
		require.True(t, s.AddProcess(process.New(s.NextPID(), name, 256, 1, 8, declares(3))))
	}
	s.Launch()
	waitIdle(t, s)

	screen := s.DisplayScreenList()
	assert.Contains(t, screen, "CPU utilization")
	assert.Contains(t, screen, "0%")
	assert.Contains(t, screen, "Finished processes:")
	assert.Contains(t, screen, "alpha")
	assert.Contains(t, screen, "3/3")

	p, ok := s.Lookup("beta")
	require.True(t, ok)
	assert.Equal(t, process.StateTerminated, p.State())

	var b strings.Builder
	s.WriteReport(&b)
	out := b.String()
	assert.Contains(t, out, "Round-robin (quantum 2)")
	assert.Contains(t, out, "Gantt schedule")
	assert.Contains(t, out, "Schedule table")
}

func TestPolicyFor(t *testing.T) {
	cfg := config.Default()

	cfg.Scheduler = config.SchedulerFCFS
	p, err := PolicyFor(cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Quantum())

	cfg.Scheduler, cfg.QuantumCycles = config.SchedulerRR, 7
	p, err = PolicyFor(cfg)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Quantum())

	cfg.QuantumCycles = 0
	_, err = PolicyFor(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg.Scheduler = "priority"
	_, err = PolicyFor(cfg)
	assert.ErrorIs(t, err, config.ErrUnknownScheduler)
}

func TestWritesReachDemandPages(t *testing.T) {
	cfg := testConfig(1, config.SchedulerFCFS, 0)
	cfg.MaxOverallMem, cfg.MemPerFrame = 4*64, 64
	alloc := memory.NewDemandPagingAllocator(cfg.MaxOverallMem, cfg.MemPerFrame, filepath.Join(t.TempDir(), "store"), logging.Discard())
	t.Cleanup(func() { _ = alloc.Close() })
	s := newScheduler(t, cfg, alloc)

	p := process.New(s.NextPID(), "writer", 256, cfg.PagesFor(256), 8, []process.Command{process.Write(70, process.Lit(9))})
	_, ok := alloc.Allocate(p)
	require.True(t, ok)

	p.ExecuteCurrentCommand(0, process.Env{})
	s.storeWrite(p, p.CurrentCommand())
	v, ok := alloc.ReadWord(p.PID(), 70)
	require.True(t, ok)
	assert.Equal(t, uint16(9), v)
	info, ok := alloc.Page(p.PID(), 1)
	require.True(t, ok)
	assert.True(t, info.Dirty)

	flat := newScheduler(t, cfg, roomy())
	assert.NotPanics(t, func() { flat.storeWrite(p, p.CurrentCommand()) })
}
