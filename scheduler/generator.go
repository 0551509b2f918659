package scheduler

import (
	"fmt"

	"github.com/jar0582/CSCE4600/csopesy/config"
	"github.com/jar0582/CSCE4600/csopesy/process"
)

// FactoryFor sizes a process factory from the configuration.
func FactoryFor(cfg config.Config, seed int64) *process.Factory {
	return process.NewFactory(process.FactorySpec{
		MinIns:          cfg.MinIns,
		MaxIns:          cfg.MaxIns,
		MinMem:          cfg.MinMemPerProc,
		MaxMem:          cfg.MaxMemPerProc,
		MemPerFrame:     cfg.MemPerFrame,
		SymbolTableSize: cfg.SymbolTableSize,
		MaxSleep:        cfg.TickInterval() / 10,
	}, seed)
}

// GeneratedName names the synthetic process with the given pid.
func GeneratedName(pid int) string {
	return fmt.Sprintf("process%02d", pid)
}

// spawn synthesizes one process and submits it.
func (s *Scheduler) spawn() bool {
	pid := s.NextPID()
	return s.AddProcess(s.factory.New(pid, GeneratedName(pid), 0))
}

// runGenerator creates one process every batch-process-freq ticks until the
// clock is halted.
func (s *Scheduler) runGenerator(freq uint64) {
	defer s.background.Done()

	last := s.clock.now()
	for {
		now, ok := s.clock.waitUntil(last + freq)
		if !ok {
			return
		}
		last = now
		if s.spawn() {
			s.log.WithField("ticks", now).Debug("batch process created")
		}
	}
}
