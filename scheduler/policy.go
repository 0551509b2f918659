package scheduler

import (
	"fmt"

	"github.com/jar0582/CSCE4600/csopesy/config"
)

// Policy decides how long a core keeps a process once dispatched.
type Policy interface {
	Name() string
	// Quantum is the instruction budget of one dispatch; 0 means run to
	// completion.
	Quantum() int
}

// FCFS runs every process to completion in queue order.
type FCFS struct{}

func (FCFS) Name() string { return "First-come, first-serve" }
func (FCFS) Quantum() int  { return 0 }

// RoundRobin preempts a process after Cycles instructions and puts it back
// at the tail of the ready queue.
type RoundRobin struct {
	Cycles int
}

func (r RoundRobin) Name() string { return fmt.Sprintf("Round-robin (quantum %d)", r.Cycles) }
func (r RoundRobin) Quantum() int  { return r.Cycles }

// PolicyFor maps the configured scheduler name onto a Policy.
func PolicyFor(cfg config.Config) (Policy, error) {
	switch cfg.Scheduler {
	case config.SchedulerFCFS:
		return FCFS{}, nil
	case config.SchedulerRR:
		if cfg.QuantumCycles < 1 {
			return nil, fmt.Errorf("%w: quantum-cycles must be positive for rr", config.ErrInvalidConfig)
		}
		return RoundRobin{Cycles: cfg.QuantumCycles}, nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownScheduler, cfg.Scheduler)
}
