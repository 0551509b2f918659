package process

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrAlreadyStarted  = errors.New("process already started")
	ErrAlreadyReplaced = errors.New("instructions already replaced")
)

type State int

const (
	StateNew State = iota
	StateReady
	StateRunning
	StateWaiting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateWaiting:
		return "WAITING"
	case StateTerminated:
		return "TERMINATED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type LogEntry struct {
	Timestamp time.Time
	Core      int
	Message   string
}

// Process is the schedulable unit. The worker that currently owns it
// advances the counter and appends to the log; the scheduler flips the
// allocation flag. The mutex only makes those fields safe to read from
// report views while a core is running the process.
type Process struct {
	pid            int
	name           string
	memoryRequired int
	numPages       int
	symbols        *SymbolTable

	mu           sync.RWMutex
	state        State
	instructions []Command
	replaced     bool
	pc           int
	allocated    bool
	dispatches   int
	arrival      time.Time
	start        time.Time
	end          time.Time
	logs         []LogEntry
}

// New creates a process in the NEW state with its own symbol table.
func New(pid int, name string, memoryRequired, numPages, symbolTableSize int, instructions []Command) *Process {
	return &Process{
		pid:            pid,
		name:           name,
		memoryRequired: memoryRequired,
		numPages:       numPages,
		symbols:        NewSymbolTable(symbolTableSize),
		state:          StateNew,
		instructions:   append([]Command(nil), instructions...),
		arrival:        time.Now(),
	}
}

func (p *Process) PID() int                  { return p.pid }
func (p *Process) Name() string              { return p.name }
func (p *Process) MemoryRequired() int       { return p.memoryRequired }
func (p *Process) NumPages() int             { return p.numPages }
func (p *Process) SymbolTable() *SymbolTable { return p.symbols }

func (p *Process) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Process) SetState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Process) IsAllocated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.allocated
}

func (p *Process) SetAllocated(a bool) {
	p.mu.Lock()
	p.allocated = a
	p.mu.Unlock()
}

// Dispatch marks the process RUNNING on behalf of a core, stamping the start
// time on its first run only.
func (p *Process) Dispatch(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateRunning
	p.dispatches++
	if p.start.IsZero() {
		p.start = now
	}
}

// Terminate stamps the end time and moves the process to TERMINATED.
func (p *Process) Terminate(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateTerminated
	p.end = now
}

// Dispatches counts how many times a core picked the process up.
func (p *Process) Dispatches() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dispatches
}

func (p *Process) ArrivalTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.arrival
}

func (p *Process) StartTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.start
}

func (p *Process) EndTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.end
}

func (p *Process) ProgramCounter() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pc
}

func (p *Process) InstructionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.instructions)
}

// Counter renders progress as "pc/total".
func (p *Process) Counter() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fmt.Sprintf("%d/%d", p.pc, len(p.instructions))
}

func (p *Process) IsFinished() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pc >= len(p.instructions)
}

// ReplaceInstructions swaps the instruction list. It is allowed once, and
// only before the process first runs.
func (p *Process) ReplaceInstructions(cmds []Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.replaced {
		return ErrAlreadyReplaced
	}
	if p.dispatches > 0 || p.pc > 0 {
		return ErrAlreadyStarted
	}
	p.instructions = append([]Command(nil), cmds...)
	p.replaced = true
	return nil
}

// CurrentCommand returns the instruction at the program counter. It panics
// when the process is finished.
func (p *Process) CurrentCommand() Command {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.pc >= len(p.instructions) {
		panic(fmt.Sprintf("process %d (%s): no instruction at pc %d of %d", p.pid, p.name, p.pc, len(p.instructions)))
	}
	return p.instructions[p.pc]
}

// ExecuteCurrentCommand runs the instruction at the program counter against
// the process's symbol table and logs it under core. Callers must check
// IsFinished first.
func (p *Process) ExecuteCurrentCommand(core int, env Env) string {
	cmd := p.CurrentCommand()
	env.Table = p.symbols
	out := Execute(cmd, env)
	p.AddLog(core, out)
	return out
}

func (p *Process) MoveToNextLine() {
	p.mu.Lock()
	if p.pc < len(p.instructions) {
		p.pc++
	}
	p.mu.Unlock()
}

func (p *Process) RemainingInstructions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.instructions) - p.pc
}

func (p *Process) AddLog(core int, message string) {
	p.mu.Lock()
	p.logs = append(p.logs, LogEntry{Timestamp: time.Now(), Core: core, Message: message})
	p.mu.Unlock()
}

// Logs returns a copy of the execution log.
func (p *Process) Logs() []LogEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]LogEntry(nil), p.logs...)
}

func (p *Process) String() string {
	return fmt.Sprintf("Process{PID: %d, Name: %s, State: %s, PC: %s}", p.pid, p.name, p.State(), p.Counter())
}
