package process

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const maxForDepth = 3

var variableNames = []string{"x", "y", "z", "counter", "total", "tmp"}

// FactorySpec sizes the synthetic processes a Factory builds.
type FactorySpec struct {
	MinIns, MaxIns  int
	MinMem, MaxMem  int
	MemPerFrame     int
	SymbolTableSize int
	// MaxSleep bounds the duration of generated SLEEP instructions.
	MaxSleep time.Duration
}

// Factory builds processes with random instruction lists. It is safe for
// concurrent use by the batch generator and the facade.
type Factory struct {
	spec FactorySpec

	mu  sync.Mutex
	rng *rand.Rand
}

func NewFactory(spec FactorySpec, seed int64) *Factory {
	if spec.MinIns < 1 {
		spec.MinIns = 1
	}
	if spec.MaxIns < spec.MinIns {
		spec.MaxIns = spec.MinIns
	}
	if spec.MaxMem < spec.MinMem {
		spec.MaxMem = spec.MinMem
	}
	if spec.MemPerFrame < 1 {
		spec.MemPerFrame = 1
	}
	return &Factory{spec: spec, rng: rand.New(rand.NewSource(seed))}
}

// PagesFor is the page count of a process needing mem bytes.
func (f *Factory) PagesFor(mem int) int {
	if mem <= 0 {
		return 0
	}
	return (mem + f.spec.MemPerFrame - 1) / f.spec.MemPerFrame
}

// RandomMemory picks a requirement inside the configured band.
func (f *Factory) RandomMemory() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spec.MinMem + f.rng.Intn(f.spec.MaxMem-f.spec.MinMem+1)
}

// New synthesizes a process with a random instruction list. A non-positive
// mem draws a random requirement.
func (f *Factory) New(pid int, name string, mem int) *Process {
	if mem <= 0 {
		mem = f.RandomMemory()
	}

	f.mu.Lock()
	n := f.spec.MinIns + f.rng.Intn(f.spec.MaxIns-f.spec.MinIns+1)
	cmds := f.generate(name, n, mem, 0)
	f.mu.Unlock()

	return New(pid, name, mem, f.PagesFor(mem), f.spec.SymbolTableSize, cmds)
}

// Instructions draws n random instructions for a process of mem bytes.
func (f *Factory) Instructions(name string, n, mem int) []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generate(name, n, mem, 0)
}

// NewWithInstructions builds a user-declared process.
func (f *Factory) NewWithInstructions(pid int, name string, mem int, cmds []Command) *Process {
	return New(pid, name, mem, f.PagesFor(mem), f.spec.SymbolTableSize, cmds)
}

// generate must be called with f.mu held.
func (f *Factory) generate(name string, n, mem, depth int) []Command {
	cmds := make([]Command, 0, n)
	for len(cmds) < n {
		cmds = append(cmds, f.randomCommand(name, mem, depth))
	}
	return cmds
}

func (f *Factory) randomCommand(name string, mem, depth int) Command {
	v := func() string { return variableNames[f.rng.Intn(len(variableNames))] }
	operand := func() Operand {
		if f.rng.Intn(2) == 0 {
			return Var(v())
		}
		return Lit(uint16(f.rng.Intn(1 << 16)))
	}

	switch f.rng.Intn(8) {
	case 0:
		return Print(Text(fmt.Sprintf("Hello world from %s!", name)))
	case 1:
		return Declare(v(), uint16(f.rng.Intn(1<<16)))
	case 2:
		return Add(v(), operand(), operand())
	case 3:
		return Subtract(v(), operand(), operand())
	case 4:
		if mem >= 2 {
			return Read(v(), f.address(mem))
		}
	case 5:
		if mem >= 2 {
			return Write(f.address(mem), operand())
		}
	case 6:
		if f.spec.MaxSleep > 0 {
			return Sleep(time.Duration(f.rng.Int63n(int64(f.spec.MaxSleep)) + 1))
		}
	case 7:
		if depth < maxForDepth {
			start := f.rng.Intn(3)
			body := f.generate(name, 1+f.rng.Intn(3), mem, depth+1)
			return For(start, start+1+f.rng.Intn(3), body...)
		}
	}
	return Print(Text("Value from:"), Ref(v()))
}

// address returns an even offset inside the process's memory.
func (f *Factory) address(mem int) uint32 {
	return uint32(f.rng.Intn(mem/2) * 2)
}
