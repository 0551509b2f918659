package process

import (
	"sort"
	"sync"
)

const (
	DefaultSymbolTableSize = 32

	// generated addresses start here and step by the width of a 16-bit value
	addressBase = 0x1000
	addressStep = 2
)

// Symbol is one slot of a symbol table. Slots written through a raw address
// have no name.
type Symbol struct {
	Address uint32
	Name    string
	Value   uint16
}

// SymbolTable is a process's bounded variable space. Every insert, whatever
// command causes it, is refused once the table holds capacity entries;
// updates of existing entries always succeed. A missing name or address
// reads as zero.
type SymbolTable struct {
	mu       sync.RWMutex
	capacity int
	next     uint32
	byAddr   map[uint32]*Symbol
	byName   map[string]uint32
}

func NewSymbolTable(capacity int) *SymbolTable {
	if capacity <= 0 {
		capacity = DefaultSymbolTableSize
	}
	return &SymbolTable{
		capacity: capacity,
		next:     addressBase,
		byAddr:   make(map[uint32]*Symbol, capacity),
		byName:   make(map[string]uint32, capacity),
	}
}

// Declare binds name to value, creating the variable if there is room.
func (t *SymbolTable) Declare(name string, value uint16) bool {
	return t.Set(name, value)
}

// Set updates name in place or inserts it at a freshly generated address.
func (t *SymbolTable) Set(name string, value uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if addr, ok := t.byName[name]; ok {
		t.byAddr[addr].Value = value
		return true
	}
	if len(t.byAddr) >= t.capacity {
		return false
	}
	addr := t.generateAddress()
	t.byAddr[addr] = &Symbol{Address: addr, Name: name, Value: value}
	t.byName[name] = addr
	return true
}

// Insert places a named value at an explicit address.
func (t *SymbolTable) Insert(addr uint32, name string, value uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, taken := t.byAddr[addr]; taken {
		return false
	}
	if _, taken := t.byName[name]; taken && name != "" {
		return false
	}
	if len(t.byAddr) >= t.capacity {
		return false
	}
	t.byAddr[addr] = &Symbol{Address: addr, Name: name, Value: value}
	if name != "" {
		t.byName[name] = addr
	}
	return true
}

// WriteAt stores value at addr, creating an unnamed slot if needed.
func (t *SymbolTable) WriteAt(addr uint32, value uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sym, ok := t.byAddr[addr]; ok {
		sym.Value = value
		return true
	}
	if len(t.byAddr) >= t.capacity {
		return false
	}
	t.byAddr[addr] = &Symbol{Address: addr, Value: value}
	return true
}

func (t *SymbolTable) Get(name string) uint16 {
	v, _ := t.Lookup(name)
	return v
}

func (t *SymbolTable) Lookup(name string) (uint16, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	addr, ok := t.byName[name]
	if !ok {
		return 0, false
	}
	return t.byAddr[addr].Value, true
}

func (t *SymbolTable) GetAt(addr uint32) (uint16, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sym, ok := t.byAddr[addr]
	if !ok {
		return 0, false
	}
	return sym.Value, true
}

// AddressOf reports where name lives.
func (t *SymbolTable) AddressOf(name string) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	addr, ok := t.byName[name]
	return addr, ok
}

func (t *SymbolTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byAddr)
}

func (t *SymbolTable) Cap() int { return t.capacity }

// Snapshot copies the table ordered by address.
func (t *SymbolTable) Snapshot() []Symbol {
	t.mu.RLock()
	out := make([]Symbol, 0, len(t.byAddr))
	for _, sym := range t.byAddr {
		out = append(out, *sym)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// generateAddress hands out the next unused address. Addresses are never
// reused within a table; raw WRITE targets are skipped over.
func (t *SymbolTable) generateAddress() uint32 {
	for {
		addr := t.next
		t.next += addressStep
		if _, taken := t.byAddr[addr]; !taken {
			return addr
		}
	}
}
