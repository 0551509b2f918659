package memory

// Request is what an allocator needs to know about a process.
type Request interface {
	PID() int
	Name() string
	MemoryRequired() int
	NumPages() int
}

// Handle identifies a successful allocation. Its meaning is allocator
// specific: a byte offset, a first frame, or a page-table id.
type Handle int

// Allocator backs process address spaces. Exhaustion is never an error:
// Allocate reports false and the caller retries later. Implementations are
// safe for concurrent use.
type Allocator interface {
	Allocate(req Request) (Handle, bool)
	// Deallocate releases everything held for req. Releasing a process that
	// holds nothing is a no-op.
	Deallocate(req Request)
	VisualizeMemory() string
	Stats() Stats
	Close() error
}

// Pager is implemented by allocators that load pages lazily. AccessPage
// reports false when the page could not be made present.
type Pager interface {
	AccessPage(pid, page int, isWrite bool) bool
}

// WordStore is implemented by allocators that hold page contents. Words
// are 16-bit and addressed by byte offset in the process's space.
type WordStore interface {
	WriteWord(pid int, addr uint32, value uint16) bool
	ReadWord(pid int, addr uint32) (uint16, bool)
}

// Stats is a point-in-time snapshot of an allocator's counters.
type Stats struct {
	TotalMemory int
	UsedMemory  int
	FreeMemory  int
	Processes   int

	InternalFragmentation int
	ExternalFragmentation int

	TotalFrames int
	UsedFrames  int

	PageFaults   int64
	PagedIn      int64
	PagedOut     int64
	Evictions    int64
	BackingSlots int
}
