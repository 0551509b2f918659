package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/bitarray"
	log "github.com/sirupsen/logrus"

	"github.com/jar0582/CSCE4600/csopesy/report"
)

type flatRun struct {
	pid   int
	name  string
	count int
	bytes int
}

// FlatAllocator hands out contiguous runs of fixed-size blocks, first fit.
type FlatAllocator struct {
	mu        sync.Mutex
	log       log.FieldLogger
	total     int
	blockSize int
	numBlocks int
	blocks    bitarray.BitArray
	// runs is keyed by the first block of each run.
	runs map[int]flatRun
}

func NewFlatAllocator(totalMemory, blockSize int, logger log.FieldLogger) *FlatAllocator {
	if blockSize <= 0 {
		blockSize = totalMemory
	}
	numBlocks := 0
	if blockSize > 0 {
		numBlocks = totalMemory / blockSize
	}
	return &FlatAllocator{
		log:       logger.WithField("component", "flat-allocator"),
		total:     totalMemory,
		blockSize: blockSize,
		numBlocks: numBlocks,
		blocks:    bitarray.NewBitArray(uint64(max(numBlocks, 1))),
		runs:      make(map[int]flatRun),
	}
}

func (a *FlatAllocator) blocksFor(bytes int) int {
	if bytes <= 0 {
		return 1
	}
	return (bytes + a.blockSize - 1) / a.blockSize
}

func (a *FlatAllocator) Allocate(req Request) (Handle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if start, ok := a.startOf(req.PID()); ok {
		return Handle(start * a.blockSize), true
	}

	need := a.blocksFor(req.MemoryRequired())
	start, ok := a.firstFit(need)
	if !ok {
		a.log.WithFields(log.Fields{"pid": req.PID(), "blocks": need}).Debug("no contiguous run free")
		return 0, false
	}

	for i := start; i < start+need; i++ {
		_ = a.blocks.SetBit(uint64(i))
	}
	a.runs[start] = flatRun{pid: req.PID(), name: req.Name(), count: need, bytes: req.MemoryRequired()}
	return Handle(start * a.blockSize), true
}

func (a *FlatAllocator) firstFit(need int) (int, bool) {
	free := 0
	for i := 0; i < a.numBlocks; i++ {
		if a.used(i) {
			free = 0
			continue
		}
		free++
		if free == need {
			return i - need + 1, true
		}
	}
	return 0, false
}

func (a *FlatAllocator) used(block int) bool {
	set, err := a.blocks.GetBit(uint64(block))
	return err == nil && set
}

func (a *FlatAllocator) Deallocate(req Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start, ok := a.startOf(req.PID())
	if !ok {
		return
	}
	for i := start; i < start+a.runs[start].count; i++ {
		_ = a.blocks.ClearBit(uint64(i))
	}
	delete(a.runs, start)
}

// startOf searches the run map for the first block owned by pid.
func (a *FlatAllocator) startOf(pid int) (int, bool) {
	for start, run := range a.runs {
		if run.pid == pid {
			return start, true
		}
	}
	return 0, false
}

// OccupiedBlocks lists occupied block indices in ascending order.
func (a *FlatAllocator) OccupiedBlocks() []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []int
	for i := 0; i < a.numBlocks; i++ {
		if a.used(i) {
			out = append(out, i)
		}
	}
	return out
}

// OwnedBlocks lists the blocks of every live run, keyed by pid.
func (a *FlatAllocator) OwnedBlocks() map[int][]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[int][]int, len(a.runs))
	for start, run := range a.runs {
		for i := start; i < start+run.count; i++ {
			out[run.pid] = append(out[run.pid], i)
		}
	}
	return out
}

func (a *FlatAllocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statsLocked()
}

func (a *FlatAllocator) statsLocked() Stats {
	s := Stats{
		TotalMemory:           a.total,
		Processes:             len(a.runs),
		ExternalFragmentation: a.total - a.numBlocks*a.blockSize,
		TotalFrames:           a.numBlocks,
	}
	for _, run := range a.runs {
		s.UsedMemory += run.count * a.blockSize
		s.InternalFragmentation += run.count*a.blockSize - run.bytes
		s.UsedFrames += run.count
	}
	s.FreeMemory = a.total - s.UsedMemory
	return s
}

func (a *FlatAllocator) VisualizeMemory() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.statsLocked()
	var b strings.Builder
	report.Title(&b, "Flat memory")
	report.KeyValues(&b, [][2]string{
		{"Timestamp", time.Now().Format("01/02/2006 03:04:05PM")},
		{"Processes in memory", fmt.Sprint(s.Processes)},
		{"Block size", fmt.Sprint(a.blockSize)},
		{"Used / total", fmt.Sprintf("%d / %d", s.UsedMemory, s.TotalMemory)},
		{"Internal fragmentation", fmt.Sprint(s.InternalFragmentation)},
		{"External fragmentation", fmt.Sprint(s.ExternalFragmentation)},
	})

	// highest address first, like a memory map
	rows := make([][]string, 0, a.numBlocks)
	for i := a.numBlocks - 1; i >= 0; {
		start := i
		for start > 0 && a.used(start-1) == a.used(i) && a.ownerOf(start-1) == a.ownerOf(i) {
			start--
		}
		owner := "free"
		if run, ok := a.runs[start]; ok && a.used(i) {
			owner = run.name
		}
		rows = append(rows, []string{
			fmt.Sprint((i + 1) * a.blockSize),
			fmt.Sprint(start * a.blockSize),
			fmt.Sprint(i - start + 1),
			owner,
		})
		i = start - 1
	}
	report.Table(&b, []string{"Upper", "Lower", "Blocks", "Owner"}, rows)
	return b.String()
}

// ownerOf returns the pid whose run covers block, or noOwner.
func (a *FlatAllocator) ownerOf(block int) int {
	for start, run := range a.runs {
		if block >= start && block < start+run.count {
			return run.pid
		}
	}
	return noOwner
}

func (a *FlatAllocator) Close() error { return nil }
