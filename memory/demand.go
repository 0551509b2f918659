package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/jar0582/CSCE4600/csopesy/report"
)

var errNoBackingStore = errors.New("no backing store configured")

type pageEntry struct {
	present    bool
	dirty      bool
	referenced bool
	frame      int
	slot       int64
}

type pageTable struct {
	name  string
	pages []pageEntry
}

// PageInfo is a read-only view of one page-table entry.
type PageInfo struct {
	Present    bool
	Dirty      bool
	Referenced bool
	Frame      int
	Slot       int64
}

// DemandPagingAllocator reserves only a page table on Allocate. Frames are
// bound on first access, and when none is free the least recently used
// frame is evicted. Dirty victims are written to the backing store. A page
// swapped back in keeps its slot until it is written again, so a clean
// victim can be dropped without losing its contents.
type DemandPagingAllocator struct {
	mu        sync.Mutex
	log       log.FieldLogger
	frameSize int
	frames    *frameTable
	data      [][]byte
	// lastUsed holds the access clock value of each frame's latest touch.
	lastUsed []uint64
	clock    uint64
	tables   map[int]*pageTable

	store    *BackingStore
	storeErr error

	faults    int64
	pagedIn   int64
	pagedOut  int64
	evictions int64
}

// NewDemandPagingAllocator sizes the frame table from totalMemory and opens
// the backing store at storePath. A store that cannot be opened is logged
// and left nil: the allocator still works until a dirty page has to be
// swapped out.
func NewDemandPagingAllocator(totalMemory, frameSize int, storePath string, logger log.FieldLogger) *DemandPagingAllocator {
	numFrames := 0
	if frameSize > 0 {
		numFrames = totalMemory / frameSize
	}
	a := &DemandPagingAllocator{
		log:       logger.WithField("component", "demand-pager"),
		frameSize: frameSize,
		frames:    newFrameTable(numFrames),
		data:      make([][]byte, numFrames),
		lastUsed:  make([]uint64, numFrames),
		tables:    make(map[int]*pageTable),
	}
	for i := range a.data {
		a.data[i] = make([]byte, frameSize)
	}

	if storePath == "" {
		a.storeErr = errNoBackingStore
	} else {
		a.store, a.storeErr = OpenBackingStore(storePath, frameSize)
	}
	if a.storeErr != nil {
		a.log.WithError(a.storeErr).WithField("path", storePath).Error("backing store unavailable")
	}
	return a
}

// BackingStoreErr reports why the backing store is unavailable, if it is.
func (a *DemandPagingAllocator) BackingStoreErr() error { return a.storeErr }

func (a *DemandPagingAllocator) Allocate(req Request) (Handle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pid := req.PID()
	if _, ok := a.tables[pid]; !ok {
		pages := make([]pageEntry, max(req.NumPages(), 0))
		for i := range pages {
			pages[i].frame = noOwner
		}
		a.tables[pid] = &pageTable{name: req.Name(), pages: pages}
	}
	return Handle(pid + 1), true
}

func (a *DemandPagingAllocator) Deallocate(req Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pid := req.PID()
	table, ok := a.tables[pid]
	if !ok {
		return
	}
	for i := range table.pages {
		entry := &table.pages[i]
		if entry.present {
			a.frames.release(entry.frame)
			a.pagedOut++
		}
		a.dropSlot(entry)
	}
	delete(a.tables, pid)
}

// AccessPage touches one page of pid, faulting it in if needed.
func (a *DemandPagingAllocator) AccessPage(pid, page int, isWrite bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.accessLocked(pid, page, isWrite)
	return ok
}

func (a *DemandPagingAllocator) accessLocked(pid, page int, isWrite bool) (*pageEntry, bool) {
	table, ok := a.tables[pid]
	if !ok || page < 0 || page >= len(table.pages) {
		return nil, false
	}
	entry := &table.pages[page]
	a.clock++

	if entry.present {
		entry.referenced = true
		if isWrite {
			entry.dirty = true
			a.dropSlot(entry)
		}
		a.lastUsed[entry.frame] = a.clock
		return entry, true
	}

	a.faults++
	frame, ok := a.frames.acquire(pid, page)
	if !ok {
		if a.frames.size == 0 {
			return nil, false
		}
		frame = a.findVictimFrame()
		if !a.swapOut(frame) {
			return nil, false
		}
		a.evictions++
		// swapOut returned the victim to the free list
		frame, _ = a.frames.acquire(pid, page)
	}

	if entry.slot > 0 {
		if !a.swapIn(entry, frame) {
			a.frames.release(frame)
			return nil, false
		}
	} else {
		clear(a.data[frame])
	}

	entry.present = true
	entry.referenced = true
	entry.dirty = isWrite
	if isWrite {
		a.dropSlot(entry)
	}
	entry.frame = frame
	a.lastUsed[frame] = a.clock
	a.pagedIn++
	return entry, true
}

// findVictimFrame picks the occupied frame with the oldest access. Ties go
// to the lowest frame index.
func (a *DemandPagingAllocator) findVictimFrame() int {
	victim := noOwner
	for _, frame := range a.frames.occupiedFrames() {
		if victim == noOwner || a.lastUsed[frame] < a.lastUsed[victim] {
			victim = frame
		}
	}
	return victim
}

// swapOut frees frame, writing its page to the backing store only if dirty.
func (a *DemandPagingAllocator) swapOut(frame int) bool {
	owner, ok := a.frames.owner(frame)
	if !ok {
		return false
	}
	table, ok := a.tables[owner.pid]
	if !ok || owner.page >= len(table.pages) {
		return false
	}
	entry := &table.pages[owner.page]

	if entry.dirty {
		if a.store == nil {
			a.log.WithField("pid", owner.pid).Warn("cannot swap out dirty page without a backing store")
			return false
		}
		slot, err := a.store.Store(a.data[frame])
		if err != nil {
			a.log.WithError(err).WithField("pid", owner.pid).Error("swap out failed")
			return false
		}
		a.dropSlot(entry)
		entry.slot = slot
	}

	entry.present = false
	entry.dirty = false
	entry.referenced = false
	entry.frame = noOwner
	a.frames.release(frame)
	a.pagedOut++
	return true
}

// swapIn loads entry's backing slot into frame. The slot stays bound to the
// page as its clean copy.
func (a *DemandPagingAllocator) swapIn(entry *pageEntry, frame int) bool {
	if a.store == nil {
		return false
	}
	page, err := a.store.Load(entry.slot)
	if err != nil {
		a.log.WithError(err).Error("swap in failed")
		return false
	}
	copy(a.data[frame], page)
	return true
}

// dropSlot releases the backing copy of entry once it is stale.
func (a *DemandPagingAllocator) dropSlot(entry *pageEntry) {
	if entry.slot > 0 && a.store != nil {
		a.store.Release(entry.slot)
	}
	entry.slot = 0
}

// WriteWord stores a 16-bit value at a byte address of pid's space,
// faulting the page in as a write.
func (a *DemandPagingAllocator) WriteWord(pid int, addr uint32, value uint16) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	page, off, ok := a.locate(addr)
	if !ok {
		return false
	}
	entry, ok := a.accessLocked(pid, page, true)
	if !ok {
		return false
	}
	binary.LittleEndian.PutUint16(a.data[entry.frame][off:], value)
	return true
}

// ReadWord loads a 16-bit value from a byte address of pid's space.
func (a *DemandPagingAllocator) ReadWord(pid int, addr uint32) (uint16, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	page, off, ok := a.locate(addr)
	if !ok {
		return 0, false
	}
	entry, ok := a.accessLocked(pid, page, false)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint16(a.data[entry.frame][off:]), true
}

// locate splits addr into a page and an offset that leaves room for a word.
func (a *DemandPagingAllocator) locate(addr uint32) (int, int, bool) {
	if a.frameSize < 2 {
		return 0, 0, false
	}
	page, off := int(addr)/a.frameSize, int(addr)%a.frameSize
	if off+2 > a.frameSize {
		return 0, 0, false
	}
	return page, off, true
}

// Page reports the page-table entry of pid's page.
func (a *DemandPagingAllocator) Page(pid, page int) (PageInfo, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	table, ok := a.tables[pid]
	if !ok || page < 0 || page >= len(table.pages) {
		return PageInfo{}, false
	}
	e := table.pages[page]
	return PageInfo{Present: e.present, Dirty: e.dirty, Referenced: e.referenced, Frame: e.frame, Slot: e.slot}, true
}

// BackingData reads the swapped-out contents of pid's page.
func (a *DemandPagingAllocator) BackingData(pid, page int) ([]byte, bool) {
	info, ok := a.Page(pid, page)
	if !ok || info.Slot == 0 || a.store == nil {
		return nil, false
	}
	data, err := a.store.Load(info.Slot)
	if err != nil {
		return nil, false
	}
	return data, true
}

// OccupiedFrames lists every occupied frame in ascending order.
func (a *DemandPagingAllocator) OccupiedFrames() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames.occupiedFrames()
}

// FramesOf lists the frames currently holding pages of pid.
func (a *DemandPagingAllocator) FramesOf(pid int) []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames.ownedBy(pid)
}

func (a *DemandPagingAllocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statsLocked()
}

func (a *DemandPagingAllocator) statsLocked() Stats {
	used := a.frames.usedCount()
	total := a.frames.size * a.frameSize
	s := Stats{
		TotalMemory: total,
		UsedMemory:  used * a.frameSize,
		FreeMemory:  total - used*a.frameSize,
		Processes:   len(a.tables),
		TotalFrames: a.frames.size,
		UsedFrames:  used,
		PageFaults:  a.faults,
		PagedIn:     a.pagedIn,
		PagedOut:    a.pagedOut,
		Evictions:   a.evictions,
	}
	if a.store != nil {
		s.BackingSlots = a.store.InUse()
	}
	return s
}

func (a *DemandPagingAllocator) VisualizeMemory() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.statsLocked()
	var b strings.Builder
	report.Title(&b, "Demand paging memory")

	frames := make([][]string, 0, a.frames.size)
	for frame := 0; frame < a.frames.size; frame++ {
		o, ok := a.frames.owner(frame)
		if !ok {
			frames = append(frames, []string{fmt.Sprint(frame), "free", "", "", ""})
			continue
		}
		frames = append(frames, []string{
			fmt.Sprint(frame),
			a.tables[o.pid].name,
			fmt.Sprint(o.pid),
			fmt.Sprint(o.page),
			fmt.Sprint(a.lastUsed[frame]),
		})
	}
	report.Table(&b, []string{"Frame", "Process", "PID", "Page", "Last access"}, frames)

	pids := make([]int, 0, len(a.tables))
	for pid := range a.tables {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	var pages [][]string
	for _, pid := range pids {
		table := a.tables[pid]
		for n, e := range table.pages {
			var where string
			switch {
			case e.present:
				where = fmt.Sprintf("frame %d", e.frame)
				if e.dirty {
					where += " (dirty)"
				}
				if e.referenced {
					where += " (ref)"
				}
				if e.slot > 0 {
					where += fmt.Sprintf(" (copy in slot %d)", e.slot)
				}
			case e.slot > 0:
				where = fmt.Sprintf("swapped (slot %d)", e.slot)
			default:
				where = "not loaded"
			}
			pages = append(pages, []string{table.name, fmt.Sprint(n), where})
		}
	}
	if len(pages) > 0 {
		report.Table(&b, []string{"Process", "Page", "Location"}, pages)
	}

	store := "unavailable"
	if a.store != nil {
		store = a.store.Path()
	}
	report.KeyValues(&b, [][2]string{
		{"Page faults", fmt.Sprint(s.PageFaults)},
		{"Frames used / total", fmt.Sprintf("%d / %d", s.UsedFrames, s.TotalFrames)},
		{"Backing store", store},
		{"Pages in backing store", fmt.Sprint(s.BackingSlots)},
		{"Pages paged in", fmt.Sprint(s.PagedIn)},
		{"Pages paged out", fmt.Sprint(s.PagedOut)},
		{"Evictions", fmt.Sprint(s.Evictions)},
	})
	return b.String()
}

func (a *DemandPagingAllocator) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
