package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/jar0582/CSCE4600/csopesy/report"
)

// PagingAllocator loads every page of a process up front. There is no
// eviction: when fewer frames are free than a process has pages, the
// allocation fails and nothing is held.
type PagingAllocator struct {
	mu        sync.Mutex
	log       log.FieldLogger
	frameSize int
	frames    *frameTable
	names     map[int]string

	pagedIn  int64
	pagedOut int64
}

func NewPagingAllocator(totalMemory, frameSize int, logger log.FieldLogger) *PagingAllocator {
	numFrames := 0
	if frameSize > 0 {
		numFrames = totalMemory / frameSize
	}
	return &PagingAllocator{
		log:       logger.WithField("component", "paging-allocator"),
		frameSize: frameSize,
		frames:    newFrameTable(numFrames),
		names:     make(map[int]string),
	}
}

func (a *PagingAllocator) Allocate(req Request) (Handle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pid := req.PID()
	if _, ok := a.names[pid]; ok {
		return a.firstFrame(pid), true
	}

	need := req.NumPages()
	if need > a.frames.freeCount() {
		a.log.WithFields(log.Fields{
			"pid":   pid,
			"pages": need,
			"free":  a.frames.freeCount(),
		}).Debug("not enough free frames")
		return 0, false
	}

	for page := 0; page < need; page++ {
		a.frames.acquire(pid, page)
	}
	a.names[pid] = req.Name()
	a.pagedIn += int64(need)
	return a.firstFrame(pid), true
}

func (a *PagingAllocator) firstFrame(pid int) Handle {
	if frames := a.frames.ownedBy(pid); len(frames) > 0 {
		return Handle(frames[0])
	}
	return 0
}

func (a *PagingAllocator) Deallocate(req Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pid := req.PID()
	if _, ok := a.names[pid]; !ok {
		return
	}
	for _, frame := range a.frames.ownedBy(pid) {
		a.frames.release(frame)
		a.pagedOut++
	}
	delete(a.names, pid)
}

// FramesOf lists the frames held by pid in ascending order.
func (a *PagingAllocator) FramesOf(pid int) []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames.ownedBy(pid)
}

// OccupiedFrames lists every occupied frame in ascending order.
func (a *PagingAllocator) OccupiedFrames() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames.occupiedFrames()
}

func (a *PagingAllocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statsLocked()
}

func (a *PagingAllocator) statsLocked() Stats {
	used := a.frames.usedCount()
	total := a.frames.size * a.frameSize
	return Stats{
		TotalMemory: total,
		UsedMemory:  used * a.frameSize,
		FreeMemory:  total - used*a.frameSize,
		Processes:   len(a.names),
		TotalFrames: a.frames.size,
		UsedFrames:  used,
		PagedIn:     a.pagedIn,
		PagedOut:    a.pagedOut,
	}
}

func (a *PagingAllocator) VisualizeMemory() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.statsLocked()
	var b strings.Builder
	report.Title(&b, "Paging memory")
	report.KeyValues(&b, [][2]string{
		{"Frames used / total", fmt.Sprintf("%d / %d", s.UsedFrames, s.TotalFrames)},
		{"Frame size", fmt.Sprint(a.frameSize)},
		{"Processes in memory", fmt.Sprint(s.Processes)},
		{"Pages paged in", fmt.Sprint(s.PagedIn)},
		{"Pages paged out", fmt.Sprint(s.PagedOut)},
	})

	rows := make([][]string, 0, a.frames.size)
	for frame := 0; frame < a.frames.size; frame++ {
		if o, ok := a.frames.owner(frame); ok {
			rows = append(rows, []string{fmt.Sprint(frame), a.names[o.pid], fmt.Sprint(o.pid), fmt.Sprint(o.page)})
		} else {
			rows = append(rows, []string{fmt.Sprint(frame), "free", "", ""})
		}
	}
	report.Table(&b, []string{"Frame", "Process", "PID", "Page"}, rows)

	pids := make([]int, 0, len(a.names))
	for pid := range a.names {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	for _, pid := range pids {
		_, _ = fmt.Fprintf(&b, "%s (pid %d): frames %v\n", a.names[pid], pid, a.frames.ownedBy(pid))
	}
	return b.String()
}

func (a *PagingAllocator) Close() error { return nil }
