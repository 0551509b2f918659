package memory

import (
	"sort"

	"github.com/Workiva/go-datastructures/bitarray"
)

const noOwner = -1

type frameOwner struct {
	pid  int
	page int
}

// frameTable tracks physical frames: an occupancy bitmap, the owner of each
// frame and a free list handing out the lowest index first. Callers hold the
// allocator mutex.
type frameTable struct {
	size     int
	occupied bitarray.BitArray
	owners   []frameOwner
	free     []int
}

func newFrameTable(size int) *frameTable {
	t := &frameTable{
		size:     size,
		occupied: bitarray.NewBitArray(uint64(max(size, 1))),
		owners:   make([]frameOwner, size),
		free:     make([]int, 0, size),
	}
	for i := size - 1; i >= 0; i-- {
		t.owners[i] = frameOwner{pid: noOwner, page: noOwner}
		t.free = append(t.free, i)
	}
	return t
}

func (t *frameTable) freeCount() int { return len(t.free) }
func (t *frameTable) usedCount() int { return t.size - len(t.free) }

// acquire pops a free frame and assigns it.
func (t *frameTable) acquire(pid, page int) (int, bool) {
	if len(t.free) == 0 {
		return 0, false
	}
	frame := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	t.assign(frame, pid, page)
	return frame, true
}

// assign gives an already-reserved frame a new owner.
func (t *frameTable) assign(frame, pid, page int) {
	_ = t.occupied.SetBit(uint64(frame))
	t.owners[frame] = frameOwner{pid: pid, page: page}
}

// release frees frame and returns it to the free list.
func (t *frameTable) release(frame int) {
	if !t.isOccupied(frame) {
		return
	}
	_ = t.occupied.ClearBit(uint64(frame))
	t.owners[frame] = frameOwner{pid: noOwner, page: noOwner}
	t.free = append(t.free, frame)
	// keep the lowest index on top of the stack
	sort.Sort(sort.Reverse(sort.IntSlice(t.free)))
}

func (t *frameTable) isOccupied(frame int) bool {
	if frame < 0 || frame >= t.size {
		return false
	}
	set, err := t.occupied.GetBit(uint64(frame))
	return err == nil && set
}

func (t *frameTable) owner(frame int) (frameOwner, bool) {
	if !t.isOccupied(frame) {
		return frameOwner{pid: noOwner, page: noOwner}, false
	}
	return t.owners[frame], true
}

// ownedBy scans the frame map for every frame held by pid.
func (t *frameTable) ownedBy(pid int) []int {
	var frames []int
	for _, n := range t.occupiedFrames() {
		if t.owners[n].pid == pid {
			frames = append(frames, n)
		}
	}
	return frames
}

// occupiedFrames lists occupied frame indices in ascending order.
func (t *frameTable) occupiedFrames() []int {
	nums := t.occupied.ToNums()
	frames := make([]int, 0, len(nums))
	for _, n := range nums {
		if int(n) < t.size {
			frames = append(frames, int(n))
		}
	}
	return frames
}
