package memory

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

var ErrNoBackingSlot = errors.New("no such backing store slot")

// BackingStore is a file of fixed-size page slots. Slot 0 is never handed
// out so a zero offset can mean "not swapped".
type BackingStore struct {
	mu       sync.Mutex
	file     *os.File
	slotSize int
	next     int64
	free     []int64
	inUse    map[int64]struct{}
}

// OpenBackingStore opens or creates the store file at path, truncating any
// previous contents.
func OpenBackingStore(path string, slotSize int) (*BackingStore, error) {
	if slotSize <= 0 {
		return nil, fmt.Errorf("backing store slot size %d", slotSize)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening backing store", err)
	}
	return &BackingStore{
		file:     f,
		slotSize: slotSize,
		next:     1,
		inUse:    make(map[int64]struct{}),
	}, nil
}

// Store writes data into a fresh slot and returns its offset.
func (s *BackingStore) Store(data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.allocateSlot()
	page := make([]byte, s.slotSize)
	copy(page, data)
	if _, err := s.file.WriteAt(page, slot*int64(s.slotSize)); err != nil {
		s.free = append(s.free, slot)
		return 0, fmt.Errorf("%w: writing slot %d", err, slot)
	}
	s.inUse[slot] = struct{}{}
	return slot, nil
}

// Load reads a slot without releasing it.
func (s *BackingStore) Load(slot int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inUse[slot]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoBackingSlot, slot)
	}
	page := make([]byte, s.slotSize)
	if _, err := s.file.ReadAt(page, slot*int64(s.slotSize)); err != nil {
		return nil, fmt.Errorf("%w: reading slot %d", err, slot)
	}
	return page, nil
}

// Release returns a slot to the free list.
func (s *BackingStore) Release(slot int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inUse[slot]; !ok {
		return
	}
	delete(s.inUse, slot)
	s.free = append(s.free, slot)
}

// InUse counts occupied slots.
func (s *BackingStore) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inUse)
}

func (s *BackingStore) Path() string { return s.file.Name() }

func (s *BackingStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// allocateSlot reuses the oldest freed slot before growing the file.
func (s *BackingStore) allocateSlot() int64 {
	if len(s.free) > 0 {
		slot := s.free[0]
		s.free = s.free[1:]
		return slot
	}
	slot := s.next
	s.next++
	return slot
}
