// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package persist implements the engine's persisted state file: a single
// mmap-backed region keyed by persist name, holding each source's last
// acked bookmark across restarts. Disk-queue head markers and window
// allocations are not stored here; a disk queue keeps its own ack
// watermark inside its segments. The mmap mechanism itself is grounded on
// golang.org/x/sys/unix.Mmap as used for shared memory-mapped regions
// elsewhere in the retrieval pack (ehrlich-b-go-ublk's io_uring queue
// setup); here it maps a regular file instead of a ring-buffer device.
package persist

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Magic + version header identifying the persisted state file format.
var magic = [4]byte{'L', 'P', 'S', 'T'}

const headerVersion = 1

// recordSize is the fixed size of one persisted entry: a 64-byte
// zero-padded name plus an 8-byte uint64 bookmark value.
const (
	nameSize   = 64
	recordSize = nameSize + 8
	headerSize = 8 // magic(4) + version(1) + pad(3)
)

// File is an mmap-backed table of name -> uint64 bookmark values. Writes
// go straight to the mapped region (write-through); Sync explicitly
// flushes to durable storage via msync.
type File struct {
	mu       sync.Mutex
	f        *os.File
	data     []byte
	capacity int // max number of records the current mapping holds
}

// Open opens or creates the persisted state file at path, growing it to
// hold at least capacity records if it doesn't already exist.
func Open(path string, capacity int) (*File, error) {
	if capacity <= 0 {
		capacity = 256
	}
	size := headerSize + capacity*recordSize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("persist: opening %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("persist: truncating %s: %w", path, err)
		}
	} else {
		size = int(info.Size())
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("persist: mmap %s: %w", path, err)
	}

	pf := &File{f: f, data: data, capacity: (size - headerSize) / recordSize}
	pf.ensureHeader()
	return pf, nil
}

func (pf *File) ensureHeader() {
	if pf.data[0] == 0 && pf.data[1] == 0 && pf.data[2] == 0 && pf.data[3] == 0 {
		copy(pf.data[0:4], magic[:])
		pf.data[4] = headerVersion
	}
}

// Set writes the bookmark for name, creating the slot if it's new. It
// returns an error if the table is full; the mapping is never grown.
func (pf *File) Set(name string, bookmark uint64) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	idx, err := pf.findOrAllocateLocked(name)
	if err != nil {
		return err
	}
	off := headerSize + idx*recordSize + nameSize
	binary.BigEndian.PutUint64(pf.data[off:off+8], bookmark)
	return nil
}

// Get reads the bookmark for name, returning (0, false) if name has
// never been persisted.
func (pf *File) Get(name string) (uint64, bool) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	idx, ok := pf.findLocked(name)
	if !ok {
		return 0, false
	}
	off := headerSize + idx*recordSize + nameSize
	return binary.BigEndian.Uint64(pf.data[off : off+8]), true
}

func (pf *File) findLocked(name string) (int, bool) {
	nb := []byte(name)
	for i := 0; i < pf.capacity; i++ {
		base := headerSize + i*recordSize
		slot := pf.data[base : base+nameSize]
		if slotEmpty(slot) {
			continue
		}
		if slotMatches(slot, nb) {
			return i, true
		}
	}
	return -1, false
}

func (pf *File) findOrAllocateLocked(name string) (int, error) {
	if idx, ok := pf.findLocked(name); ok {
		return idx, nil
	}
	nb := []byte(name)
	if len(nb) > nameSize {
		return -1, fmt.Errorf("persist: name %q exceeds %d bytes", name, nameSize)
	}
	for i := 0; i < pf.capacity; i++ {
		base := headerSize + i*recordSize
		slot := pf.data[base : base+nameSize]
		if slotEmpty(slot) {
			clear(slot)
			copy(slot, nb)
			return i, nil
		}
	}
	return -1, fmt.Errorf("persist: state file full (capacity %d)", pf.capacity)
}

func slotEmpty(slot []byte) bool {
	for _, b := range slot {
		if b != 0 {
			return false
		}
	}
	return true
}

func slotMatches(slot, name []byte) bool {
	if len(name) > len(slot) {
		return false
	}
	for i, b := range name {
		if slot[i] != b {
			return false
		}
	}
	for i := len(name); i < len(slot); i++ {
		if slot[i] != 0 {
			return false
		}
	}
	return true
}

func clear(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Sync flushes the mapped region to durable storage via msync.
func (pf *File) Sync() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return unix.Msync(pf.data, unix.MS_SYNC)
}

// Close unmaps and closes the backing file.
func (pf *File) Close() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if err := unix.Munmap(pf.data); err != nil {
		return err
	}
	return pf.f.Close()
}
