package journal

// EvictionReason explains why a frame left the buffer.
type EvictionReason string

const (
	// EvictCapacity marks a frame overwritten because the ring was full.
	EvictCapacity EvictionReason = "capacity"
	// EvictMemory marks a frame dropped by the memory governor.
	EvictMemory EvictionReason = "memory"
)

// Eviction describes a frame removed from the buffer and why.
type Eviction struct {
	Step        uint64
	DeltaCount  int
	MemoryBytes int
	Reason      EvictionReason
}

// Buffer is a fixed-capacity ring of sealed frames plus a byte accountant.
// The valid frames always form a contiguous run ending at the slot before
// the write cursor. The buffer is owned by the scheduling goroutine; it
// performs no internal locking.
type Buffer struct {
	frames   []*Frame
	capacity int
	cursor   int
	count    int

	memoryBytes int64
	ceiling     int64
	floor       int
}

// NewBuffer constructs a buffer holding up to capacity frames. The memory
// governor evicts oldest frames once the running estimate exceeds
// ceilingBytes, but never below floor frames.
func NewBuffer(capacity int, ceilingBytes int64, floor int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	if floor < 0 {
		floor = 0
	}
	return &Buffer{
		frames:   make([]*Frame, capacity),
		capacity: capacity,
		ceiling:  ceilingBytes,
		floor:    floor,
	}
}

// Len reports the number of valid frames.
func (b *Buffer) Len() int { return b.count }

// Capacity reports the fixed frame capacity.
func (b *Buffer) Capacity() int { return b.capacity }

// MemoryBytes reports the running total memory estimate.
func (b *Buffer) MemoryBytes() int64 { return b.memoryBytes }

// MemoryCeiling reports the configured governor ceiling.
func (b *Buffer) MemoryCeiling() int64 { return b.ceiling }

// OldestStep reports the step of the oldest valid frame. The second return
// is false when the buffer is empty.
func (b *Buffer) OldestStep() (uint64, bool) {
	if b.count == 0 {
		return 0, false
	}
	oldest := b.frames[b.oldestIndex()]
	if oldest == nil {
		return 0, false
	}
	return oldest.Step(), true
}

func (b *Buffer) oldestIndex() int {
	return ((b.cursor-b.count)%b.capacity + b.capacity) % b.capacity
}

// Commit seals the frame and writes it at the cursor, evicting the oldest
// frame when the ring is full. It returns the eviction, if any.
func (b *Buffer) Commit(f *Frame) (Eviction, bool) {
	if f == nil {
		return Eviction{}, false
	}
	f.Seal()

	var evicted Eviction
	var hasEviction bool
	if b.count == b.capacity {
		if old := b.frames[b.cursor]; old != nil {
			b.memoryBytes -= int64(old.MemoryBytes())
			evicted = Eviction{
				Step:        old.Step(),
				DeltaCount:  old.DeltaCount(),
				MemoryBytes: old.MemoryBytes(),
				Reason:      EvictCapacity,
			}
			hasEviction = true
		}
	}

	b.frames[b.cursor] = f
	b.memoryBytes += int64(f.MemoryBytes())
	b.cursor = (b.cursor + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
	return evicted, hasEviction
}

// EnforceCeiling runs the memory governor: while the total estimate
// exceeds the ceiling and the frame count exceeds the floor, the single
// oldest frame is evicted. Returns the evictions in oldest-first order.
func (b *Buffer) EnforceCeiling() []Eviction {
	if b.ceiling <= 0 {
		return nil
	}
	var evictions []Eviction
	for b.memoryBytes > b.ceiling && b.count > b.floor {
		idx := b.oldestIndex()
		old := b.frames[idx]
		if old != nil {
			b.memoryBytes -= int64(old.MemoryBytes())
			evictions = append(evictions, Eviction{
				Step:        old.Step(),
				DeltaCount:  old.DeltaCount(),
				MemoryBytes: old.MemoryBytes(),
				Reason:      EvictMemory,
			})
			b.frames[idx] = nil
		}
		b.count--
	}
	return evictions
}

// Frames returns up to k most recently committed frames, newest first.
// The returned frames are sealed and must be treated as read-only.
func (b *Buffer) Frames(k int) []*Frame {
	if k > b.count {
		k = b.count
	}
	if k <= 0 {
		return nil
	}
	result := make([]*Frame, 0, k)
	idx := ((b.cursor-1)%b.capacity + b.capacity) % b.capacity
	for i := 0; i < k; i++ {
		if f := b.frames[idx]; f != nil {
			result = append(result, f)
		}
		idx = ((idx-1)%b.capacity + b.capacity) % b.capacity
	}
	return result
}

// DiscardMostRecent removes the k most recently committed frames. It is
// called after a successful rewind: once the live state has been restored
// past that span, those frames no longer describe a valid future. Returns
// the number of frames actually discarded.
func (b *Buffer) DiscardMostRecent(k int) int {
	if k > b.count {
		k = b.count
	}
	for i := 0; i < k; i++ {
		b.cursor = ((b.cursor-1)%b.capacity + b.capacity) % b.capacity
		if f := b.frames[b.cursor]; f != nil {
			b.memoryBytes -= int64(f.MemoryBytes())
			b.frames[b.cursor] = nil
		}
		b.count--
	}
	return k
}

// Clear drops every frame and resets the accountant.
func (b *Buffer) Clear() {
	for i := range b.frames {
		b.frames[i] = nil
	}
	b.cursor = 0
	b.count = 0
	b.memoryBytes = 0
}
