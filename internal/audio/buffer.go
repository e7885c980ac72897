package audio

import (
	"sync"
)

// RingBuffer is a thread-safe ring buffer for audio data
type RingBuffer struct {
	buffer []byte
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewRingBuffer creates a new ring buffer with the specified size
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write writes data to the ring buffer
// Returns the number of bytes written (may be less than len(data) if buffer is full)
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for written < len(data) {
		// One slot is kept open to distinguish full from empty
		space := rb.spaceLocked()
		if space == 0 {
			break
		}

		// Largest contiguous run we can copy in one go
		chunk := rb.size - rb.write
		if chunk > space {
			chunk = space
		}
		if chunk > len(data)-written {
			chunk = len(data) - written
		}

		copy(rb.buffer[rb.write:], data[written:written+chunk])
		rb.write = (rb.write + chunk) % rb.size
		written += chunk
	}

	return written
}

// Read reads data from the ring buffer
// Returns the number of bytes read
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for read < len(data) {
		avail := rb.availableLocked()
		if avail == 0 {
			break
		}

		chunk := rb.size - rb.read
		if chunk > avail {
			chunk = avail
		}
		if chunk > len(data)-read {
			chunk = len(data) - read
		}

		copy(data[read:read+chunk], rb.buffer[rb.read:rb.read+chunk])
		rb.read = (rb.read + chunk) % rb.size
		read += chunk
	}

	return read
}

func (rb *RingBuffer) availableLocked() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

func (rb *RingBuffer) spaceLocked() int {
	return rb.size - rb.availableLocked() - 1
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.availableLocked()
}

// Space returns the number of bytes available to write
func (rb *RingBuffer) Space() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.spaceLocked()
}

// Clear clears the buffer
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.read = 0
	rb.write = 0
}

// IsEmpty returns true if the buffer is empty
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.read == rb.write
}

// IsFull returns true if the buffer is full
func (rb *RingBuffer) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.spaceLocked() == 0
}
