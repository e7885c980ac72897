package audio

import (
	"bytes"
	"testing"
)

func TestRingBuffer_WriteRead(t *testing.T) {
	rb := NewRingBuffer(10)

	written := rb.Write([]byte{1, 2, 3, 4, 5})
	if written != 5 {
		t.Errorf("Expected to write 5 bytes, got %d", written)
	}
	if rb.Available() != 5 {
		t.Errorf("Expected available 5, got %d", rb.Available())
	}

	readBuf := make([]byte, 3)
	read := rb.Read(readBuf)
	if read != 3 {
		t.Errorf("Expected to read 3 bytes, got %d", read)
	}
	if !bytes.Equal(readBuf, []byte{1, 2, 3}) {
		t.Errorf("Read incorrect data: %v", readBuf)
	}
	if rb.Available() != 2 {
		t.Errorf("Expected available 2 after read, got %d", rb.Available())
	}
}

func TestRingBuffer_WriteOverflow(t *testing.T) {
	rb := NewRingBuffer(5)

	// One slot stays open to distinguish full from empty
	written := rb.Write([]byte{1, 2, 3, 4, 5})
	if written != 4 {
		t.Errorf("Expected to write 4 bytes into size-5 buffer, got %d", written)
	}
	if !rb.IsFull() {
		t.Error("Expected buffer to be full after writing size-1 bytes")
	}

	written = rb.Write([]byte{6})
	if written != 0 {
		t.Errorf("Expected to write 0 bytes when full, got %d", written)
	}
}

func TestRingBuffer_ReadEmpty(t *testing.T) {
	rb := NewRingBuffer(10)

	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty initially")
	}

	readBuf := make([]byte, 5)
	if read := rb.Read(readBuf); read != 0 {
		t.Errorf("Expected to read 0 bytes from empty buffer, got %d", read)
	}
}

func TestRingBuffer_ReadMoreThanAvailable(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write([]byte{1, 2, 3})

	readBuf := make([]byte, 10)
	read := rb.Read(readBuf)
	if read != 3 {
		t.Errorf("Expected to read 3 bytes, got %d", read)
	}
	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty after reading all")
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write([]byte{1, 2, 3, 4, 5})

	rb.Clear()
	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty after clear")
	}
	if rb.Space() != 9 {
		t.Errorf("Expected space 9 after clear, got %d", rb.Space())
	}
}

func TestRingBuffer_WrapAround(t *testing.T) {
	rb := NewRingBuffer(5)

	rb.Write([]byte{1, 2, 3, 4})

	readBuf := make([]byte, 2)
	rb.Read(readBuf)

	// This write wraps past the end of the backing array
	rb.Write([]byte{5, 6})
	if rb.Available() != 4 {
		t.Errorf("Expected available 4, got %d", rb.Available())
	}

	readBuf = make([]byte, 4)
	read := rb.Read(readBuf)
	if read != 4 {
		t.Errorf("Expected to read 4 bytes, got %d", read)
	}
	if !bytes.Equal(readBuf, []byte{3, 4, 5, 6}) {
		t.Errorf("Expected [3 4 5 6], got %v", readBuf)
	}
}

func TestRingBuffer_LargeBulkWrite(t *testing.T) {
	rb := NewRingBuffer(1024)

	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i % 251)
	}

	if written := rb.Write(data); written != 1000 {
		t.Fatalf("Expected to write 1000 bytes, got %d", written)
	}

	readBuf := make([]byte, 1000)
	if read := rb.Read(readBuf); read != 1000 {
		t.Fatalf("Expected to read 1000 bytes, got %d", read)
	}
	if !bytes.Equal(readBuf, data) {
		t.Error("Bulk round trip corrupted data")
	}
}
