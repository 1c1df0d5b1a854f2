package tsdemux

import (
	"bytes"
	"sync"
	"testing"
)

func TestRingBufferPutGetDel(t *testing.T) {
	rb := NewRingBuffer(16)

	if n := rb.Put([]byte("hello")); n != 5 {
		t.Fatalf("expected 5 bytes accepted, got %d", n)
	}
	if got := rb.Get(); !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("expected 'hello', got %q", got)
	}

	rb.Del(2)
	if got := rb.Get(); !bytes.Equal(got, []byte("llo")) {
		t.Fatalf("expected 'llo' after Del(2), got %q", got)
	}
}

func TestRingBufferPutRejectsOverCapacity(t *testing.T) {
	rb := NewRingBuffer(4)

	n := rb.Put([]byte("abcdef"))
	if n != 4 {
		t.Fatalf("expected only 4 bytes accepted, got %d", n)
	}
	rb.ReportOverflow(6 - n)
	if rb.Overflow() != 2 {
		t.Fatalf("expected overflow count 2, got %d", rb.Overflow())
	}
}

func TestRingBufferCompactsOnWraparound(t *testing.T) {
	rb := NewRingBuffer(8)

	rb.Put([]byte("abcdefgh")) // fills capacity exactly
	rb.Del(6)                  // consume most of it, leaving "gh"

	n := rb.Put([]byte("ijklmn")) // must compact to make room
	if n != 6 {
		t.Fatalf("expected 6 bytes accepted after compaction, got %d", n)
	}
	if got := rb.Get(); !bytes.Equal(got, []byte("ghijklmn")) {
		t.Fatalf("expected 'ghijklmn' after compaction, got %q", got)
	}
}

func TestRingBufferDelPastTailClampsToEmpty(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Put([]byte("abc"))
	rb.Del(100)

	if rb.Available() != 0 {
		t.Fatalf("expected 0 available after over-consuming, got %d", rb.Available())
	}
}

func TestRingBufferClear(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Put([]byte("abc"))
	rb.Clear()

	if rb.Available() != 0 {
		t.Fatalf("expected 0 available after Clear, got %d", rb.Available())
	}
	if rb.Overflow() != 0 {
		t.Fatalf("expected Clear to leave overflow counter untouched, got %d", rb.Overflow())
	}
}

func TestRingBufferDefaultCapacity(t *testing.T) {
	rb := NewRingBuffer(0)
	if rb.capacity != 64*1024 {
		t.Fatalf("expected default capacity of 64KiB, got %d", rb.capacity)
	}
}

func TestRingBufferConcurrentPutAndGet(t *testing.T) {
	rb := NewRingBuffer(1 << 16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			rb.Put([]byte("x"))
		}
	}()

	for i := 0; i < 100; i++ {
		_ = rb.Get()
		_ = rb.Available()
	}
	wg.Wait()
}
