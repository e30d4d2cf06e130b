package publish

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestFIFOSink_WriteIgnoresErrorsUntilReaderAttaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.fifo")
	if err := syscall.Mkfifo(path, 0600); err != nil {
		t.Fatalf("Mkfifo: %v", err)
	}

	sink := NewFIFOSink(path)

	done := make(chan struct{})
	go func() {
		_ = sink.Write([]byte("first line, no reader yet\n"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked instead of failing to open without a reader")
	}
}

func TestFIFOSink_WriteSucceedsOnceReaderAttached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.fifo")
	if err := syscall.Mkfifo(path, 0600); err != nil {
		t.Fatalf("Mkfifo: %v", err)
	}

	sink := NewFIFOSink(path)

	var wg sync.WaitGroup
	wg.Add(2)

	var readBack []byte
	go func() {
		defer wg.Done()
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			return
		}
		defer f.Close()
		buf := make([]byte, 64)
		n, _ := f.Read(buf)
		readBack = buf[:n]
	}()

	go func() {
		defer wg.Done()
		// Give the reader a moment to open its end: FIFOSink's open is
		// non-blocking and fails while no reader is attached.
		time.Sleep(50 * time.Millisecond)
		if err := sink.Write([]byte("$1,3\n")); err != nil {
			t.Errorf("Write: %v", err)
		}
	}()

	wg.Wait()
	if string(readBack) != "$1,3\n" {
		t.Fatalf("reader saw %q, want %q", readBack, "$1,3\n")
	}
}

func TestFIFOSink_PublishFormatsWireLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.fifo")
	if err := syscall.Mkfifo(path, 0600); err != nil {
		t.Fatalf("Mkfifo: %v", err)
	}
	sink := NewFIFOSink(path)

	var wg sync.WaitGroup
	wg.Add(1)
	var readBack []byte
	go func() {
		defer wg.Done()
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			return
		}
		defer f.Close()
		buf := make([]byte, 64)
		n, _ := f.Read(buf)
		readBack = buf[:n]
	}()

	time.Sleep(50 * time.Millisecond)
	if err := sink.Publish([]Field{{Code: 9, Name: "symbol_rate", Value: "22000"}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	wg.Wait()

	if string(readBack) != "$9,22000\n" {
		t.Fatalf("reader saw %q, want %q", readBack, "$9,22000\n")
	}
}
