package publish

import (
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/charmbracelet/log"

	"nimctl/internal/nimlog"
)

// FIFOSink is spec.md §4.6's FIFO status/TS sink: the same line format
// as the UDP status sink, written to a named pipe that "must gracefully
// handle the pipe being closed by the reader (ignore write errors,
// reopen on demand)". Shared between the status and TS-payload paths,
// since spec.md §4.4 names FIFO as a valid TS sink too.
type FIFOSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	log  *log.Logger
}

// NewFIFOSink wraps an already-created named pipe at path. The pipe is
// opened lazily on first write, and reopened whenever a write fails.
func NewFIFOSink(path string) *FIFOSink {
	return &FIFOSink{path: path, log: nimlog.For("publish.fifo")}
}

// Write ignores any failure (a closed reader is not an error the
// pipeline should propagate) and marks the pipe for reopening on the
// next call.
func (s *FIFOSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		if err := s.open(); err != nil {
			return nil
		}
	}
	if _, err := s.f.Write(p); err != nil {
		s.log.Warn("FIFO write failed, will reopen on next write", "path", s.path, "err", err)
		s.f.Close()
		s.f = nil
	}
	return nil
}

// open performs the actual open call. The FIFO is opened non-blocking,
// so with no reader attached the open fails at once (ENXIO) and the next
// Write tries again, spec.md's "reopen on demand" contract.
func (s *FIFOSink) open() error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		s.log.Warn("FIFO open failed, will retry on next write", "path", s.path, "err", err)
		return err
	}
	s.f = f
	return nil
}

// Publish emits one line per field, same wire format as
// UDPStatusPublisher (spec.md §4.6).
func (s *FIFOSink) Publish(fs []Field) error {
	for _, f := range fs {
		line := fmt.Sprintf("$%d,%s\n", f.Code, f.Value)
		_ = s.Write([]byte(line))
	}
	return nil
}

func (s *FIFOSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
