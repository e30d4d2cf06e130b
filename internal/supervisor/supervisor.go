// Package supervisor implements spec.md §5's process-wide concurrency
// model: one goroutine per named thread (acquisition, TS reader, TS
// parser, status publisher — one set per active tuner, plus one process-
// wide JSON stdout emitter), a single cancellation point standing in
// for the original's process-global main_err, and a join-all-before-
// exit shutdown. Grounded on services/bridge.Service's ctx-cancellation
// idiom (every long-running task here takes a context.Context and
// returns when it is canceled), generalized from that package's single
// goroutine to a fixed fleet of named ones.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"nimctl/internal/config"
	"nimctl/internal/errcode"
	"nimctl/internal/nimlog"
	"nimctl/internal/status"
)

// jsonEmitPeriod is the cadence the process-wide JSON stdout thread
// polls each tuner's Status Snapshot Bus at, independent of any
// publisher's own condvar wait (spec.md §4.6: "one object per
// demodulator cycle").
const jsonEmitPeriod = 200 * time.Millisecond

// Thread is one named, cancelable unit of work (spec.md §5's "thread"),
// run in its own goroutine and joined at shutdown.
type Thread struct {
	Name string
	Run  func(ctx context.Context) error
}

// JSONEmitter is the minimal surface supervisor needs from
// publish.JSONStdoutPublisher, to avoid a dependency on internal/publish
// here (supervisor stays a pure process-wiring package; construction of
// the concrete publishers belongs to the caller, mirroring how
// acquisition/tspipeline/publish are wired together by cmd/nimctl, not
// by each other).
type JSONEmitter interface {
	Emit(tuner config.TunerID, snap status.Snapshot, now time.Time) error
}

// Supervisor runs a fixed fleet of Threads to completion, implementing
// the "single main_err, every loop polls it, main thread joins all
// before releasing resources" contract of spec.md §5 with Go's native
// idiom: one context cancellation point and a WaitGroup join, instead
// of a polled global variable.
type Supervisor struct {
	threads []Thread
	log     *log.Logger

	mu       sync.Mutex
	firstErr error
}

// New builds a Supervisor over the given named threads. Order does not
// matter; all threads start concurrently in Run.
func New(threads []Thread) *Supervisor {
	return &Supervisor{threads: threads, log: nimlog.For("supervisor")}
}

// Run starts every thread, installs the SIGINT/SIGTERM handler spec.md
// §5 names (treated as errcode.SignalTerminate, a clean stop), and
// blocks until every thread has exited — either because one returned a
// fatal error (which cancels the rest) or because a signal arrived.
// SIGPIPE needs no explicit handling: unlike the C original, the Go
// runtime never terminates a process on a write to a closed pipe/socket,
// so a FIFO reader going away surfaces only as a write error the
// FIFOSink already swallows (spec.md §7: "Sink write errors do not take
// down the process").
func (s *Supervisor) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var wg sync.WaitGroup
	for _, th := range s.threads {
		wg.Add(1)
		go func(th Thread) {
			defer wg.Done()
			if err := th.Run(ctx); err != nil && err != context.Canceled {
				s.log.Warn("thread exited with error", "thread", th.Name, "err", err)
				s.recordFatal(err)
				cancel()
			}
		}(th)
	}

	go func() {
		select {
		case <-sigCh:
			s.recordFatal(errcode.SignalTerminate)
			cancel()
		case <-ctx.Done():
		}
	}()

	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// recordFatal keeps the first error observed, per spec.md §6's "non-zero
// matching the first fatal error kind" exit-code rule.
func (s *Supervisor) recordFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstErr == nil {
		s.firstErr = err
	}
}

// RunJSONEmitter polls each listed tuner's Status Snapshot Bus on a
// fixed cadence and feeds it to emitter, standing in for spec.md §4.6's
// "one object per demodulator cycle" when no per-tuner consumer already
// owns that emission (the UDP/FIFO/MQTT status sinks instead drive off
// publish.Loop's condvar wait, per-tuner).
func RunJSONEmitter(ctx context.Context, emitter JSONEmitter, tuners map[config.TunerID]*status.Bus) error {
	ticker := time.NewTicker(jsonEmitPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := time.Now()
			for tuner, sb := range tuners {
				if err := emitter.Emit(tuner, sb.Snapshot(), now); err != nil {
					return err
				}
			}
		}
	}
}
