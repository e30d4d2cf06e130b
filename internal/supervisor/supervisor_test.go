package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"nimctl/internal/config"
	"nimctl/internal/status"
)

func TestRun_AllThreadsExitCleanlyOnParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())

	threads := []Thread{
		{Name: "a", Run: func(ctx context.Context) error { <-ctx.Done(); return nil }},
		{Name: "b", Run: func(ctx context.Context) error { <-ctx.Done(); return nil }},
	}
	sv := New(threads)

	done := make(chan error, 1)
	go func() { done <- sv.Run(parent) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after parent cancellation")
	}
}

func TestRun_OneThreadErrorCancelsAllAndIsReturned(t *testing.T) {
	wantErr := errors.New("boom")
	threads := []Thread{
		{Name: "failing", Run: func(ctx context.Context) error { return wantErr }},
		{Name: "obedient", Run: func(ctx context.Context) error { <-ctx.Done(); return nil }},
	}
	sv := New(threads)

	done := make(chan error, 1)
	go func() { done <- sv.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Fatalf("Run returned %v, want %v", err, wantErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after a thread's fatal error")
	}
}

func TestRun_FirstErrorWins(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	release := make(chan struct{})

	threads := []Thread{
		{Name: "first", Run: func(ctx context.Context) error { return first }},
		{Name: "second", Run: func(ctx context.Context) error {
			<-release
			return second
		}},
	}
	sv := New(threads)

	done := make(chan error, 1)
	go func() { done <- sv.Run(context.Background()) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	close(release)

	if !errors.Is(err, first) {
		t.Fatalf("Run returned %v, want the first error %v", err, first)
	}
}

type fakeEmitter struct {
	calls int
}

func (f *fakeEmitter) Emit(tuner config.TunerID, snap status.Snapshot, now time.Time) error {
	f.calls++
	return nil
}

func TestRunJSONEmitter_StopsOnContextCancel(t *testing.T) {
	emitter := &fakeEmitter{}
	tuners := map[config.TunerID]*status.Bus{config.Tuner1: status.New()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunJSONEmitter(ctx, emitter, tuners) }()

	time.Sleep(250 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunJSONEmitter returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunJSONEmitter did not exit after cancellation")
	}
	if emitter.calls == 0 {
		t.Fatal("expected at least one Emit call before cancellation")
	}
}

func TestRunJSONEmitter_PropagatesEmitterError(t *testing.T) {
	wantErr := errors.New("stdout closed")
	tuners := map[config.TunerID]*status.Bus{config.Tuner1: status.New()}

	err := RunJSONEmitter(context.Background(), emitFunc(func(config.TunerID, status.Snapshot, time.Time) error {
		return wantErr
	}), tuners)
	if !errors.Is(err, wantErr) {
		t.Fatalf("RunJSONEmitter returned %v, want %v", err, wantErr)
	}
}

type emitFunc func(config.TunerID, status.Snapshot, time.Time) error

func (f emitFunc) Emit(tuner config.TunerID, snap status.Snapshot, now time.Time) error {
	return f(tuner, snap, now)
}
