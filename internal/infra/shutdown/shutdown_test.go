package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"syscall"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_ReverseOrder(t *testing.T) {
	h := NewHandler(time.Second, quietLogger())

	var order []string
	for _, name := range []string{"raft", "mesh", "admin"} {
		h.OnShutdown(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	if err := h.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := strings.Join(order, ","); got != "admin,mesh,raft" {
		t.Errorf("order = %s, want admin,mesh,raft", got)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done() not closed after Shutdown()")
	}
}

func TestHandler_JoinsErrors(t *testing.T) {
	h := NewHandler(time.Second, quietLogger())
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	var ranLast bool
	h.OnShutdown("last", func(context.Context) error {
		ranLast = true
		return nil
	})
	h.OnShutdown("b", func(context.Context) error { return errB })
	h.OnShutdown("a", func(context.Context) error { return errA })

	err := h.Shutdown()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Shutdown() error = %v, want both hook errors", err)
	}
	if !strings.Contains(err.Error(), "a: a failed") {
		t.Errorf("error %q does not name the hook", err)
	}
	if !ranLast {
		t.Error("a failing hook stopped the remaining hooks")
	}
}

func TestHandler_ShutdownOnce(t *testing.T) {
	h := NewHandler(time.Second, quietLogger())
	calls := 0
	h.OnShutdown("count", func(context.Context) error {
		calls++
		return nil
	})

	h.Shutdown()
	h.Shutdown()
	if calls != 1 {
		t.Errorf("hook ran %d times, want 1", calls)
	}
}

func TestHandler_HookDeadline(t *testing.T) {
	h := NewHandler(50*time.Millisecond, quietLogger())
	h.OnShutdown("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	err := h.Shutdown()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("hook deadline was not applied")
	}
}

func TestHandler_WaitContextCancel(t *testing.T) {
	h := NewHandler(time.Second, quietLogger())
	ran := make(chan struct{})
	h.OnShutdown("hook", func(context.Context) error {
		close(ran)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after cancel")
	}
	<-ran
}

func TestHandler_WaitSignal(t *testing.T) {
	h := NewHandler(time.Second, quietLogger())
	h.OnShutdown("hook", func(context.Context) error { return nil })

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(context.Background()) }()

	// Give Wait time to install the signal handler.
	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("send SIGTERM: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after SIGTERM")
	}
}
