package shutdown

import (
	"context"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

func TestSignalCancelsAndIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	ctx, stop := notifyOn(context.Background(), log, syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("send signal: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("context not cancelled after signal")
	}

	entries := logs.FilterMessage("shutdown signal received").All()
	if len(entries) != 1 {
		t.Fatalf("signal log entries: want=1 got=%d", len(entries))
	}
	if got := entries[0].ContextMap()["signal"]; got != syscall.SIGUSR1.String() {
		t.Fatalf("signal field: want=%q got=%v", syscall.SIGUSR1.String(), got)
	}
}

func TestStopReleasesWithoutLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	ctx, stop := NotifyContext(context.Background(), log)
	stop()

	if ctx.Err() == nil {
		t.Fatalf("ctx err after stop: want=canceled got=nil")
	}
	// the watcher goroutine may still be draining; nothing it does may log
	time.Sleep(10 * time.Millisecond)
	if n := logs.Len(); n != 0 {
		t.Fatalf("log entries after stop: want=0 got=%d", n)
	}
}

func TestTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "")
	if got := Timeout(); got != defaultTimeout {
		t.Fatalf("default timeout: want=%v got=%v", defaultTimeout, got)
	}
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "40")
	if got := Timeout(); got != 40*time.Second {
		t.Fatalf("timeout: want=40s got=%v", got)
	}
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "-3")
	if got := Timeout(); got != defaultTimeout {
		t.Fatalf("negative timeout: want=%v got=%v", defaultTimeout, got)
	}
}
