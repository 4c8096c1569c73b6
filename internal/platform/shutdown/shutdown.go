package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/damagegraph-backend/internal/platform/envutil"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

const defaultTimeout = 15 * time.Second

// NotifyContext is cancelled on SIGINT or SIGTERM. The received signal is logged so an
// interrupted ingest can be told apart from one that failed.
func NotifyContext(parent context.Context, log *logger.Logger) (context.Context, context.CancelFunc) {
	return notifyOn(parent, log, syscall.SIGINT, syscall.SIGTERM)
}

func notifyOn(parent context.Context, log *logger.Logger, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go func() {
		select {
		case sig := <-ch:
			if log != nil {
				log.Info("shutdown signal received", "signal", sig.String())
			}
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(ch)
		cancel()
	}
}

// Timeout bounds how long in-flight requests and graph writes get to drain.
func Timeout() time.Duration {
	return envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", defaultTimeout)
}
