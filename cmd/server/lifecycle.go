package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

type stopFn struct {
	name string
	fn   func(context.Context) error
}

// drain holds the process while the load balancer notices the failed
// readiness probe. A second signal cuts it short.
func drain(ctx context.Context, L log.Logger, seconds int) {
	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	L.Info(ctx, "draining", "drain_seconds", seconds)
	t := time.NewTimer(time.Duration(seconds) * time.Second)
	defer t.Stop()
	select {
	case <-t.C:
		L.Info(ctx, "drain period complete")
	case <-force:
		L.Warn(ctx, "second signal received, skipping drain")
	}
}

// stopAll runs each stop function in order. Every component gets an equal
// slice of the total budget. nil functions are skipped.
func stopAll(ctx context.Context, L log.Logger, budgetSeconds int, fns []stopFn) {
	live := fns[:0:0]
	for _, s := range fns {
		if s.fn != nil {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		return
	}

	budget := time.Duration(budgetSeconds) * time.Second
	each := budget / time.Duration(len(live))
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	for _, s := range live {
		cctx, ccancel := context.WithTimeout(ctx, each)
		if err := s.fn(cctx); err != nil {
			L.Error(ctx, err, s.name+" shutdown")
		}
		ccancel()
	}
}

// notifySystemd sends state (READY=1, STOPPING=1) to the socket systemd
// passes in NOTIFY_SOCKET for Type=notify units.
func notifySystemd(state string) error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // addr comes from systemd, unixgram dial has no context variant
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte(state)); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
