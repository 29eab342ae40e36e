package health

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap/zaptest"

	"github.com/tutu-network/shapeq/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	return ln.Addr().String()
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestChecker_RunOnceHealthy(t *testing.T) {
	c := NewChecker(zaptest.NewLogger(t),
		JournalCheck(newTestDB(t)),
		BackendCheck(listen(t), time.Second),
	)
	statuses := c.RunOnce(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("RunOnce() = %d statuses, want 2", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true when all checks pass")
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := NewChecker(nil, JournalCheck(newTestDB(t)))
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
	if len(c.Statuses()) != 0 {
		t.Errorf("Statuses() = %d before run, want 0", len(c.Statuses()))
	}
}

func TestBackendCheck_Unreachable(t *testing.T) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := ln.Addr().String()
	ln.Close()

	c := NewChecker(zaptest.NewLogger(t), BackendCheck(addr, 200*time.Millisecond))
	c.RunOnce(context.Background())
	st := c.Statuses()
	if st[0].Healthy || st[0].Error == "" {
		t.Errorf("status = %+v, want unhealthy with error", st[0])
	}
	if c.IsHealthy() {
		t.Error("IsHealthy() should be false")
	}
}

func TestJournalCheck_Closed(t *testing.T) {
	db, err := sqlite.Open(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	db.Close()

	c := NewChecker(nil, JournalCheck(db))
	if st := c.RunOnce(context.Background()); st[0].Healthy {
		t.Error("closed journal reported healthy")
	}
}

func TestChecker_RecoverCalledOnFailure(t *testing.T) {
	recovered := false
	c := NewChecker(zaptest.NewLogger(t), Check{
		Name:      "flaky",
		CheckFn:   func(ctx context.Context) error { return errors.New("down") },
		RecoverFn: func(ctx context.Context) error { recovered = true; return nil },
	})
	c.RunOnce(context.Background())
	if !recovered {
		t.Error("RecoverFn not called")
	}
}

func TestChecker_RunRepeatsOnTick(t *testing.T) {
	fc := clockwork.NewFakeClock()
	calls := make(chan struct{}, 8)
	c := NewChecker(zaptest.NewLogger(t), Check{
		Name:    "count",
		CheckFn: func(ctx context.Context) error { calls <- struct{}{}; return nil },
	})
	c.SetClock(fc)
	c.SetInterval(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()

	<-calls // immediate run
	blockCtx, blockCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer blockCancel()
	if err := fc.BlockUntilContext(blockCtx, 1); err != nil {
		t.Fatalf("ticker never armed: %v", err)
	}
	fc.Advance(time.Minute)
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("no run after one interval")
	}

	cancel()
	<-done
}
