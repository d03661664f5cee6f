// Copyright 2024-2026 Aiku AI

package chatbox

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/rs/zerolog"
)

// testConfig returns a post-processed config with a uuid side 1 and an int
// side 2, backed by a private in-memory database.
func testConfig(t *testing.T, mutate ...func(*Config)) *Config {
	t.Helper()
	cfg := &Config{
		Name:  "test-box",
		Debug: true,
		Side1: SideConfig{Name: "web", IDType: "uuid"},
		Side2: SideConfig{Name: "chat", IDType: "int"},
	}
	for _, fn := range mutate {
		fn(cfg)
	}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	return cfg
}

// fileDatabase points the config at a SQLite file inside a temp dir so a
// second store can reopen it.
func fileDatabase(t *testing.T) func(*Config) {
	path := filepath.Join(t.TempDir(), "chatbox.db")
	return func(cfg *Config) {
		cfg.Debug = false
		cfg.Database.URI = "file:" + path + "?_foreign_keys=on"
	}
}

func openTestStore(t *testing.T, cfg *Config) *Store {
	t.Helper()
	store, err := OpenStore(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestBox(t *testing.T, cfg *Config, opts ...Option) *ChatBox {
	t.Helper()
	cb, err := New(cfg, openTestStore(t, cfg), zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cb
}

// runBox starts the broker and stops it when the test ends.
func runBox(t *testing.T, cb *ChatBox) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cb.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("broker did not stop")
		}
	})
}

// counterAllocator hands out increasing integer ids starting at 42.
type counterAllocator struct {
	next  atomic.Int64
	calls atomic.Int32
}

func newCounterAllocator() *counterAllocator {
	alloc := &counterAllocator{}
	alloc.next.Store(42)
	return alloc
}

func (a *counterAllocator) Allocate(_ context.Context, _ ID) (ID, error) {
	a.calls.Add(1)
	return IntID(a.next.Add(1) - 1), nil
}

func mustAccess(t *testing.T, sc *ServiceChannel, id ID, create bool) ID {
	t.Helper()
	got, err := sc.Access(context.Background(), id, create)
	if err != nil {
		t.Fatalf("Access(%s, %v) on %s: %v", id, create, sc.Name(), err)
	}
	return got
}

func mustMailbox(t *testing.T, sc *ServiceChannel, id ID) *Mailbox {
	t.Helper()
	mb, err := sc.Mailbox(id)
	if err != nil {
		t.Fatalf("Mailbox(%s) on %s: %v", id, sc.Name(), err)
	}
	return mb
}

func mustConnection(t *testing.T, sc *ServiceChannel, id ID) *Connection {
	t.Helper()
	conn, err := sc.Connection(id)
	if err != nil {
		t.Fatalf("Connection(%s) on %s: %v", id, sc.Name(), err)
	}
	return conn
}

func getMessage(t *testing.T, mb *Mailbox) *Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := mb.Get(ctx)
	if err != nil {
		t.Fatalf("Mailbox.Get: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// counters sums the counters of an in-memory sink by metric name.
func counters(sink *metrics.InmemSink) map[string]int {
	out := map[string]int{}
	for _, interval := range sink.Data() {
		interval.RLock()
		for _, c := range interval.Counters {
			out[c.Name] += c.Count
		}
		interval.RUnlock()
	}
	return out
}
