package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

type fakeProcessor struct {
	name    string
	active  *atomic.Int32
	started chan string
}

func (p *fakeProcessor) Start(asynq.Handler) error {
	p.active.Add(1)
	p.started <- p.name
	return nil
}

func (p *fakeProcessor) Shutdown() { p.active.Add(-1) }

func TestServer_OneWorkerAcrossProcesses(t *testing.T) {
	_, rdb := newTestRedis(t)

	var active atomic.Int32
	started := make(chan string, 8)
	newFake := func(name string) *Server {
		lease := NewLease(rdb, "test:render:worker", 300*time.Millisecond)
		return newServer(func() processor {
			return &fakeProcessor{name: name, active: &active, started: started}
		}, asynq.NewServeMux(), lease, zerolog.Nop())
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	ctxB, cancelB := context.WithCancel(context.Background())
	defer cancelB()

	var wg sync.WaitGroup
	for _, s := range []struct {
		srv *Server
		ctx context.Context
	}{{newFake("a"), ctxA}, {newFake("b"), ctxB}} {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.srv.Run(s.ctx); err != nil {
				t.Errorf("run: %v", err)
			}
		}()
	}

	var first string
	select {
	case first = <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("no worker started")
	}

	time.Sleep(250 * time.Millisecond)
	if n := active.Load(); n != 1 {
		t.Fatalf("expected exactly one active worker, got %d", n)
	}

	// stopping the holder hands the slot to the other process
	if first == "a" {
		cancelA()
	} else {
		cancelB()
	}

	select {
	case second := <-started:
		if second == first {
			t.Errorf("expected the other process to take over, got %s twice", second)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("standby worker never started")
	}
	if n := active.Load(); n != 1 {
		t.Errorf("expected one active worker after failover, got %d", n)
	}

	cancelA()
	cancelB()
	wg.Wait()
	if n := active.Load(); n != 0 {
		t.Errorf("expected all workers shut down, got %d active", n)
	}
}

func TestServer_RestartsAfterLostLease(t *testing.T) {
	mr, rdb := newTestRedis(t)

	var active atomic.Int32
	started := make(chan string, 8)
	lease := NewLease(rdb, "test:render:worker", 300*time.Millisecond)
	srv := newServer(func() processor {
		return &fakeProcessor{name: "a", active: &active, started: started}
	}, asynq.NewServeMux(), lease, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never started")
	}

	// another process owns the key until it goes away
	mr.Set("test:render:worker", "other")
	deadline := time.Now().Add(2 * time.Second)
	for active.Load() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker kept running without the lease")
		}
		time.Sleep(10 * time.Millisecond)
	}

	mr.Del("test:render:worker")
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not restart once the lease was free")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("run: %v", err)
	}
	if n := active.Load(); n != 0 {
		t.Errorf("expected worker shut down, got %d active", n)
	}
}
