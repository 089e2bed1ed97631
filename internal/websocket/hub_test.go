package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/rs/zerolog"

	"github.com/cinevideo/api/internal/model"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func subscribe(h *Hub, jobID string) *Client {
	c := &Client{JobID: jobID, Send: make(chan []byte, 8), done: make(chan struct{})}
	h.register <- c
	return c
}

func receive(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("bad message %s: %v", data, err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHub_RoutesUpdatesByJob(t *testing.T) {
	h := runHub(t)
	a := subscribe(h, "job-a")
	b := subscribe(h, "job-b")

	h.JobUpdated("job-a", model.InProgress(0.4))
	h.JobUpdated("job-a", model.Completed("http://localhost:8000/renders/job-a.mp4"))
	h.JobUpdated("job-b", model.Failed("encoder died"))

	msg := receive(t, a)
	if msg["type"] != model.WSMessageTypeProgress || msg["progress"] != 0.4 {
		t.Errorf("unexpected progress message: %v", msg)
	}
	msg = receive(t, a)
	if msg["type"] != model.WSMessageTypeComplete || msg["videoUrl"] != "http://localhost:8000/renders/job-a.mp4" {
		t.Errorf("unexpected complete message: %v", msg)
	}

	msg = receive(t, b)
	errObj, _ := msg["error"].(map[string]interface{})
	if msg["type"] != model.WSMessageTypeError || errObj["message"] != "encoder died" {
		t.Errorf("unexpected error message: %v", msg)
	}
}

func TestHub_CanceledMessage(t *testing.T) {
	h := runHub(t)
	c := subscribe(h, "job-c")

	h.JobUpdated("job-c", model.Canceled())
	msg := receive(t, c)
	if msg["type"] != model.WSMessageTypeCanceled || msg["status"] != string(model.JobStatusCanceled) {
		t.Errorf("unexpected canceled message: %v", msg)
	}
}

func TestHub_JobUpdatedNeverBlocks(t *testing.T) {
	h := NewHub(zerolog.Nop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.JobUpdated("job", model.InProgress(float64(i)/1000))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("JobUpdated blocked without a running hub")
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := runHub(t)
	c := &Client{JobID: "slow", Send: make(chan []byte), done: make(chan struct{})}
	h.register <- c

	h.JobUpdated("slow", model.InProgress(0.1))

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected slow client to be dropped")
	}
	if n := h.Subscribers("slow"); n != 0 {
		t.Errorf("expected no subscribers, got %d", n)
	}
}

// fakeConn blocks reads until closed and records writes.
type fakeConn struct {
	mu       sync.Mutex
	writes   []int
	late     bool
	returned bool

	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn { return &fakeConn{closed: make(chan struct{})} }

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("connection closed")
}

func (f *fakeConn) WriteMessage(messageType int, _ []byte) error {
	if messageType == websocket.CloseMessage {
		time.Sleep(20 * time.Millisecond)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.returned {
		f.late = true
	}
	f.writes = append(f.writes, messageType)
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) close() { f.once.Do(func() { close(f.closed) }) }

func TestHub_ServeWaitsForWriter(t *testing.T) {
	h := runHub(t)
	fc := newFakeConn()

	served := make(chan struct{})
	go func() {
		h.serve(fc, "job-w")
		fc.mu.Lock()
		fc.returned = true
		fc.mu.Unlock()
		close(served)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers("job-w") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	fc.close()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after the connection closed")
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.late {
		t.Error("writer used the connection after serve returned")
	}
	if len(fc.writes) == 0 || fc.writes[len(fc.writes)-1] != websocket.CloseMessage {
		t.Errorf("expected a close frame before serve returned, got %v", fc.writes)
	}
}

func TestHub_ServeReturnsWhenHubStops(t *testing.T) {
	h := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		h.Run(ctx)
	}()

	fc := newFakeConn()
	served := make(chan struct{})
	go func() {
		h.serve(fc, "job-s")
		close(served)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers("job-s") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-hubDone
	fc.close()

	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after the hub stopped")
	}
}
