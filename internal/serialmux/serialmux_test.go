package serialmux

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMux_WriteGoesToCurrentPort(t *testing.T) {
	first := NewTestSerialPort("")
	m := NewMux(first)

	if _, err := m.Write([]byte("A\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	second := NewTestSerialPort("")
	if err := m.Swap(second); err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	if !first.IsClosed() {
		t.Error("Swap() should close the previous port")
	}
	if _, err := m.Write([]byte("B\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if first.Written() != "A\n" || second.Written() != "B\n" {
		t.Errorf("written = %q / %q", first.Written(), second.Written())
	}
}

func TestMux_WriteWithoutPort(t *testing.T) {
	m := NewMux(nil)
	if _, err := m.Write([]byte("x")); err == nil {
		t.Error("expected error writing without a port")
	}
}

func TestMux_ConcurrentWritesDoNotInterleave(t *testing.T) {
	port := NewTestSerialPort("")
	m := NewMux(port)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Write([]byte("FWD 10\n"))
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(port.Written(), "\n"), "\n")
	if len(lines) != 20 {
		t.Fatalf("got %d lines, want 20", len(lines))
	}
	for _, l := range lines {
		if l != "FWD 10" {
			t.Errorf("interleaved write: %q", l)
		}
	}
}

func TestMux_CloseIsIdempotentAndClosesSubscribers(t *testing.T) {
	port := NewTestSerialPort("")
	m := NewMux(port)
	_, ch := m.Subscribe()

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	if !port.IsClosed() {
		t.Error("port should be closed")
	}
	if _, err := m.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close error = %v, want ErrClosed", err)
	}
	if err := m.Swap(NewTestSerialPort("")); !errors.Is(err, ErrClosed) {
		t.Errorf("Swap after Close error = %v, want ErrClosed", err)
	}

	_, late := m.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribing after Close should return a closed channel")
	}
}

func TestMux_PublishSkipsSlowSubscribers(t *testing.T) {
	m := NewMux(NewTestSerialPort(""))
	id, ch := m.Subscribe()
	defer m.Unsubscribe(id)

	// more lines than the subscriber buffer must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			m.Publish("RANGE,1")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if got := <-ch; got != "RANGE,1" {
		t.Errorf("got %q", got)
	}
}

func TestMux_AdminTail(t *testing.T) {
	m := NewMux(NewTestSerialPort(""))
	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/debug/tail", nil)
	// tsweb only serves debug pages to loopback callers
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /debug/tail: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	if line, _ := reader.ReadString('\n'); line != ": ping\n" {
		t.Fatalf("first line = %q", line)
	}
	reader.ReadString('\n')

	// the subscription is registered before the ping is flushed
	m.Publish("EV,STOP")

	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if line != "data: EV,STOP\n" {
		t.Errorf("event = %q", line)
	}
}
