package serialmux

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/rovermap/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func recv(t *testing.T, ch <-chan Item) Item {
	t.Helper()
	select {
	case it := <-ch:
		return it
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for queue item")
		return Item{}
	}
}

func TestSource_PushesLinesInOrder(t *testing.T) {
	port := NewTestSerialPort("EV,DRIVE_START\r\nRANGE,50\n\n  \nEV,STOP\n")
	m := NewMux(port)
	out := make(chan Item, 8)
	src := NewSource(m, out, SourceOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(ctx) }()

	for _, want := range []string{"EV,DRIVE_START", "RANGE,50", "EV,STOP"} {
		it := recv(t, out)
		if it.Err != nil || it.Line != want {
			t.Fatalf("got %+v, want line %q", it, want)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSource_DropsOverlongNoiseAndResyncs(t *testing.T) {
	noise := strings.Repeat("x", 70*1024)
	port := NewTestSerialPort(noise + "\nRANGE,50\n" + noise + "\r\nEV,STOP\n")
	out := make(chan Item, 8)
	src := NewSource(NewMux(port), out, SourceOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx)

	for _, want := range []string{"RANGE,50", "EV,STOP"} {
		it := recv(t, out)
		if it.Err != nil || it.Line != want {
			t.Fatalf("got %+v, want line %q", it, want)
		}
	}
}

func TestReadLine(t *testing.T) {
	input := strings.Repeat("a", maxLineBytes-1) + "\n" +
		strings.Repeat("b", maxLineBytes) + "\n" +
		"TEMP,70\r\n" +
		"RANGE,9"
	r := bufio.NewReaderSize(strings.NewReader(input), 16)

	tests := []struct {
		wantLen  int
		wantLine string
		wantErr  error
	}{
		{wantLen: maxLineBytes - 1},
		{wantErr: errLineTooLong},
		{wantLine: "TEMP,70"},
		{wantLine: "RANGE,9"},
		{wantErr: io.EOF},
	}
	for i, tt := range tests {
		line, err := readLine(r)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("call %d: err = %v, want %v", i, err, tt.wantErr)
		}
		if tt.wantLen > 0 && len(line) != tt.wantLen {
			t.Errorf("call %d: len = %d, want %d", i, len(line), tt.wantLen)
		}
		if tt.wantLine != "" && line != tt.wantLine {
			t.Errorf("call %d: line = %q, want %q", i, line, tt.wantLine)
		}
	}
}

func TestSource_InvalidUTF8IsReplaced(t *testing.T) {
	port := NewTestSerialPort("TEMP,7\xff2\n")
	out := make(chan Item, 1)
	src := NewSource(NewMux(port), out, SourceOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx)

	if it := recv(t, out); it.Line != "TEMP,7�2" {
		t.Errorf("line = %q", it.Line)
	}
}

func TestSource_PublishesToSubscribers(t *testing.T) {
	port := NewTestSerialPort("EV,STOP\n")
	m := NewMux(port)
	id, sub := m.Subscribe()
	defer m.Unsubscribe(id)

	out := make(chan Item, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewSource(m, out, SourceOptions{}).Run(ctx)

	recv(t, out)
	select {
	case line := <-sub:
		if line != "EV,STOP" {
			t.Errorf("subscriber got %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the line")
	}
}

func TestSource_ErrorWithoutReconnectStops(t *testing.T) {
	port := NewTestSerialPort("RANGE,1\n")
	readErr := errors.New("device reset")
	port.FailReads(readErr)

	out := make(chan Item, 4)
	src := NewSource(NewMux(port), out, SourceOptions{})

	err := src.Run(context.Background())
	if !errors.Is(err, readErr) {
		t.Fatalf("Run() = %v, want %v", err, readErr)
	}

	if it := recv(t, out); it.Line != "RANGE,1" {
		t.Errorf("first item = %+v", it)
	}
	if it := recv(t, out); !errors.Is(it.Err, readErr) {
		t.Errorf("second item = %+v, want error marker", it)
	}
}

func TestSource_ReconnectsAfterError(t *testing.T) {
	first := NewTestSerialPort("RANGE,1\n")
	first.FailReads(errors.New("unplugged"))
	second := NewTestSerialPort("RANGE,2\n")

	var mu sync.Mutex
	opens := 0
	opener := func() (SerialPorter, error) {
		mu.Lock()
		defer mu.Unlock()
		opens++
		if opens == 1 {
			return nil, errors.New("not yet")
		}
		return second, nil
	}

	m := NewMux(first)
	out := make(chan Item, 8)
	src := NewSource(m, out, SourceOptions{Opener: opener, ReconnectDelay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx)

	if it := recv(t, out); it.Line != "RANGE,1" {
		t.Fatalf("got %+v", it)
	}
	if it := recv(t, out); it.Err == nil {
		t.Fatalf("want read error marker, got %+v", it)
	}
	if it := recv(t, out); it.Err == nil {
		t.Fatalf("want open error marker, got %+v", it)
	}
	if it := recv(t, out); it.Line != "RANGE,2" {
		t.Fatalf("got %+v after reconnect", it)
	}
	if !first.IsClosed() {
		t.Error("old port should be closed after reconnect")
	}
}

func TestSource_OpensLazily(t *testing.T) {
	port := NewTestSerialPort("EV,DRIVE_START\n")
	m := NewMux(nil)
	out := make(chan Item, 1)
	src := NewSource(m, out, SourceOptions{Opener: func() (SerialPorter, error) { return port, nil }})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx)

	if it := recv(t, out); it.Line != "EV,DRIVE_START" {
		t.Errorf("got %+v", it)
	}
}

func TestSource_NoPortNoOpener(t *testing.T) {
	src := NewSource(NewMux(nil), make(chan Item, 1), SourceOptions{})
	if err := src.Run(context.Background()); err == nil {
		t.Error("expected error without port or opener")
	}
}

func TestSource_CloseEndsRunQuietly(t *testing.T) {
	m := NewMux(NewDisabledPort())
	out := make(chan Item, 1)
	src := NewSource(m, out, SourceOptions{})

	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	m.Close()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() after Close = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	select {
	case it := <-out:
		t.Errorf("unexpected item after Close: %+v", it)
	default:
	}
}
