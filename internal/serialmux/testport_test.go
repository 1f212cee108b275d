package serialmux

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// TestSerialPort implements SerialPorter for tests. Reads drain readData and
// then return zero bytes after a short sleep, like a port with a read
// timeout, until readErr or Close.
type TestSerialPort struct {
	mu          sync.Mutex
	readData    []byte
	readErr     error
	writeErr    error
	writtenData bytes.Buffer
	closed      bool
}

func NewTestSerialPort(data string) *TestSerialPort {
	return &TestSerialPort{readData: []byte(data)}
}

func (p *TestSerialPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errors.New("test port closed")
	}
	if len(p.readData) > 0 {
		n := copy(buf, p.readData)
		p.readData = p.readData[n:]
		p.mu.Unlock()
		return n, nil
	}
	if p.readErr != nil {
		err := p.readErr
		p.mu.Unlock()
		return 0, err
	}
	p.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	return 0, nil
}

func (p *TestSerialPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.writtenData.Write(data)
}

func (p *TestSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *TestSerialPort) AddReadData(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readData = append(p.readData, s...)
}

func (p *TestSerialPort) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

func (p *TestSerialPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writtenData.String()
}

func (p *TestSerialPort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
