package websocket

import (
	"errors"
	"sync"
	"time"
)

var errTransportClosed = errors.New("transport closed")

// fakeTransport feeds inbound frames from a channel and records writes.
type fakeTransport struct {
	inbound chan []byte
	written chan []byte

	mu        sync.Mutex
	closed    bool
	closedCh  chan struct{}
	failWrite bool

	// blockWrite parks every write until the transport is closed.
	blockWrite bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound:  make(chan []byte, 16),
		written:  make(chan []byte, 64),
		closedCh: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.inbound:
		return 1, data, nil
	case <-f.closedCh:
		return 0, nil, errTransportClosed
	}
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	fail, block := f.failWrite, f.blockWrite
	f.mu.Unlock()

	if fail {
		return errTransportClosed
	}
	if block {
		<-f.closedCh
		return errTransportClosed
	}

	select {
	case f.written <- data:
		return nil
	case <-f.closedCh:
		return errTransportClosed
	}
}

func (f *fakeTransport) WriteControl(int, []byte, time.Time) error { return nil }
func (f *fakeTransport) SetReadDeadline(time.Time) error { return nil }
func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeTransport) SetReadLimit(int64) {}
func (f *fakeTransport) SetPongHandler(func(string) error) {}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closedCh)
	}
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
