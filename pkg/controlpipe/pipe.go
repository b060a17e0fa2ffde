package controlpipe

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Pipe wraps the raw read/write file descriptors the reactor and producers
// share. It is deliberately backed by raw fds rather than an os.Pipe/chan
// so the reactor can hand its read end straight to the same epoll set it
// watches request sockets on — the reactor's only suspension point is its
// multiplexed readiness wait.
type Pipe struct {
	readFD  int
	writeFD int
}

// New creates a non-blocking pipe suitable for control-pipe use.
func New() (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("controlpipe: pipe2: %w", err)
	}
	return &Pipe{readFD: fds[0], writeFD: fds[1]}, nil
}

// ReadFD returns the descriptor the reactor watches for readability.
func (p *Pipe) ReadFD() int { return p.readFD }

// WriteFD returns the descriptor producers write records to.
func (p *Pipe) WriteFD() int { return p.writeFD }

// Close releases both ends.
func (p *Pipe) Close() error {
	err1 := unix.Close(p.readFD)
	err2 := unix.Close(p.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}

// Send writes one whole record to the pipe. RecordLen is well under the
// platform's atomic pipe-write guarantee (PIPE_BUF, typically 4096 bytes on
// Linux), so concurrent producers never interleave partial records (spec
// §4.6: "producers write whole records; partial writes are logged and
// ignored").
func (p *Pipe) Send(m Message) error {
	buf := Encode(m)
	n, err := unix.Write(p.writeFD, buf[:])
	if err != nil {
		return fmt.Errorf("controlpipe: write: %w", err)
	}
	if n != recordLen {
		return fmt.Errorf("controlpipe: short write: wrote %d bytes, want %d", n, recordLen)
	}
	return nil
}

// Receive reads exactly one record from the pipe. Callers must only invoke
// this after the reactor's readiness wait reports the read end ready.
func (p *Pipe) Receive() (Message, error) {
	buf := make([]byte, recordLen)
	n, err := unix.Read(p.readFD, buf)
	if err != nil {
		return Message{}, fmt.Errorf("controlpipe: read: %w", err)
	}
	if n != recordLen {
		return Message{}, fmt.Errorf("controlpipe: short read: got %d bytes, want %d", n, recordLen)
	}
	return Decode(buf)
}
