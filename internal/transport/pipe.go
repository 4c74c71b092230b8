package transport

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// Pipe is the OS-pipe transport variant: NUL-byte-delimited JSON messages
// over an arbitrary io.Reader/io.Writer pair, normally the process's own
// stdin/stdout (spec.md §6).
type Pipe struct {
	r *bufio.Reader
	w io.Writer

	writeMu sync.Mutex

	closeOnce sync.Once
	closer    io.Closer
}

// NewPipe wraps r/w as a Transport, framing each message with a
// trailing NUL byte. closer, if non-nil, is invoked by Close (e.g. to
// close stdin).
func NewPipe(r io.Reader, w io.Writer, closer io.Closer) *Pipe {
	return &Pipe{r: bufio.NewReader(r), w: w, closer: closer}
}

func (p *Pipe) Send(ctx context.Context, message []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := p.w.Write(message); err != nil {
		return err
	}
	_, err := p.w.Write([]byte{0})
	return err
}

func (p *Pipe) Receive(ctx context.Context) ([]byte, error) {
	data, err := p.r.ReadBytes(0)
	if err != nil {
		return nil, err
	}
	return data[:len(data)-1], nil
}

func (p *Pipe) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.closer != nil {
			err = p.closer.Close()
		}
	})
	return err
}
