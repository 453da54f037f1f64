package session

import (
	"io"
	"sync"

	"sudoq/internal/flog"
	"sudoq/internal/sudoku"
)

// readyQueueLen bounds the outbound ready-to-read queue. When it is full
// the upstream reader suspends until the next stream drain.
const readyQueueLen = 64

// upstreamChunk is the upstream read size; one read becomes one frame.
const upstreamChunk = 8 * 1024

// Session is the relay side of one tunnel: the endpoint pipeline plus the
// upstream connection and the poll-transport buffers. The upload handler
// and the upstream reader are the only writers to their respective halves;
// uploads are additionally serialized by feedMu.
type Session struct {
	token string

	ep     *Endpoint
	feedMu sync.Mutex

	upstream io.ReadWriteCloser

	ready    chan []byte
	readDone chan struct{}
	closed   chan struct{}

	closeOnce sync.Once
	doneOnce  sync.Once
}

func New(key [32]byte, cipherName string, table *sudoku.Table, upstream io.ReadWriteCloser) (*Session, error) {
	ep, err := NewEndpoint(key, cipherName, table)
	if err != nil {
		return nil, err
	}
	return &Session{
		ep:       ep,
		upstream: upstream,
		ready:    make(chan []byte, readyQueueLen),
		readDone: make(chan struct{}),
		closed:   make(chan struct{}),
	}, nil
}

// Start launches the upstream reader, which turns upstream bytes into
// masked frames on the ready queue.
func (s *Session) Start() {
	go s.readUpstream()
}

func (s *Session) readUpstream() {
	buf := make([]byte, upstreamChunk)
	for {
		n, err := s.upstream.Read(buf)
		if n > 0 {
			frame, encErr := s.ep.EncodeFrame(buf[:n])
			if encErr != nil {
				flog.Errorf("session %s: encode failed: %v", s.token, encErr)
				s.Close()
				return
			}
			select {
			case s.ready <- frame:
			case <-s.closed:
				return
			}
		}
		if err != nil {
			s.doneOnce.Do(func() { close(s.readDone) })
			if err != io.EOF {
				flog.Debugf("session %s: upstream read: %v", s.token, err)
				s.Close()
			}
			return
		}
	}
}

// Feed decodes masked upload bytes and forwards the recovered plaintext
// upstream, preserving the order in which upload bodies arrive.
func (s *Session) Feed(masked []byte) error {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	if s.IsClosed() {
		return ErrClosed
	}
	plaintext, err := s.ep.Decode(masked)
	if len(plaintext) > 0 {
		if _, werr := s.upstream.Write(plaintext); werr != nil {
			s.Close()
			return werr
		}
	}
	if err != nil {
		s.Close()
		return err
	}
	return nil
}

// Ready delivers masked frames produced by the upstream reader. The stream
// handler is the single consumer.
func (s *Session) Ready() <-chan []byte { return s.ready }

// ReadDone is closed when the upstream reader has seen EOF; any frames it
// produced are already on the ready queue.
func (s *Session) ReadDone() <-chan struct{} { return s.readDone }

// Closed is closed when the session is torn down; it doubles as the
// long-poll wake-up for terminal states.
func (s *Session) Closed() <-chan struct{} { return s.closed }

func (s *Session) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Fin half-closes the write direction toward the upstream endpoint.
func (s *Session) Fin() error {
	if cw, ok := s.upstream.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// Close is authoritative: it marks the session closed, wakes any long-poll
// waiter, drains the ready queue and closes the upstream socket. Safe to
// call from any goroutine, any number of times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		for {
			select {
			case <-s.ready:
			default:
				s.upstream.Close()
				return
			}
		}
	})
}

// Token returns the registry token, empty until registered.
func (s *Session) Token() string { return s.token }
