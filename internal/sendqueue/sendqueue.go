// Package sendqueue implements the per-session background writer described
// in spec.md §4.9: a FIFO of framed packets drained to the client socket in
// arrival order, with pause/timeshift backpressure modes and optional
// request-paced delivery. Modeled on the teacher's CyclicBuffer goroutine
// lifecycle (stopCh + sync.WaitGroup, mutex-guarded state, atomic counters).
package sendqueue

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pipelka/robotv-go/internal/wire"
)

// ErrClosed is returned by Enqueue once the queue has been shut down.
var ErrClosed = errors.New("sendqueue: closed")

// ContentClass classifies an enqueued packet for Timeshift-mode dropping.
// Only audio/video packets survive Timeshift; everything else (status, OSD,
// stream-change) is dropped on enqueue once that mode engages.
type ContentClass int

const (
	ClassOther ContentClass = iota
	ClassAudioVideo
)

// Mode is the queue's current delivery mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModePaused
	ModeTimeshift
)

// Config tunes backpressure behavior.
type Config struct {
	WriteTimeout        time.Duration // recheck interval while paused or request-paced; no deadline is set on writes
	TimeshiftThreshold   int64         // buffered bytes at which Paused auto-promotes to Timeshift
	RequestPaced         bool          // when true, the writer emits one packet per Request() signal
}

// DefaultConfig uses a 10ms WriteTimeout recheck interval and a 32 MiB
// timeshift threshold.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:       10 * time.Millisecond,
		TimeshiftThreshold: 32 * 1024 * 1024,
	}
}

type entry struct {
	class   ContentClass
	payload []byte
}

// Queue drains framed packets to an io.Writer on its own goroutine.
type Queue struct {
	cfg Config
	w   io.Writer

	mu         sync.Mutex
	cond       *sync.Cond
	entries    []entry
	bufferedSz int64
	mode       Mode
	closed     bool

	requestCh chan struct{}

	droppedTimeshift atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a queue writing to w and starts its writer goroutine.
func New(w io.Writer, cfg Config) *Queue {
	q := &Queue{
		cfg:       cfg,
		w:         w,
		requestCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	q.wg.Add(1)
	go q.writerLoop()

	return q
}

// Enqueue appends a framed MsgPacket to the queue in arrival order. In
// Timeshift mode, non-audio/video packets are dropped to reserve memory for
// stream continuity (spec.md §4.9).
func (q *Queue) Enqueue(class ContentClass, msg *wire.MsgPacket) error {
	buf := msg.Encode()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}

	if q.mode == ModeTimeshift && class != ClassAudioVideo {
		q.droppedTimeshift.Add(1)
		q.mu.Unlock()
		return nil
	}

	q.entries = append(q.entries, entry{class: class, payload: buf})
	q.bufferedSz += int64(len(buf))

	if q.mode == ModePaused && q.cfg.TimeshiftThreshold > 0 && q.bufferedSz > q.cfg.TimeshiftThreshold {
		q.mode = ModeTimeshift
	}

	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

// Pause halts dequeue (pause(true)) or resumes draining the accumulated
// backlog (pause(false)), per spec.md §4.9.
func (q *Queue) Pause(pause bool) {
	q.mu.Lock()
	if pause {
		if q.mode == ModeNormal {
			q.mode = ModePaused
		}
	} else {
		q.mode = ModeNormal
	}
	q.mu.Unlock()
	q.cond.Signal()
}

// SetRequestPaced toggles request-paced delivery for client-paced playback.
func (q *Queue) SetRequestPaced(paced bool) {
	q.mu.Lock()
	q.cfg.RequestPaced = paced
	q.mu.Unlock()
	q.cond.Signal()
}

// Request signals the writer to emit exactly one packet, used when
// RequestPaced is enabled.
func (q *Queue) Request() {
	select {
	case q.requestCh <- struct{}{}:
	default:
	}
	q.cond.Signal()
}

// DroppedTimeshift returns the count of packets dropped while in Timeshift
// mode, for diagnostics.
func (q *Queue) DroppedTimeshift() uint64 {
	return q.droppedTimeshift.Load()
}

// Close drains pending packets (graceful) and stops the writer goroutine;
// it always finishes writing what is already queued. Discard is the forced
// shutdown that drops pending packets instead.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.cond.Signal()
	close(q.stopCh)
	q.wg.Wait()
}

// Discard immediately drops all pending packets and stops the writer,
// implementing the forced-shutdown half of spec.md §5's cancellation
// semantics.
func (q *Queue) Discard() {
	q.mu.Lock()
	q.entries = nil
	q.bufferedSz = 0
	q.mu.Unlock()
	q.Close()
}

func (q *Queue) writerLoop() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		for len(q.entries) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.entries) == 0 && q.closed {
			q.mu.Unlock()
			return
		}

		mode := q.mode
		q.mu.Unlock()

		if mode == ModePaused {
			select {
			case <-q.stopCh:
				q.drainRemaining()
				return
			case <-time.After(q.cfg.WriteTimeout):
				continue
			}
		}

		if q.cfg.RequestPaced {
			select {
			case <-q.requestCh:
			case <-q.stopCh:
				q.drainRemaining()
				return
			case <-time.After(q.cfg.WriteTimeout):
				continue
			}
		}

		q.mu.Lock()
		if len(q.entries) == 0 {
			q.mu.Unlock()
			continue
		}
		next := q.entries[0]
		q.entries = q.entries[1:]
		q.bufferedSz -= int64(len(next.payload))
		if q.bufferedSz < 0 {
			q.bufferedSz = 0
		}
		q.mu.Unlock()

		q.writeWithRetry(next.payload)

		select {
		case <-q.stopCh:
			if q.closed {
				q.drainRemaining()
				return
			}
		default:
		}
	}
}

// writeWithRetry writes buf to the writer. When the writer reports a
// timeout error the write is retried unless the queue has been stopped;
// the pause state is not rechecked, and the queue sets no write deadline
// of its own.
func (q *Queue) writeWithRetry(buf []byte) {
	for {
		_, err := q.w.Write(buf)
		if err == nil {
			return
		}

		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			select {
			case <-q.stopCh:
				return
			default:
				continue
			}
		}
		return
	}
}

func (q *Queue) drainRemaining() {
	q.mu.Lock()
	pending := q.entries
	q.entries = nil
	q.mu.Unlock()

	for _, e := range pending {
		q.writeWithRetry(e.payload)
	}
}
