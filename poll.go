package pagequery

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultPollingTimeout is the default timeout of polls and waits.
const DefaultPollingTimeout = 30 * time.Second

// Scheduler paces the evaluations of a poll. Subscribe arranges for tick to
// be called on every occurrence of the scheduler's event until cancel is
// called. Tick must not block. Cancel is idempotent, and once it returns
// tick is no longer called.
type Scheduler interface {
	Subscribe(tick func()) (cancel func())
}

// FrameScheduler ticks once per rendering frame of a document.
type FrameScheduler struct {
	Doc *Document
}

// Subscribe satisfies Scheduler.
func (s FrameScheduler) Subscribe(tick func()) func() {
	return s.Doc.frames.subscribe(tick)
}

// MutationScheduler ticks after changes to a document. Changes made while a
// tick is still pending are coalesced into it.
type MutationScheduler struct {
	Doc *Document
}

// Subscribe satisfies Scheduler.
func (s MutationScheduler) Subscribe(tick func()) func() {
	return s.Doc.observe(tick)
}

// IntervalScheduler ticks at a fixed interval.
type IntervalScheduler struct {
	Interval time.Duration
}

// Subscribe satisfies Scheduler.
func (s IntervalScheduler) Subscribe(tick func()) func() {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	stop, done := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				tick()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
		})
	}
}

// frameClock is the frame source shared by all frame schedulers of a
// document. Its ticker only runs while it has subscribers.
type frameClock struct {
	interval time.Duration

	mu   sync.Mutex
	subs map[int]func()
	next int
	stop chan struct{}
	done chan struct{}
}

func (c *frameClock) subscribe(tick func()) func() {
	c.mu.Lock()
	if c.subs == nil {
		c.subs = make(map[int]func())
	}
	id := c.next
	c.next++
	c.subs[id] = tick
	if c.stop == nil {
		c.stop, c.done = make(chan struct{}), make(chan struct{})
		go c.run(c.stop, c.done)
	}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			var stop, done chan struct{}
			if len(c.subs) == 0 {
				stop, done = c.stop, c.done
				c.stop, c.done = nil, nil
			}
			c.mu.Unlock()
			if stop != nil {
				close(stop)
				<-done
			}
		})
	}
}

func (c *frameClock) run(stop, done chan struct{}) {
	defer close(done)
	interval := c.interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.mu.Lock()
			for _, tick := range c.subs {
				tick()
			}
			c.mu.Unlock()
		}
	}
}

// Poll evaluates predicate once immediately and then on every tick of s,
// until it returns something other than ErrContinuePolling. Any other error
// is returned right away.
//
// When timeout is positive and elapses first, Poll returns a *TimeoutError.
// When ctx is done first, it returns ctx.Err(). The subscription to s is
// canceled before Poll returns.
func Poll[T any](ctx context.Context, s Scheduler, timeout time.Duration, predicate func() (T, error)) (T, error) {
	var zero T
	start := time.Now()
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	ticks := make(chan struct{}, 1)
	cancel := s.Subscribe(func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})
	defer cancel()

	for {
		v, err := predicate()
		if !errors.Is(err, ErrContinuePolling) {
			return v, err
		}
		select {
		case <-ticks:
		case <-expired:
			return zero, &TimeoutError{Timeout: timeout, Elapsed: time.Since(start)}
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// pollTask holds the scheduling options of a wait.
type pollTask struct {
	polling  string        // "raf", "mutation" or "" when triggered by a timer
	interval time.Duration // the interval when the poll is triggered by a timer
	timeout  time.Duration // the poll timeout, defaults to 30 seconds
}

// PollOption is a poll task option.
type PollOption = func(task *pollTask)

func newPollTask(polling string, opts ...PollOption) *pollTask {
	p := &pollTask{
		polling: polling,
		timeout: DefaultPollingTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// scheduler returns the scheduler selected by the task options.
func (p *pollTask) scheduler(d *Document) Scheduler {
	switch {
	case p.interval > 0:
		return IntervalScheduler{Interval: p.interval}
	case p.polling == "mutation":
		return MutationScheduler{Doc: d}
	}
	return FrameScheduler{Doc: d}
}

// WithPollingInterval makes it to poll the predicate with the specified interval.
func WithPollingInterval(interval time.Duration) PollOption {
	return func(w *pollTask) {
		w.polling = ""
		w.interval = interval
	}
}

// WithPollingMutation makes it to poll the predicate on every document
// change.
func WithPollingMutation() PollOption {
	return func(w *pollTask) {
		w.polling = "mutation"
		w.interval = 0
	}
}

// WithPollingRAF makes it to poll the predicate on every rendering frame.
func WithPollingRAF() PollOption {
	return func(w *pollTask) {
		w.polling = "raf"
		w.interval = 0
	}
}

// WithPollingTimeout specifies the maximum time to wait for the predicate
// to hold. It defaults to 30 seconds. Pass 0 to disable timeout.
func WithPollingTimeout(timeout time.Duration) PollOption {
	return func(w *pollTask) {
		w.timeout = timeout
	}
}

// WaitForFunction polls predicate with the document locked, on every frame
// unless the options select another scheduler, until it returns something
// other than ErrContinuePolling.
func WaitForFunction[T any](ctx context.Context, e *Engine, predicate func(t *Tree) (T, error), opts ...PollOption) (T, error) {
	p := newPollTask("raf", opts...)
	return Poll(ctx, p.scheduler(e.doc), p.timeout, func() (v T, err error) {
		e.doc.View(func(t *Tree) {
			v, err = predicate(t)
		})
		return v, err
	})
}
