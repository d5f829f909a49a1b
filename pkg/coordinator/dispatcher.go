package coordinator

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/battmeter/battmeter/pkg/sampler"
	"github.com/battmeter/battmeter/pkg/widget"
)

const defaultQueueSize = 64

// job is one queued update. Jobs merged because the queue was full keep the
// newest valid percentage and remember whether a sample or a plain refresh
// was also requested. An explicit percentage supersedes an earlier sample
// request.
type job struct {
	percent widget.Percent
	sample  bool
	touch   bool
	dones   []chan struct{}
}

func (j *job) merge(o *job) {
	if o.percent.Valid() {
		j.percent = o.percent
		j.sample = false
	}
	j.sample = j.sample || o.sample
	j.touch = j.touch || o.touch
	j.dones = append(j.dones, o.dones...)
}

// Ticket tracks a submitted update.
type Ticket struct {
	done <-chan struct{}
}

// Done is closed once the update has run, or was dropped because the
// dispatcher is closed.
func (t Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the update has run or ctx is done.
func (t Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func doneTicket() Ticket {
	ch := make(chan struct{})
	close(ch)
	return Ticket{done: ch}
}

// Dispatcher runs updates on a single background worker so that triggers
// never wait for storage or rendering. Updates run in submission order.
type Dispatcher struct {
	coord     *Coordinator
	source    sampler.Source
	queueSize int

	mu      sync.Mutex
	pending []*job
	closed  bool

	signal chan struct{}
	wg     sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSource sets the source used by Resample.
func WithSource(src sampler.Source) DispatcherOption {
	return func(d *Dispatcher) { d.source = src }
}

// WithQueueSize bounds the number of pending updates. Updates submitted to a
// full queue are merged into the last pending one.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// NewDispatcher starts a Dispatcher running updates through coord.
func NewDispatcher(coord *Coordinator, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		coord:     coord,
		queueSize: defaultQueueSize,
		signal:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(d)
	}

	d.wg.Add(1)
	go d.run()
	return d
}

// Submit queues an update with an optional explicit percentage.
func (d *Dispatcher) Submit(p widget.Percent) Ticket {
	j := &job{}
	if p.Valid() {
		j.percent = p
	} else {
		if _, ok := p.Get(); ok {
			logrus.WithField("percent", p).Warn("ignoring percentage outside [0, 100]")
		}
		j.touch = true
	}
	return d.enqueue(j)
}

// OnBatteryChanged handles a raw battery snapshot from the host. A snapshot
// without a usable scale produces no update at all.
func (d *Dispatcher) OnBatteryChanged(level, scale int) Ticket {
	r, ok := sampler.Percent(&sampler.Snapshot{Level: level, Scale: scale})
	if !ok {
		logrus.WithFields(logrus.Fields{
			"level": level,
			"scale": scale,
		}).Debug("battery snapshot unusable, skipping update")
		return doneTicket()
	}
	return d.Submit(widget.Some(r.Percent))
}

// OnForeground refreshes every widget without a new reading.
func (d *Dispatcher) OnForeground() Ticket {
	return d.Submit(widget.None())
}

// Resample queues an update that takes a fresh sample from the configured
// source when it runs. Nothing is written if no reading is available.
func (d *Dispatcher) Resample() Ticket {
	return d.enqueue(&job{sample: true})
}

func (d *Dispatcher) enqueue(j *job) Ticket {
	done := make(chan struct{})
	j.dones = []chan struct{}{done}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		logrus.Warn("dispatcher closed, dropping update")
		close(done)
		return Ticket{done: done}
	}
	if len(d.pending) >= d.queueSize {
		logrus.WithField("queueSize", d.queueSize).Warn("update queue full, merging with the last pending update")
		d.pending[len(d.pending)-1].merge(j)
	} else {
		d.pending = append(d.pending, j)
	}
	d.mu.Unlock()

	d.notify()
	return Ticket{done: done}
}

func (d *Dispatcher) notify() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// next pops the oldest pending job. It reports closed once the dispatcher is
// closed and nothing is left to run.
func (d *Dispatcher) next() (j *job, closed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return nil, d.closed
	}
	j = d.pending[0]
	d.pending[0] = nil
	d.pending = d.pending[1:]
	return j, false
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	logrus.Debug("update dispatcher started")
	defer logrus.Debug("update dispatcher stopped")

	for range d.signal {
		for {
			j, closed := d.next()
			if closed {
				return
			}
			if j == nil {
				break
			}
			d.execute(j)
		}
	}
}

func (d *Dispatcher) execute(j *job) {
	defer func() {
		for _, ch := range j.dones {
			close(ch)
		}
	}()

	// Updates run to completion once started.
	ctx := context.Background()

	p := j.percent
	if j.sample {
		if r, ok := sampler.Sample(ctx, d.source); ok {
			p = widget.Some(r.Percent)
		} else if !p.Valid() && !j.touch {
			logrus.Debug("no battery reading available, skipping update")
			return
		}
	}

	d.coord.UpdateAll(ctx, p)
}

// Close stops accepting updates, runs everything already queued and waits
// for the worker to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.wg.Wait()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.notify()
	d.wg.Wait()
}
