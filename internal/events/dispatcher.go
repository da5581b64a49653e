package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Dispatcher implements Sink with a bounded queue drained by one worker
// goroutine. A full queue drops the notification rather than blocking.
type Dispatcher struct {
	publisher Publisher
	channel   string
	log       *slog.Logger

	ch        chan string
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher starts a worker delivering to publisher on channel.
func NewDispatcher(publisher Publisher, channel string, buffer int, log *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		publisher: publisher,
		channel:   channel,
		log:       log,
		ch:        make(chan string, buffer),
		done:      make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Publish queues the notification and returns immediately.
func (d *Dispatcher) Publish(accountID, mediaName string) {
	if d == nil || d.closed.Load() {
		return
	}
	msg := Message(accountID, mediaName)

	select {
	case d.ch <- msg:
	case <-d.done:
	default:
		d.dropped.Add(1)
		d.log.Warn("events: queue full, dropping event", "channel", d.channel, "message", msg)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg string) {
	if err := d.publisher.Publish(context.Background(), d.channel, msg); err != nil {
		d.failed.Add(1)
		d.log.Warn("events: publish failed", "channel", d.channel, "message", msg, "error", err)
		return
	}
	d.published.Add(1)
	d.log.Debug("events: published", "channel", d.channel, "message", msg)
}

// Close stops accepting notifications, drains what is queued and waits for
// the worker to exit.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Stats reports delivery counters.
func (d *Dispatcher) Stats() (published, failed, dropped uint64) {
	return d.published.Load(), d.failed.Load(), d.dropped.Load()
}
