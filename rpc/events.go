package rpc

import (
	"sync"
	"time"

	"github.com/mrnavastar/mclaunch/services"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/pterm/pterm"
)

// Event is one push message.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// DefaultTerminalTimeout bounds how long a terminal event waits on a
// subscriber that stopped reading.
const DefaultTerminalTimeout = 30 * time.Second

type subscription struct {
	ch     chan Event
	done   chan struct{}
	once   sync.Once
	cancel func()
}

// Bus fans push events out to subscribers. Progress events are dropped for a
// subscriber whose buffer is full. Terminal events wait until delivered, until
// the subscriber cancels or until the terminal timeout passes; a subscriber
// that times out is unsubscribed.
type Bus struct {
	mu              sync.Mutex
	subs            map[int]*subscription
	next            int
	terminalTimeout time.Duration
	logger          *pterm.Logger
}

func NewBus(logger *pterm.Logger) *Bus {
	if logger == nil {
		logger = util.NopLogger()
	}
	return &Bus{subs: map[int]*subscription{}, terminalTimeout: DefaultTerminalTimeout, logger: logger}
}

// WithTerminalTimeout sets how long Emit waits to deliver a terminal event.
func (b *Bus) WithTerminalTimeout(d time.Duration) *Bus {
	b.terminalTimeout = d
	return b
}

// Subscribe returns the event stream and a cancel func. Callers must cancel
// once they stop reading. The channel is never closed.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &subscription{ch: make(chan Event, buffer), done: make(chan struct{})}
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	sub.cancel = func() {
		sub.once.Do(func() {
			close(sub.done)
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
	return sub.ch, sub.cancel
}

func (b *Bus) Emit(event string, payload any) {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	e := Event{Name: event, Payload: payload}
	for _, sub := range subs {
		if event == services.EventProgress {
			select {
			case sub.ch <- e:
			case <-sub.done:
			default:
				b.logger.Debug("progress event dropped for slow subscriber")
			}
			continue
		}
		timer := time.NewTimer(b.terminalTimeout)
		select {
		case sub.ch <- e:
		case <-sub.done:
		case <-timer.C:
			b.logger.Warn("terminal event not read in time, dropping subscriber", b.logger.Args("event", event, "timeout", b.terminalTimeout))
			sub.cancel()
		}
		timer.Stop()
	}
}
