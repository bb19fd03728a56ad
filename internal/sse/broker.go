// Package sse broadcasts build and command progress as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/postlock/internal/models"
)

// Event types.
const (
	TypePostProcessed  = "post.processed"
	TypeJournalUpdated = "journal.updated"
	TypeBuildStarted   = "build.started"
	TypeBuildFinished  = "build.finished"
	TypeCommandLine    = "command.line"
	TypeCommandExit    = "command.exit"
	TypeBundleImported = "bundle.imported"
)

const (
	defaultHistory   = 256
	defaultKeepAlive = 15 * time.Second
	clientBuffer     = 64
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// PostEvent is the payload of a post.processed event. Trigger says what
// caused the run: "build", "created" or "updated".
type PostEvent struct {
	Trigger string `json:"trigger"`
	models.FileResult
}

// Option configures a Broker.
type Option func(*Broker)

// WithHistory sets how many recent events are kept for clients that
// reconnect with Last-Event-ID. Zero disables replay.
func WithHistory(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.historySize = n
		}
	}
}

// WithKeepAlive sets the interval of the comment line ServeHTTP writes to
// idle streams.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.keepAlive = d
		}
	}
}

type frame struct {
	id  uint64
	raw []byte
}

type subscription struct {
	ch     chan []byte
	replay bool
	after  uint64
	done   chan struct{}
}

// Broker fans events out to SSE clients.
//
// One loop goroutine owns the client set, the event sequence, the replay
// history and the journal throttle. Public methods talk to it over channels.
type Broker struct {
	journalMin  time.Duration
	historySize int
	keepAlive   time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan subscription
	publishCh     chan Event
	postEventCh   chan PostEvent

	clients atomic.Int64
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker. journal.updated events are sent at most once
// per journalThrottle.
func NewBroker(journalThrottle time.Duration, opts ...Option) *Broker {
	if journalThrottle <= 0 {
		journalThrottle = time.Second
	}

	b := &Broker{
		journalMin:    journalThrottle,
		historySize:   defaultHistory,
		keepAlive:     defaultKeepAlive,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan subscription),
		publishCh:     make(chan Event, 256),
		postEventCh:   make(chan PostEvent, 256),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	history := make([]frame, 0, b.historySize)
	var (
		seq         uint64
		lastJournal time.Time
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		f := frame{id: seq, raw: []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))}

		if b.historySize > 0 {
			if len(history) == b.historySize {
				history = append(history[:0], history[1:]...)
			}
			history = append(history, f)
		}

		for ch := range clients {
			select {
			case ch <- f.raw:
			default:
				// Slow client; drop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			b.clients.Store(0)
			return

		case sub := <-b.subscribeCh:
			if sub.replay {
				for _, f := range history {
					if f.id <= sub.after {
						continue
					}
					select {
					case sub.ch <- f.raw:
					default:
					}
				}
			}
			clients[sub.ch] = struct{}{}
			b.clients.Store(int64(len(clients)))
			close(sub.done)

		case sub := <-b.unsubscribeCh:
			if _, ok := clients[sub.ch]; ok {
				delete(clients, sub.ch)
				close(sub.ch)
			}
			b.clients.Store(int64(len(clients)))
			close(sub.done)

		case event := <-b.publishCh:
			broadcast(event)

		case ev := <-b.postEventCh:
			broadcast(Event{Type: TypePostProcessed, Data: ev})

			now := time.Now()
			if now.Sub(lastJournal) >= b.journalMin {
				lastJournal = now
				broadcast(Event{Type: TypeJournalUpdated, Data: map[string]string{}})
			}
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client that receives events published from now on.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribe(subscription{})
}

// SubscribeAfter adds a client and first replays the buffered events whose
// id is greater than lastID.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	return b.subscribe(subscription{replay: true, after: lastID})
}

func (b *Broker) subscribe(sub subscription) chan []byte {
	sub.ch = make(chan []byte, clientBuffer)
	sub.done = make(chan struct{})
	if b.closed.Load() {
		close(sub.ch)
		return sub.ch
	}

	select {
	case b.subscribeCh <- sub:
		<-sub.done
	case <-b.stopped:
		close(sub.ch)
	}
	return sub.ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	sub := subscription{ch: ch, done: make(chan struct{})}
	select {
	case b.unsubscribeCh <- sub:
		<-sub.done
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	return int(b.clients.Load())
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishPost publishes a per-post result and a throttled journal.updated event.
func (b *Broker) PublishPost(trigger string, res models.FileResult) {
	if b.closed.Load() {
		return
	}
	select {
	case b.postEventCh <- PostEvent{Trigger: trigger, FileResult: res}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A client that
// reconnects with a Last-Event-ID header gets the events it missed, as far
// as the history reaches.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var ch chan []byte
	if last, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		ch = b.SubscribeAfter(last)
	} else {
		ch = b.Subscribe()
	}
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
