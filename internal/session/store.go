package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Well-known channel names. Per-metric readings use reading.MetricKind.Channel.
const (
	ChannelAlerts             = "alerts"
	ChannelConnectionStatus   = "connectionStatus"
	ChannelLastSeen           = "lastSeen"
	ChannelIncidentSummaries  = "incidentSummaries"
	ChannelIncidentStatus     = "incidentStatus"
	ChannelSubmittedIncidents = "submittedIncidents"
	ChannelExposure           = "exposure"
	ChannelErrors             = "errors"
)

var (
	// ErrWriterTaken is returned by Claim when another owner writes the channel.
	ErrWriterTaken = errors.New("channel already has a writer")
	// ErrEmptyChannel is returned by Claim for a blank channel name.
	ErrEmptyChannel = errors.New("channel name is empty")
)

// Value is one published snapshot of a channel.
type Value struct {
	Channel     string    `json:"channel"`
	Seq         uint64    `json:"seq"`
	Data        any       `json:"data"`
	PublishedAt time.Time `json:"published_at"`
}

// Observer receives every value published on a channel.
// It runs on the publishing goroutine and must not publish to the same channel.
type Observer func(Value)

type channel struct {
	// mu serializes publish and fan-out so observers see one order.
	mu        sync.Mutex
	owner     string
	seq       uint64
	latest    *Value
	observers map[uint64]Observer
	nextID    uint64
}

// Store is the observable state of one session.
type Store struct {
	now func() time.Time

	mu       sync.Mutex
	channels map[string]*channel
}

// New creates an empty store.
func New() *Store {
	return &Store{
		now:      time.Now,
		channels: make(map[string]*channel),
	}
}

func (s *Store) channel(name string) *channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[name]
	if !ok {
		ch = &channel{observers: make(map[uint64]Observer)}
		s.channels[name] = ch
	}

	return ch
}

// Writer is the exclusive publishing handle of one channel.
type Writer struct {
	store *Store
	name  string
	ch    *channel
	owner string
}

// Claim makes owner the only writer of name.
// Claiming again with the same owner returns a new handle for it.
func (s *Store) Claim(name, owner string) (*Writer, error) {
	if name == "" {
		return nil, ErrEmptyChannel
	}

	ch := s.channel(name)

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.owner != "" && ch.owner != owner {
		return nil, fmt.Errorf("%w: %s is written by %s", ErrWriterTaken, name, ch.owner)
	}

	ch.owner = owner

	return &Writer{store: s, name: name, ch: ch, owner: owner}, nil
}

// Channel returns the channel name of the writer.
func (w *Writer) Channel() string {
	return w.name
}

// Publish stores data as the latest value and fans it out to observers.
// It returns false if the writer lost its claim through Reset.
func (w *Writer) Publish(data any) bool {
	w.ch.mu.Lock()
	defer w.ch.mu.Unlock()

	if w.ch.owner != w.owner {
		return false
	}

	v := w.ch.next(w.name, data, w.store.now())
	w.ch.latest = &v
	w.ch.fanOut(v)

	return true
}

// next returns the next value of the channel. Callers hold mu.
func (ch *channel) next(name string, data any, at time.Time) Value {
	ch.seq++

	return Value{
		Channel:     name,
		Seq:         ch.seq,
		Data:        data,
		PublishedAt: at,
	}
}

// fanOut delivers v to the observers in registration order. Callers hold mu.
func (ch *channel) fanOut(v Value) {
	ids := make([]uint64, 0, len(ch.observers))
	for id := range ch.observers {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		ch.observers[id](v)
	}
}

// Observe registers fn on name and immediately delivers the latest value, if any.
// The returned function unregisters fn; it is safe to call more than once.
func (s *Store) Observe(name string, fn Observer) func() {
	ch := s.channel(name)

	ch.mu.Lock()
	ch.nextID++
	id := ch.nextID
	ch.observers[id] = fn

	if ch.latest != nil {
		fn(*ch.latest)
	}
	ch.mu.Unlock()

	return func() {
		ch.mu.Lock()
		delete(ch.observers, id)
		ch.mu.Unlock()
	}
}

// Latest returns the latest value of name.
func (s *Store) Latest(name string) (Value, bool) {
	ch := s.channel(name)

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.latest == nil {
		return Value{}, false
	}

	return *ch.latest, true
}

// Snapshot returns the latest value of every channel that has one.
func (s *Store) Snapshot() map[string]Value {
	s.mu.Lock()
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	s.mu.Unlock()

	snapshot := make(map[string]Value, len(names))

	for _, name := range names {
		if v, ok := s.Latest(name); ok {
			snapshot[name] = v
		}
	}

	return snapshot
}

// Reset clears every value and releases every writer claim.
// Observers of a channel that held a value receive a cleared value (nil Data)
// with the next sequence number; they stay registered.
func (s *Store) Reset() {
	s.mu.Lock()
	names := make([]string, 0, len(s.channels))
	channels := make([]*channel, 0, len(s.channels))

	for name, ch := range s.channels {
		names = append(names, name)
		channels = append(channels, ch)
	}
	s.mu.Unlock()

	now := s.now()

	for i, ch := range channels {
		ch.mu.Lock()

		if ch.latest != nil {
			ch.latest = nil
			ch.fanOut(ch.next(names[i], nil, now))
		}

		ch.owner = ""
		ch.mu.Unlock()
	}
}
