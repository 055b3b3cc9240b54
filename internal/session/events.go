package session

import (
	"encoding/json"
	"time"
)

// MaxMicroEvents bounds the micro-event history kept on a session.
const MaxMicroEvents = 200

// Micro-event sources.
const (
	SourceTitle = "title"
	SourceURL   = "url"
)

// MicroEvent is one window-sampler observation attached to a session.
// Only the host and two flags of a browser URL are kept, never the URL.
type MicroEvent struct {
	Timestamp time.Time      `json:"t"`
	App       string         `json:"app"`
	Title     string         `json:"title"`
	Browser   *BrowserSignal `json:"browser,omitempty"`
	Key       string         `json:"key,omitempty"`
	Source    string         `json:"source,omitempty"`
}

// BrowserSignal summarizes the active tab of a browser.
type BrowserSignal struct {
	Host   string `json:"host"`
	IsJira bool   `json:"is_jira"`
	HasKey bool   `json:"has_key"`
}

// EventRing is a fixed-capacity buffer of micro-events. When full, Push
// evicts the oldest event. The zero value is ready to use.
type EventRing struct {
	buf   []MicroEvent
	start int
	n     int
}

func (r *EventRing) capacity() int { return MaxMicroEvents }

// Push appends ev, evicting the oldest event when the ring is full.
func (r *EventRing) Push(ev MicroEvent) {
	if r.buf == nil {
		r.buf = make([]MicroEvent, r.capacity())
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = ev
		r.n++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of events held.
func (r *EventRing) Len() int { return r.n }

// All returns the events oldest first.
func (r *EventRing) All() []MicroEvent {
	out := make([]MicroEvent, 0, r.n)
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// Last returns up to k events, newest first.
func (r *EventRing) Last(k int) []MicroEvent {
	if k > r.n {
		k = r.n
	}
	out := make([]MicroEvent, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, r.buf[(r.start+r.n-1-i)%len(r.buf)])
	}
	return out
}

// Newest returns the most recent event.
func (r *EventRing) Newest() (MicroEvent, bool) {
	if r.n == 0 {
		return MicroEvent{}, false
	}
	return r.buf[(r.start+r.n-1)%len(r.buf)], true
}

// Clone returns an independent copy.
func (r EventRing) Clone() EventRing {
	var c EventRing
	for _, ev := range r.All() {
		c.Push(ev)
	}
	return c
}

// MarshalJSON encodes the ring as an array, oldest first.
func (r EventRing) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.All())
}

// UnmarshalJSON keeps the newest MaxMicroEvents entries of the array.
func (r *EventRing) UnmarshalJSON(b []byte) error {
	var evs []MicroEvent
	if err := json.Unmarshal(b, &evs); err != nil {
		return err
	}
	*r = EventRing{}
	for _, ev := range evs {
		r.Push(ev)
	}
	return nil
}
