package stats

import (
	"encoding/json"
	"github.com/jypelle/jukeboxsrv/apimodel"
	"time"
)

// HistoryCapacity is the number of most recent plays kept per song
const HistoryCapacity = 100

type PlayEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      apimodel.PlayKind `json:"kind"`
}

// History is a fixed-size ring of play events: once full, each append overwrites the oldest entry.
type History struct {
	events [HistoryCapacity]PlayEvent
	start  int
	count  int
}

func (h *History) Append(event PlayEvent) {
	if h.count < HistoryCapacity {
		h.events[(h.start+h.count)%HistoryCapacity] = event
		h.count++
		return
	}
	h.events[h.start] = event
	h.start = (h.start + 1) % HistoryCapacity
}

func (h *History) Len() int {
	return h.count
}

// Events returns the events from oldest to newest
func (h *History) Events() []PlayEvent {
	events := make([]PlayEvent, h.count)
	for i := 0; i < h.count; i++ {
		events[i] = h.events[(h.start+i)%HistoryCapacity]
	}
	return events
}

// retain keeps the events accepted by keep, in order, and returns how many were dropped
func (h *History) retain(keep func(PlayEvent) bool) int {
	events := h.Events()
	*h = History{}
	dropped := 0
	for _, event := range events {
		if keep(event) {
			h.Append(event)
		} else {
			dropped++
		}
	}
	return dropped
}

func (h History) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Events())
}

func (h *History) UnmarshalJSON(data []byte) error {
	var events []PlayEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return err
	}
	*h = History{}
	for _, event := range events {
		h.Append(event)
	}
	return nil
}
