package stats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jypelle/jukeboxsrv/apimodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(second int) PlayEvent {
	return PlayEvent{
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(second) * time.Second),
		Kind:      apimodel.RandomPlayKind,
	}
}

func TestHistoryAppendBelowCapacity(t *testing.T) {
	var h History
	for i := 0; i < 3; i++ {
		h.Append(event(i))
	}

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []PlayEvent{event(0), event(1), event(2)}, h.Events())
}

func TestHistoryEvictsOldestFirst(t *testing.T) {
	var h History
	total := HistoryCapacity + 25
	for i := 0; i < total; i++ {
		h.Append(event(i))
	}

	events := h.Events()
	require.Len(t, events, HistoryCapacity)
	assert.Equal(t, event(25), events[0])
	assert.Equal(t, event(total-1), events[HistoryCapacity-1])
	for i := 1; i < len(events); i++ {
		assert.True(t, events[i-1].Timestamp.Before(events[i].Timestamp))
	}
}

func TestHistoryJSON(t *testing.T) {
	var h History
	for i := 0; i < HistoryCapacity+3; i++ {
		h.Append(event(i))
	}

	raw, err := json.Marshal(h)
	require.NoError(t, err)

	var decoded History
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, h.Events(), decoded.Events())
}

func TestHistoryUnmarshalCapsOversizedList(t *testing.T) {
	events := make([]PlayEvent, HistoryCapacity+10)
	for i := range events {
		events[i] = event(i)
	}
	raw, err := json.Marshal(events)
	require.NoError(t, err)

	var h History
	require.NoError(t, json.Unmarshal(raw, &h))
	assert.Equal(t, events[10:], h.Events())
}
