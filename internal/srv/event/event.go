package event

import (
	"github.com/jypelle/jukeboxsrv/apimodel"
)

// Inbox
type InboxEvent struct {
	Data interface{}
}

type InboxEventNewRequestData struct {
	PendingCount int
}

// Api
type ApiEvent struct {
	Result chan error
	Data   interface{}
}

type ApiEventRequestData struct {
	Index apimodel.SongIndex
}

type ApiEventSkipData struct{}

type ApiEventAudioVolumeData struct {
	Volume int64
}
