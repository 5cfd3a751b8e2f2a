package device

import (
	"github.com/gorilla/websocket"
	"github.com/jypelle/jukeboxsrv/apimodel"
	"github.com/sirupsen/logrus"
	"net/http"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Displays are served from anywhere on the local network
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Publish pushes a new NowPlaying snapshot to every feed subscriber
func (d *Api) Publish(nowPlaying apimodel.NowPlaying) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	for subscriber := range d.subscribers {
		// Slow subscribers only get the latest snapshot
		select {
		case <-subscriber:
		default:
		}
		subscriber <- nowPlaying
	}
	return nil
}

func (d *Api) subscribe() chan apimodel.NowPlaying {
	d.lock.Lock()
	defer d.lock.Unlock()

	subscriber := make(chan apimodel.NowPlaying, 1)
	d.subscribers[subscriber] = struct{}{}
	return subscriber
}

func (d *Api) unsubscribe(subscriber chan apimodel.NowPlaying) {
	d.lock.Lock()
	defer d.lock.Unlock()

	delete(d.subscribers, subscriber)
}

func (d *Api) SubscriberCount() int {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return len(d.subscribers)
}

// nowPlayingFeedAction streams NowPlaying snapshots over a websocket, starting with the current one
func (d *Api) nowPlayingFeedAction(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("Now playing feed upgrade error: %v", err)
		return
	}
	defer conn.Close()

	subscriber := d.subscribe()
	defer d.unsubscribe(subscriber)
	logrus.Debugf("Now playing feed connected: %s", r.RemoteAddr)

	// Drain incoming messages to notice the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if nowPlaying, ok := d.view.NowPlaying(); ok {
		if err := conn.WriteJSON(nowPlaying); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			logrus.Debugf("Now playing feed disconnected: %s", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case nowPlaying := <-subscriber:
			if err := conn.WriteJSON(nowPlaying); err != nil {
				return
			}
		}
	}
}
