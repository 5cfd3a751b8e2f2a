package device

import (
	"github.com/fsnotify/fsnotify"
	"github.com/jypelle/jukeboxsrv/internal/srv/event"
	"github.com/sirupsen/logrus"
	"path/filepath"
	"sync"
)

// PendingLister lists the raw content of the request document
type PendingLister interface {
	Pending() []int
}

// InboxWatcher reports new paid requests as soon as the request document grows.
// It only observes: selection and consumption stay with the scheduler.
type InboxWatcher struct {
	lock         sync.RWMutex
	eventChannel chan event.InboxEvent

	requestFilename string
	requests        PendingLister
	watcher         *fsnotify.Watcher
	pendingCount    int

	askDone chan bool
	done    chan bool
}

func NewInboxWatcher(requestFilename string, requests PendingLister) *InboxWatcher {
	return &InboxWatcher{
		eventChannel:    make(chan event.InboxEvent),
		requestFilename: filepath.Clean(requestFilename),
		requests:        requests,
		askDone:         make(chan bool),
		done:            make(chan bool),
	}
}

func (d *InboxWatcher) Start() error {
	logrus.Infof("Start inbox watcher device")
	d.lock.Lock()
	defer d.lock.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// The document is replaced by rename, so its folder is watched
	if err = watcher.Add(filepath.Dir(d.requestFilename)); err != nil {
		watcher.Close()
		return err
	}
	d.watcher = watcher
	d.pendingCount = len(d.requests.Pending())

	go d.watch(watcher)
	return nil
}

func (d *InboxWatcher) watch(watcher *fsnotify.Watcher) {
	for loop := true; loop; {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				loop = false
				break
			}
			if filepath.Clean(ev.Name) != d.requestFilename || !ev.Has(fsnotify.Create|fsnotify.Write) {
				continue
			}
			if pendingCount, grown := d.refresh(); grown {
				logrus.Debugf("Request document grew to %d entries", pendingCount)
				select {
				case d.eventChannel <- event.InboxEvent{Data: event.InboxEventNewRequestData{PendingCount: pendingCount}}:
				case <-d.askDone:
					loop = false
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				loop = false
				break
			}
			logrus.Warnf("Request document watch error: %v", err)
		case <-d.askDone:
			loop = false
		}
	}
	d.done <- true
}

// refresh updates the pending count and tells whether it grew
func (d *InboxWatcher) refresh() (int, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()

	pendingCount := len(d.requests.Pending())
	grown := pendingCount > d.pendingCount
	d.pendingCount = pendingCount
	return pendingCount, grown
}

func (d *InboxWatcher) StopSendingEvent() {
	logrus.Infof("Stop inbox watcher device")
	d.lock.Lock()
	watcher := d.watcher
	d.watcher = nil
	d.lock.Unlock()

	if watcher == nil {
		return
	}
	select {
	case d.askDone <- true:
		<-d.done
	case <-d.done:
	}
	if err := watcher.Close(); err != nil {
		logrus.Warnf("Unable to close request document watcher: %v", err)
	}
}

func (d *InboxWatcher) EventChannel() chan event.InboxEvent {
	return d.eventChannel
}
