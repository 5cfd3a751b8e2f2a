package srv

import (
	"errors"
	"github.com/jypelle/jukeboxsrv/internal/srv/event"
	"github.com/sirupsen/logrus"
)

var ErrNothingPlaying = errors.New("no song is playing")

func (s *ServerApp) eventLoop() {
	var apiEventChannel chan event.ApiEvent
	if s.apiDevice != nil {
		apiEventChannel = s.apiDevice.EventChannel()
	}

	for loop := true; loop; {
		select {
		case ev := <-s.inboxWatcherDevice.EventChannel():
			switch data := ev.Data.(type) {
			case event.InboxEventNewRequestData:
				logrus.Infof("New paid request detected, %d pending", data.PendingCount)
			}
		case ev := <-apiEventChannel:
			switch data := ev.Data.(type) {
			case event.ApiEventRequestData:
				err := s.inbox.Append(int(data.Index))
				if err == nil {
					logrus.Infof("Paid request %d added", data.Index)
				}
				ev.Result <- err
			case event.ApiEventSkipData:
				if s.playerDevice.Skip() {
					logrus.Infof("Current song skipped")
					ev.Result <- nil
				} else {
					ev.Result <- ErrNothingPlaying
				}
			case event.ApiEventAudioVolumeData:
				err := s.audioDevice.SetVolume(data.Volume)
				ev.Result <- err
			}
		case <-s.eventLoopAskDone:
			loop = false
		}
	}
	s.eventLoopDone <- true
}
