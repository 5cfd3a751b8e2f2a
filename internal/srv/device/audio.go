package device

import (
	"github.com/jypelle/jukeboxsrv/internal/srv/config"
	"github.com/sirupsen/logrus"
	"os/exec"
	"strconv"
	"sync"
)

const mixerControl = "PCM"

// Audio drives the ALSA mixer volume
type Audio struct {
	lock        sync.RWMutex
	serverState *config.ServerState
	runCommand  func(name string, args ...string) error
}

func NewAudio(serverState *config.ServerState) *Audio {
	device := Audio{
		serverState: serverState,
		runCommand: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
	return &device
}

func (w *Audio) Start() {
	logrus.Infof("Start audio device")

	w.lock.Lock()
	defer w.lock.Unlock()

	w.applyVolume()
}

func (w *Audio) Stop() {
	logrus.Infof("Stop audio device")
}

func (w *Audio) setVolume(volume int64) {
	if volume > 100 {
		volume = 100
	}
	if volume < 0 {
		volume = 0
	}
	w.serverState.SetVolume(volume)
	w.applyVolume()
}

func (w *Audio) applyVolume() {
	err := w.runCommand("amixer", "set", mixerControl, strconv.FormatInt(w.serverState.Volume(), 10)+"%")
	if err != nil {
		logrus.Warnf("Unable to set volume: %v", err)
		return
	}
}

func (w *Audio) Volume() int64 {
	return w.serverState.Volume()
}

func (w *Audio) SetVolume(volume int64) error {
	logrus.Infof("Set volume to %d%%", volume)
	w.lock.Lock()
	defer w.lock.Unlock()
	w.setVolume(volume)
	return nil
}
