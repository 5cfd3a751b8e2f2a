package config

import (
	"fmt"
	"github.com/jypelle/jukeboxsrv/internal/tool"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"os"
	"sync"
	"time"
)

const (
	DefaultVolume = 40
	saveDelay     = 10 * time.Second
)

type ServerState struct {
	serverStateConfig     ServerStateConfig
	lock                  sync.RWMutex
	backupTimer           *time.Timer
	completeStateFilename string
	saveDelay             time.Duration
}

func NewServerState(completeStateFilename string) (*ServerState, error) {
	serverState := &ServerState{
		completeStateFilename: completeStateFilename,
		saveDelay:             saveDelay,
	}

	rawConfig, err := os.ReadFile(completeStateFilename)
	if err == nil {
		// Interpret state file
		err = yaml.Unmarshal(rawConfig, &serverState.serverStateConfig)
		if err != nil {
			return nil, fmt.Errorf("unable to interpret state file: %w", err)
		}
	} else {
		// Create default state file
		logrus.Infof("Create default state file")
		serverState.SetVolume(DefaultVolume)
	}

	return serverState, nil
}

func (ss *ServerState) Volume() int64 {
	ss.lock.RLock()
	defer ss.lock.RUnlock()

	return ss.serverStateConfig.Volume
}

func (ss *ServerState) SetVolume(volume int64) {
	ss.lock.Lock()
	defer ss.lock.Unlock()

	ss.serverStateConfig.Volume = volume
	ss.scheduleSave()
}

func (ss *ServerState) scheduleSave() {
	if ss.backupTimer == nil {
		ss.backupTimer = time.AfterFunc(ss.saveDelay, func() {
			ss.lock.Lock()
			defer ss.lock.Unlock()
			ss.save()
		})
	} else {
		ss.backupTimer.Reset(ss.saveDelay)
	}
}

func (ss *ServerState) save() {
	logrus.Infof("Save state file: %s", ss.completeStateFilename)
	rawConfig, err := yaml.Marshal(&ss.serverStateConfig)
	if err != nil {
		logrus.Errorf("Unable to serialize state file: %v", err)
		return
	}
	err = tool.WriteFileAtomic(ss.completeStateFilename, rawConfig, 0660)
	if err != nil {
		logrus.Errorf("Unable to save state file: %v", err)
	}
}

func (ss *ServerState) FlushSave() {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	if ss.backupTimer != nil {
		if ss.backupTimer.Stop() {
			ss.save()
		}
	}
}

type ServerStateConfig struct {
	Volume int64 `yaml:"volume"`
}
