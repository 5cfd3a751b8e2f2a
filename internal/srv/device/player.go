package device

import (
	"context"
	"errors"
	"github.com/sirupsen/logrus"
	"os/exec"
	"sync"
)

var ErrPlayerStopped = errors.New("player stopped")

// Player plays one song at a time with an external command (cvlc by default)
type Player struct {
	lock    sync.RWMutex
	command string
	args    []string

	currentCmd *exec.Cmd
	skipped    bool
	stopped    bool
}

func NewPlayer(command string, args []string) *Player {
	return &Player{
		command: command,
		args:    args,
	}
}

func (d *Player) Start() {
	logrus.Infof("Start player device (%s)", d.command)

	d.lock.Lock()
	defer d.lock.Unlock()
	d.stopped = false
}

// Stop kills the current song and refuses to play any other
func (d *Player) Stop() {
	logrus.Infof("Stop player device")

	d.lock.Lock()
	defer d.lock.Unlock()

	d.stopped = true
	d.kill()
}

// Play blocks until the song ends, is skipped, or ctx is cancelled
func (d *Player) Play(ctx context.Context, path string) error {
	d.lock.Lock()
	if d.stopped {
		d.lock.Unlock()
		return ErrPlayerStopped
	}
	args := append(append([]string{}, d.args...), path)
	cmd := exec.CommandContext(ctx, d.command, args...)
	err := cmd.Start()
	if err != nil {
		d.lock.Unlock()
		return err
	}
	d.currentCmd = cmd
	d.skipped = false
	d.lock.Unlock()

	err = cmd.Wait()

	d.lock.Lock()
	defer d.lock.Unlock()
	skipped := d.skipped
	if d.currentCmd == cmd {
		d.currentCmd = nil
		d.skipped = false
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if skipped {
		logrus.Debugf("Song skipped: %s", path)
		return nil
	}
	return err
}

// Skip ends the current song early
func (d *Player) Skip() bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.currentCmd == nil {
		return false
	}
	d.skipped = true
	d.kill()
	return true
}

func (d *Player) Playing() bool {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.currentCmd != nil
}

func (d *Player) kill() {
	if d.currentCmd != nil && d.currentCmd.Process != nil {
		if err := d.currentCmd.Process.Kill(); err != nil {
			logrus.Errorf("Failed to kill process: %v", err)
		}
	}
}
