package scheduler

import (
	"encoding/json"
	"errors"
	"github.com/jypelle/jukeboxsrv/apimodel"
	"github.com/jypelle/jukeboxsrv/internal/tool"
)

// Publisher exposes each new NowPlaying snapshot to displays
type Publisher interface {
	Publish(nowPlaying apimodel.NowPlaying) error
}

// FilePublisher writes the NowPlaying document to a file polled by displays
type FilePublisher struct {
	path string
}

func NewFilePublisher(path string) *FilePublisher {
	return &FilePublisher{path: path}
}

func (p *FilePublisher) Publish(nowPlaying apimodel.NowPlaying) error {
	raw, err := json.MarshalIndent(nowPlaying, "", "  ")
	if err != nil {
		return err
	}
	return tool.WriteFileAtomic(p.path, raw, 0o644)
}

// Publishers forwards each snapshot to all of its publishers
type Publishers []Publisher

func (p Publishers) Publish(nowPlaying apimodel.NowPlaying) error {
	var errs []error
	for _, publisher := range p {
		if err := publisher.Publish(nowPlaying); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
