// Package scheduler decides which song plays next.
//
// Each cycle polls the paid request inbox. A pending request is claimed (removed from the
// inbox) before it is played; when none is pending, exactly one random song is played
// before the inbox is polled again. Paid requests are therefore drained oldest first and
// random rotation resumes as soon as the inbox is empty.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/jypelle/jukeboxsrv/apimodel"
	"github.com/jypelle/jukeboxsrv/internal/catalog"
	"github.com/jypelle/jukeboxsrv/internal/inbox"
	"github.com/jypelle/jukeboxsrv/internal/stats"
	"github.com/sirupsen/logrus"
	"math/rand"
	"sync"
	"time"
)

var (
	ErrNothingToPlay = errors.New("no paid request and no song eligible for random play")
	ErrClaimFailed   = errors.New("unable to claim paid request")
)

const DefaultPollInterval = 5 * time.Second

// claimFailureAlert is the number of consecutive claim failures logged as an error
const claimFailureAlert = 3

// AudioPlayer plays a file until it ends, fails, or ctx is cancelled
type AudioPlayer interface {
	Play(ctx context.Context, path string) error
}

type Options struct {
	// StatisticsPath is where statistics are flushed after every play
	StatisticsPath string
	// PollInterval is the wait before polling again when there is nothing to play
	PollInterval time.Duration
	// RandomGenres restricts random rotation to songs of these genres, empty means all
	RandomGenres []string

	Publisher Publisher
	PlayLog   *logrus.Logger
	Rand      *rand.Rand
	Now       func() time.Time
}

type Scheduler struct {
	lock sync.RWMutex

	catalog *catalog.Catalog
	inbox   inbox.Inbox
	stats   *stats.Store
	player  AudioPlayer

	statisticsPath string
	pollInterval   time.Duration
	publisher      Publisher
	playLog        *logrus.Logger
	random         *rand.Rand
	now            func() time.Time

	eligible   []int
	state      State
	nowPlaying *apimodel.NowPlaying

	// claimFailures counts consecutive failed claims, only touched by the cycle goroutine
	claimFailures int
}

func New(c *catalog.Catalog, requests inbox.Inbox, store *stats.Store, player AudioPlayer, options Options) *Scheduler {
	s := &Scheduler{
		catalog:        c,
		inbox:          requests,
		stats:          store,
		player:         player,
		statisticsPath: options.StatisticsPath,
		pollInterval:   options.PollInterval,
		publisher:      options.Publisher,
		playLog:        options.PlayLog,
		random:         options.Rand,
		now:            options.Now,
		eligible:       c.RandomEligible(options.RandomGenres),
		state:          IdleState,
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.random == nil {
		s.random = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.now == nil {
		s.now = time.Now
	}

	logrus.Infof("Random rotation uses %d of %d songs", len(s.eligible), c.Len())
	return s
}

func (s *Scheduler) State() State {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state
}

func (s *Scheduler) setState(state State) {
	s.lock.Lock()
	defer s.lock.Unlock()
	logrus.Debugf("Scheduler state: %s -> %s", s.state, state)
	s.state = state
}

// NowPlaying returns the song selected last, false before the first selection
func (s *Scheduler) NowPlaying() (apimodel.NowPlaying, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.nowPlaying == nil {
		return apimodel.NowPlaying{}, false
	}
	return *s.nowPlaying, true
}

// Run cycles until ctx is cancelled. Cancellation is only observed between cycles:
// the current song ends or is stopped by the player, its play is recorded, then Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	logrus.Infof("Jukebox scheduler starting")
	defer func() {
		s.setState(StoppedState)
		s.flush()
		logrus.Infof("Jukebox scheduler stopped")
	}()

	for ctx.Err() == nil {
		err := s.Cycle(ctx)
		if err == nil {
			continue
		}

		logrus.Warnf("%v, next try in %s", err, s.pollInterval)
		select {
		case <-ctx.Done():
		case <-time.After(s.pollInterval):
		}
	}
	return nil
}

// Cycle selects one song, plays it and records the play
func (s *Scheduler) Cycle(ctx context.Context) error {
	s.setState(SelectingState)

	index, kind, err := s.selectNext()
	if err != nil {
		return err
	}

	song, err := s.catalog.Get(index)
	if err != nil {
		// Poll only returns valid indices and random picks come from the catalog
		return err
	}

	startedAt := s.now()
	s.publish(song, kind, startedAt)

	s.setState(PlayingState)
	logrus.Infof("Now Playing (%s): %s - %s", kind, song.Artist, song.Title)
	playErr := s.player.Play(ctx, song.FilePath)
	if playErr != nil {
		logrus.Warnf("Failed to play %s song %q: %v", kind, song.Title, playErr)
	}

	s.setState(RecordingState)
	s.stats.RecordPlay(index, kind, startedAt)
	s.flush()
	s.logPlay(song, kind, playErr)

	return nil
}

// selectNext claims the oldest paid request, or picks a random song when there is none
func (s *Scheduler) selectNext() (int, apimodel.PlayKind, error) {
	requests := s.inbox.Poll()
	if len(requests) > 0 {
		index := requests[0]
		if err := s.inbox.Consume(index); err != nil {
			s.claimFailures++
			if s.claimFailures >= claimFailureAlert {
				logrus.Errorf("Paid request %d could not be claimed %d times in a row, nothing plays until the request document is writable: %v", index, s.claimFailures, err)
			}
			return 0, "", fmt.Errorf("%w %d: %v", ErrClaimFailed, index, err)
		}
		s.claimFailures = 0
		logrus.Debugf("Claimed paid request %d, %d more pending", index, len(requests)-1)
		return index, apimodel.PaidPlayKind, nil
	}

	if len(s.eligible) == 0 {
		return 0, "", ErrNothingToPlay
	}
	return s.eligible[s.random.Intn(len(s.eligible))], apimodel.RandomPlayKind, nil
}

func (s *Scheduler) publish(song catalog.Song, kind apimodel.PlayKind, startedAt time.Time) {
	nowPlaying := apimodel.NowPlaying{
		PlayId:    uuid.NewString(),
		Index:     apimodel.SongIndex(song.Index),
		Title:     song.Title,
		Artist:    song.Artist,
		FilePath:  song.FilePath,
		Kind:      kind,
		StartedAt: startedAt,
	}

	s.lock.Lock()
	s.nowPlaying = &nowPlaying
	s.lock.Unlock()

	if s.publisher != nil {
		if err := s.publisher.Publish(nowPlaying); err != nil {
			logrus.Warnf("Unable to publish now playing song: %v", err)
		}
	}
}

func (s *Scheduler) flush() {
	if s.statisticsPath == "" {
		return
	}
	if err := s.stats.Flush(s.statisticsPath); err != nil {
		logrus.Errorf("%v", err)
	}
}

func (s *Scheduler) logPlay(song catalog.Song, kind apimodel.PlayKind, playErr error) {
	if s.playLog == nil {
		return
	}
	entry := s.playLog.WithFields(logrus.Fields{
		"index":  song.Index,
		"artist": song.Artist,
		"title":  song.Title,
		"kind":   kind,
	})
	if playErr != nil {
		entry.WithField("outcome", "failed").WithError(playErr).Warn("Played")
		return
	}
	entry.WithField("outcome", "completed").Info("Played")
}
