package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"github.com/jypelle/jukeboxsrv/apimodel"
	"github.com/jypelle/jukeboxsrv/internal/catalog"
	"github.com/jypelle/jukeboxsrv/internal/inbox"
	"github.com/jypelle/jukeboxsrv/internal/stats"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakePlayer struct {
	lock   sync.Mutex
	played []string
	err    error
	onPlay func(path string)
}

func (p *fakePlayer) Play(ctx context.Context, path string) error {
	p.lock.Lock()
	p.played = append(p.played, path)
	onPlay := p.onPlay
	p.lock.Unlock()

	if onPlay != nil {
		onPlay(path)
	}
	return p.err
}

func (p *fakePlayer) Played() []string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]string(nil), p.played...)
}

type fakeInbox struct {
	pending    []int
	consumeErr error
	polls      int
	consumes   int
}

func (f *fakeInbox) Poll() []int {
	f.polls++
	return append([]int{}, f.pending...)
}

func (f *fakeInbox) Consume(index int) error {
	f.consumes++
	if f.consumeErr != nil {
		return f.consumeErr
	}
	for i, pending := range f.pending {
		if pending == index {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return nil
		}
	}
	return inbox.ErrNotPending
}

type fixture struct {
	dir       string
	catalog   *catalog.Catalog
	inbox     *inbox.FileInbox
	stats     *stats.Store
	player    *fakePlayer
	statsPath string
}

func newFixture(t *testing.T, genres ...string) *fixture {
	dir := t.TempDir()
	songs := make([]catalog.Song, 10)
	for i := range songs {
		songs[i] = catalog.Song{
			Title:    "Song " + string(rune('A'+i)),
			Artist:   "Artist",
			FilePath: filepath.Join(dir, "music", string(rune('a'+i))+".mp3"),
		}
		if i < len(genres) {
			songs[i].Genre = genres[i]
		}
	}
	c := catalog.New(songs)

	return &fixture{
		dir:       dir,
		catalog:   c,
		inbox:     inbox.NewFileInbox(filepath.Join(dir, "PaidMusicPlayList.json"), c),
		stats:     stats.NewStore(),
		player:    &fakePlayer{},
		statsPath: filepath.Join(dir, "song_statistics.json"),
	}
}

func (f *fixture) writeRequests(t *testing.T, content string) {
	require.NoError(t, os.WriteFile(f.inbox.Path(), []byte(content), 0o644))
}

func (f *fixture) scheduler(options Options) *Scheduler {
	if options.StatisticsPath == "" {
		options.StatisticsPath = f.statsPath
	}
	if options.Rand == nil {
		options.Rand = rand.New(rand.NewSource(1))
	}
	if options.PollInterval == 0 {
		options.PollInterval = time.Millisecond
	}
	return New(f.catalog, f.inbox, f.stats, f.player, options)
}

func (f *fixture) path(index int) string {
	song, _ := f.catalog.Get(index)
	return song.FilePath
}

func TestCyclePlaysPaidRequestsInOrder(t *testing.T) {
	f := newFixture(t)
	f.writeRequests(t, "[3,7,3]")
	s := f.scheduler(Options{})

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Cycle(context.Background()))
	}

	assert.Equal(t, []string{f.path(3), f.path(7), f.path(3)}, f.player.Played())
	assert.Empty(t, f.inbox.Pending())

	stat, ok := f.stats.Get(3)
	require.True(t, ok)
	assert.EqualValues(t, 2, stat.PlayCount)
	for _, event := range stat.History.Events() {
		assert.Equal(t, apimodel.PaidPlayKind, event.Kind)
	}
	stat, ok = f.stats.Get(7)
	require.True(t, ok)
	assert.EqualValues(t, 1, stat.PlayCount)
}

func TestCycleClaimsBeforePlaying(t *testing.T) {
	f := newFixture(t)
	f.writeRequests(t, "[4]")
	f.player.onPlay = func(path string) {
		// Request already gone from the inbox while the song plays
		assert.Empty(t, f.inbox.Pending())
	}
	s := f.scheduler(Options{})

	require.NoError(t, s.Cycle(context.Background()))
	assert.Equal(t, []string{f.path(4)}, f.player.Played())
}

func TestCrashAfterClaimLeavesRequestConsumed(t *testing.T) {
	f := newFixture(t)
	f.writeRequests(t, "[4]")

	ctx, cancel := context.WithCancel(context.Background())
	f.player.onPlay = func(path string) { cancel() }
	f.player.err = errors.New("killed")
	first := f.scheduler(Options{})
	require.NoError(t, first.Run(ctx))

	// A fresh scheduler over the same inbox never replays the claimed request
	f.player = &fakePlayer{}
	second := f.scheduler(Options{})
	require.NoError(t, second.Cycle(context.Background()))

	np, ok := second.NowPlaying()
	require.True(t, ok)
	assert.Equal(t, apimodel.RandomPlayKind, np.Kind)
}

func TestCycleRecordsFailedPlayback(t *testing.T) {
	f := newFixture(t)
	f.writeRequests(t, "[2]")
	f.player.err = errors.New("no audio device")
	s := f.scheduler(Options{})

	require.NoError(t, s.Cycle(context.Background()))

	stat, ok := f.stats.Get(2)
	require.True(t, ok)
	assert.EqualValues(t, 1, stat.PlayCount)

	persisted := stats.Load(f.statsPath)
	stat, ok = persisted.Get(2)
	require.True(t, ok)
	assert.EqualValues(t, 1, stat.PlayCount)
}

func TestCycleRandomPlayLeavesInboxUntouched(t *testing.T) {
	f := newFixture(t)
	in := &fakeInbox{}
	s := New(f.catalog, in, f.stats, f.player, Options{
		StatisticsPath: f.statsPath,
		Rand:           rand.New(rand.NewSource(42)),
	})

	for i := 0; i < 20; i++ {
		require.NoError(t, s.Cycle(context.Background()))
	}

	assert.Equal(t, 20, in.polls)
	assert.Zero(t, in.consumes)
	assert.EqualValues(t, 20, f.stats.Summary().TotalPlays)
	for _, entry := range f.stats.TopPlayed(10) {
		stat, _ := f.stats.Get(entry.Index)
		for _, event := range stat.History.Events() {
			assert.Equal(t, apimodel.RandomPlayKind, event.Kind)
		}
	}
}

func TestCycleRandomPlayThenPaidRequest(t *testing.T) {
	f := newFixture(t)
	f.writeRequests(t, "[]")
	requested := false
	f.player.onPlay = func(path string) {
		if !requested {
			requested = true
			require.NoError(t, f.inbox.Append(9))
		}
	}
	s := f.scheduler(Options{})

	require.NoError(t, s.Cycle(context.Background()))
	np, _ := s.NowPlaying()
	assert.Equal(t, apimodel.RandomPlayKind, np.Kind)

	require.NoError(t, s.Cycle(context.Background()))
	np, _ = s.NowPlaying()
	assert.Equal(t, apimodel.PaidPlayKind, np.Kind)
	assert.Equal(t, apimodel.SongIndex(9), np.Index)
}

func TestCycleRandomEligibility(t *testing.T) {
	f := newFixture(t, "rock", "jazz norandom", "Rock", "pop")
	s := f.scheduler(Options{RandomGenres: []string{"rock"}})

	for i := 0; i < 30; i++ {
		require.NoError(t, s.Cycle(context.Background()))
	}

	for _, path := range f.player.Played() {
		assert.Contains(t, []string{f.path(0), f.path(2)}, path)
	}
}

func TestCycleNothingToPlay(t *testing.T) {
	f := newFixture(t, "a norandom", "b norandom", "c norandom", "d norandom", "e norandom",
		"f norandom", "g norandom", "h norandom", "i norandom", "j norandom")
	s := f.scheduler(Options{})

	assert.ErrorIs(t, s.Cycle(context.Background()), ErrNothingToPlay)
	assert.Empty(t, f.player.Played())

	// Paid requests still play songs excluded from random rotation
	f.writeRequests(t, "[5]")
	require.NoError(t, s.Cycle(context.Background()))
	assert.Equal(t, []string{f.path(5)}, f.player.Played())
}

func TestCycleClaimFailure(t *testing.T) {
	f := newFixture(t)
	in := &fakeInbox{pending: []int{1}, consumeErr: inbox.ErrConflict}
	s := New(f.catalog, in, f.stats, f.player, Options{StatisticsPath: f.statsPath})

	err := s.Cycle(context.Background())
	assert.ErrorIs(t, err, ErrClaimFailed)
	assert.Empty(t, f.player.Played())
	assert.Zero(t, f.stats.Summary().TotalPlays)
}

func TestCycleRepeatedClaimFailureIsLoggedAsError(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	errorCount := func() int {
		count := 0
		for _, entry := range hook.AllEntries() {
			if entry.Level == logrus.ErrorLevel {
				count++
			}
		}
		return count
	}

	f := newFixture(t)
	in := &fakeInbox{pending: []int{1}, consumeErr: inbox.ErrConflict}
	s := New(f.catalog, in, f.stats, f.player, Options{StatisticsPath: f.statsPath})

	for cycle := 1; cycle < claimFailureAlert; cycle++ {
		assert.ErrorIs(t, s.Cycle(context.Background()), ErrClaimFailed)
	}
	assert.Zero(t, errorCount())

	assert.ErrorIs(t, s.Cycle(context.Background()), ErrClaimFailed)
	assert.Equal(t, 1, errorCount())

	// a successful claim starts the count again
	in.consumeErr = nil
	require.NoError(t, s.Cycle(context.Background()))
	assert.Equal(t, []string{f.path(1)}, f.player.Played())

	in.pending = []int{2}
	in.consumeErr = inbox.ErrConflict
	hook.Reset()
	for cycle := 1; cycle < claimFailureAlert; cycle++ {
		assert.ErrorIs(t, s.Cycle(context.Background()), ErrClaimFailed)
	}
	assert.Zero(t, errorCount())
}

func TestCycleFlushFailure(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(Options{StatisticsPath: filepath.Join(f.dir, "missing", "stats.json")})

	require.NoError(t, s.Cycle(context.Background()))
	require.NoError(t, s.Cycle(context.Background()))

	assert.EqualValues(t, 2, f.stats.Summary().TotalPlays)
}

func TestCyclePublishesNowPlaying(t *testing.T) {
	f := newFixture(t)
	f.writeRequests(t, "[6,6]")
	nowPlayingPath := filepath.Join(f.dir, "CurrentSongPlaying.json")
	startedAt := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	s := f.scheduler(Options{
		Publisher: NewFilePublisher(nowPlayingPath),
		Now:       func() time.Time { return startedAt },
	})

	_, ok := s.NowPlaying()
	assert.False(t, ok)

	require.NoError(t, s.Cycle(context.Background()))
	first, ok := s.NowPlaying()
	require.True(t, ok)

	raw, err := os.ReadFile(nowPlayingPath)
	require.NoError(t, err)
	var published apimodel.NowPlaying
	require.NoError(t, json.Unmarshal(raw, &published))
	assert.Equal(t, first.PlayId, published.PlayId)
	assert.Equal(t, apimodel.SongIndex(6), published.Index)
	assert.Equal(t, "Song G", published.Title)
	assert.Equal(t, apimodel.PaidPlayKind, published.Kind)
	assert.True(t, startedAt.Equal(published.StartedAt))

	// Same song twice in a row, distinct play
	require.NoError(t, s.Cycle(context.Background()))
	second, _ := s.NowPlaying()
	assert.Equal(t, first.Index, second.Index)
	assert.NotEqual(t, first.PlayId, second.PlayId)
}

func TestCycleWritesPlayLog(t *testing.T) {
	f := newFixture(t)
	f.writeRequests(t, "[1]")

	var out bytes.Buffer
	playLog := logrus.New()
	playLog.SetOutput(&out)
	playLog.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	s := f.scheduler(Options{PlayLog: playLog})

	require.NoError(t, s.Cycle(context.Background()))

	line := out.String()
	assert.True(t, strings.Contains(line, "kind=paid"), line)
	assert.True(t, strings.Contains(line, "index=1"), line)
	assert.True(t, strings.Contains(line, "outcome=completed"), line)
}

func TestRunStopsBetweenCycles(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cycles := 0
	f.player.onPlay = func(path string) {
		cycles++
		if cycles == 3 {
			cancel()
		}
	}
	s := f.scheduler(Options{})
	assert.Equal(t, IdleState, s.State())

	require.NoError(t, s.Run(ctx))

	assert.Len(t, f.player.Played(), 3)
	assert.Equal(t, StoppedState, s.State())
	assert.EqualValues(t, 3, stats.Load(f.statsPath).Summary().TotalPlays)
}

func TestRunWaitsWhenNothingToPlay(t *testing.T) {
	f := newFixture(t, "a norandom", "b norandom", "c norandom", "d norandom", "e norandom",
		"f norandom", "g norandom", "h norandom", "i norandom", "j norandom")
	s := f.scheduler(Options{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, f.inbox.Append(8))
	require.Eventually(t, func() bool { return len(f.player.Played()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, []string{f.path(8)}, f.player.Played())
}

type failingPublisher struct{}

func (failingPublisher) Publish(nowPlaying apimodel.NowPlaying) error {
	return errors.New("display offline")
}

type recordingPublisher struct {
	published []apimodel.NowPlaying
}

func (p *recordingPublisher) Publish(nowPlaying apimodel.NowPlaying) error {
	p.published = append(p.published, nowPlaying)
	return nil
}

func TestPublishers(t *testing.T) {
	recorder := &recordingPublisher{}
	publishers := Publishers{failingPublisher{}, recorder}

	err := publishers.Publish(apimodel.NowPlaying{PlayId: "p1"})
	assert.Error(t, err)
	require.Len(t, recorder.published, 1)
	assert.Equal(t, "p1", recorder.published[0].PlayId)

	// A failing display never blocks playback
	f := newFixture(t)
	s := f.scheduler(Options{Publisher: publishers})
	require.NoError(t, s.Cycle(context.Background()))
	assert.Len(t, f.player.Played(), 1)
	assert.Len(t, recorder.published, 2)
}
