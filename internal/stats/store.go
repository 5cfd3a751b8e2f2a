package stats

import (
	"encoding/json"
	"fmt"
	"github.com/jypelle/jukeboxsrv/apimodel"
	"github.com/jypelle/jukeboxsrv/internal/tool"
	"github.com/sirupsen/logrus"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"
)

// PersistError reports a statistics snapshot that could not be written.
// The in-memory statistics stay authoritative until a later flush succeeds.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("unable to persist statistics %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

type PlayStat struct {
	PlayCount    int64      `json:"playCount"`
	LastPlayedAt *time.Time `json:"lastPlayedAt,omitempty"`
	History      History    `json:"history"`
}

// Entry is one line of a play count ranking
type Entry struct {
	Index     int
	PlayCount int64
}

type Summary struct {
	TotalPlays  int64
	UniqueSongs int
}

// Store keeps per-song play statistics, keyed by catalog index
type Store struct {
	lock  sync.RWMutex
	stats map[int]*PlayStat
}

func NewStore() *Store {
	return &Store{stats: make(map[int]*PlayStat)}
}

// Load reads a statistics document.
// Statistics are not critical: a missing or corrupt document yields an empty store.
func Load(path string) *Store {
	store := NewStore()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Infof("No statistics file %s, starting with empty statistics", path)
		} else {
			logrus.Warnf("Unable to read statistics file %s: %v", path, err)
		}
		return store
	}

	var document map[string]*PlayStat
	if err := json.Unmarshal(raw, &document); err != nil {
		logrus.Warnf("Unable to interpret statistics file %s, starting with empty statistics: %v", path, err)
		return store
	}

	for key, stat := range document {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || stat == nil || stat.PlayCount < 0 {
			logrus.Warnf("Ignoring invalid statistics entry %q", key)
			continue
		}
		if dropped := stat.History.retain(func(event PlayEvent) bool { return event.Kind.Valid() }); dropped > 0 {
			logrus.Warnf("Ignoring %d play events of unknown kind for song %d", dropped, index)
		}
		store.stats[index] = stat
	}
	logrus.Debugf("Loaded statistics for %d songs", len(store.stats))

	return store
}

// RecordPlay counts one play of a song. It only mutates memory, see Flush.
func (s *Store) RecordPlay(index int, kind apimodel.PlayKind, timestamp time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()

	timestamp = timestamp.UTC().Truncate(time.Second)

	stat, ok := s.stats[index]
	if !ok {
		stat = &PlayStat{}
		s.stats[index] = stat
	}
	stat.PlayCount++
	stat.LastPlayedAt = &timestamp
	stat.History.Append(PlayEvent{Timestamp: timestamp, Kind: kind})
}

// Flush writes every statistic to path with an atomic replace
func (s *Store) Flush(path string) error {
	s.lock.RLock()
	document := make(map[string]*PlayStat, len(s.stats))
	for index, stat := range s.stats {
		document[strconv.Itoa(index)] = stat
	}
	raw, err := json.MarshalIndent(document, "", "  ")
	s.lock.RUnlock()

	if err != nil {
		return &PersistError{Path: path, Err: err}
	}
	if err := tool.WriteFileAtomic(path, raw, 0o660); err != nil {
		return &PersistError{Path: path, Err: err}
	}
	return nil
}

func (s *Store) Get(index int) (PlayStat, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	stat, ok := s.stats[index]
	if !ok {
		return PlayStat{}, false
	}
	copied := *stat
	if stat.LastPlayedAt != nil {
		lastPlayedAt := *stat.LastPlayedAt
		copied.LastPlayedAt = &lastPlayedAt
	}
	return copied, true
}

// TopPlayed returns at most n songs by descending play count, lower index first on ties
func (s *Store) TopPlayed(n int) []Entry {
	s.lock.RLock()
	entries := make([]Entry, 0, len(s.stats))
	for index, stat := range s.stats {
		entries = append(entries, Entry{Index: index, PlayCount: stat.PlayCount})
	}
	s.lock.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].PlayCount != entries[j].PlayCount {
			return entries[i].PlayCount > entries[j].PlayCount
		}
		return entries[i].Index < entries[j].Index
	})

	if n < 0 {
		n = 0
	}
	if n < len(entries) {
		entries = entries[:n]
	}
	return entries
}

func (s *Store) Summary() Summary {
	s.lock.RLock()
	defer s.lock.RUnlock()

	summary := Summary{}
	for _, stat := range s.stats {
		if stat.PlayCount > 0 {
			summary.UniqueSongs++
		}
		summary.TotalPlays += stat.PlayCount
	}
	return summary
}
