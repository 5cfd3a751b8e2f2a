package apimodel

import (
	"time"
)

// SongIndex is the position of a song in the catalog, the only identifier shared across processes
type SongIndex int

type PlayKind string

const (
	RandomPlayKind PlayKind = "random"
	PaidPlayKind   PlayKind = "paid"
)

func (k PlayKind) Valid() bool {
	return k == RandomPlayKind || k == PaidPlayKind
}

type Song struct {
	Index    SongIndex `json:"index"`
	Title    string    `json:"title"`
	Artist   string    `json:"artist"`
	Album    string    `json:"album,omitempty"`
	Year     string    `json:"year,omitempty"`
	Genre    string    `json:"genre,omitempty"`
	FilePath string    `json:"filePath"`
}

// NowPlaying is the document published for displays each time a song is selected
type NowPlaying struct {
	PlayId    string    `json:"playId"`
	Index     SongIndex `json:"index"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	FilePath  string    `json:"filePath"`
	Kind      PlayKind  `json:"kind"`
	StartedAt time.Time `json:"startedAt"`
}

type SongStat struct {
	Index        SongIndex  `json:"index"`
	Title        string     `json:"title"`
	Artist       string     `json:"artist"`
	PlayCount    int64      `json:"playCount"`
	LastPlayedAt *time.Time `json:"lastPlayedAt,omitempty"`
}

type Statistics struct {
	TotalPlays  int64      `json:"totalPlays"`
	UniqueSongs int        `json:"uniqueSongs"`
	TopPlayed   []SongStat `json:"topPlayed"`
}

type PendingRequests struct {
	Indices []SongIndex `json:"indices"`
}
