package stats

import (
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/jypelle/jukeboxsrv/apimodel"
	"github.com/jypelle/jukeboxsrv/internal/catalog"
	"strings"
	"time"
)

const unknownSong = "Unknown"

// Statistics builds the statistics document exposed to displays
func (s *Store) Statistics(c *catalog.Catalog, n int) apimodel.Statistics {
	summary := s.Summary()
	result := apimodel.Statistics{
		TotalPlays:  summary.TotalPlays,
		UniqueSongs: summary.UniqueSongs,
		TopPlayed:   []apimodel.SongStat{},
	}

	for _, entry := range s.TopPlayed(n) {
		songStat := apimodel.SongStat{
			Index:     apimodel.SongIndex(entry.Index),
			Title:     unknownSong,
			Artist:    unknownSong,
			PlayCount: entry.PlayCount,
		}
		if song, err := c.Get(entry.Index); err == nil {
			songStat.Title = song.Title
			songStat.Artist = song.Artist
		}
		if stat, ok := s.Get(entry.Index); ok {
			songStat.LastPlayedAt = stat.LastPlayedAt
		}
		result.TopPlayed = append(result.TopPlayed, songStat)
	}
	return result
}

// Report renders the shutdown summary: total plays, unique songs and the n most played songs
func (s *Store) Report(c *catalog.Catalog, n int, now time.Time) string {
	statistics := s.Statistics(c, n)

	var b strings.Builder
	if statistics.TotalPlays == 0 {
		b.WriteString("No song statistics available yet\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Total plays: %s\n", humanize.Comma(statistics.TotalPlays))
	fmt.Fprintf(&b, "Unique songs played: %s\n", humanize.Comma(int64(statistics.UniqueSongs)))
	fmt.Fprintf(&b, "\nTop %d Most Played Songs:\n", len(statistics.TopPlayed))
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for i, songStat := range statistics.TopPlayed {
		lastPlayed := "never"
		if songStat.LastPlayedAt != nil {
			lastPlayed = humanize.RelTime(*songStat.LastPlayedAt, now, "ago", "from now")
		}
		fmt.Fprintf(&b, "%2d. %-40s | %-20s | Plays: %3d | %s\n",
			i+1,
			truncate(songStat.Title, 40),
			truncate(songStat.Artist, 20),
			songStat.PlayCount,
			lastPlayed)
	}
	b.WriteString(strings.Repeat("-", 100) + "\n")
	return b.String()
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
