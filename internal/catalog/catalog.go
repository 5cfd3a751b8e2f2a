// Package catalog holds the immutable list of songs the jukebox can play.
//
// Songs are identified by their position in the catalog document. Indices are
// stable for the lifetime of the process only: the catalog is never reloaded
// while running, and a regenerated document may renumber songs.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/jypelle/jukeboxsrv/apimodel"
	"os"
	"strings"
)

var ErrNotFound = errors.New("song not found")

// NoRandomTag excludes a song from random rotation when present in its genre
const NoRandomTag = "norandom"

// LoadError reports a catalog document that cannot be read or understood
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("unable to load catalog %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type Song struct {
	Index    int    `json:"-"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Year     string `json:"year,omitempty"`
	Genre    string `json:"genre,omitempty"`
	FilePath string `json:"filePath"`
}

func (s Song) ApiSong() apimodel.Song {
	return apimodel.Song{
		Index:    apimodel.SongIndex(s.Index),
		Title:    s.Title,
		Artist:   s.Artist,
		Album:    s.Album,
		Year:     s.Year,
		Genre:    s.Genre,
		FilePath: s.FilePath,
	}
}

type Catalog struct {
	songs []Song
}

// New builds a catalog, numbering songs by their order
func New(songs []Song) *Catalog {
	c := &Catalog{songs: make([]Song, len(songs))}
	for i, song := range songs {
		song.Index = i
		c.songs[i] = song
	}
	return c
}

// Load reads a catalog document: a JSON array of songs, the array order defining the indices.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var songs []Song
	if err := json.Unmarshal(raw, &songs); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if songs == nil {
		return nil, &LoadError{Path: path, Err: errors.New("no song list")}
	}
	for i, song := range songs {
		if song.FilePath == "" {
			return nil, &LoadError{Path: path, Err: fmt.Errorf("song %d has no file path", i)}
		}
	}

	return New(songs), nil
}

func (c *Catalog) Len() int {
	return len(c.songs)
}

func (c *Catalog) Valid(index int) bool {
	return index >= 0 && index < len(c.songs)
}

func (c *Catalog) Get(index int) (Song, error) {
	if !c.Valid(index) {
		return Song{}, fmt.Errorf("%w: index %d out of range [0,%d)", ErrNotFound, index, len(c.songs))
	}
	return c.songs[index], nil
}

// Songs returns a copy of every song in index order
func (c *Catalog) Songs() []Song {
	songs := make([]Song, len(c.songs))
	copy(songs, c.songs)
	return songs
}

// RandomEligible returns the indices that random rotation may pick.
// Songs tagged norandom are always excluded; an empty genre list accepts every other song.
func (c *Catalog) RandomEligible(genres []string) []int {
	var wanted []string
	for _, genre := range genres {
		if genre = strings.ToLower(strings.TrimSpace(genre)); genre != "" {
			wanted = append(wanted, genre)
		}
	}

	eligible := make([]int, 0, len(c.songs))
	for _, song := range c.songs {
		songGenre := strings.ToLower(song.Genre)
		if strings.Contains(songGenre, NoRandomTag) {
			continue
		}
		if len(wanted) == 0 {
			eligible = append(eligible, song.Index)
			continue
		}
		for _, genre := range wanted {
			if strings.Contains(songGenre, genre) {
				eligible = append(eligible, song.Index)
				break
			}
		}
	}
	return eligible
}
