package catalog

import (
	"encoding/json"
	"fmt"
	"github.com/dhowden/tag"
	"github.com/jypelle/jukeboxsrv/internal/tool"
	"github.com/sirupsen/logrus"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const unknownArtist = "Unknown"

var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
}

func isAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// AudioFiles lists the audio files below musicFolder, sorted by path
func AudioFiles(musicFolder string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(musicFolder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isAudioFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Scan builds a catalog from the tags of every audio file below musicFolder.
// Sorting by path keeps indices identical between two scans of an unchanged folder.
func Scan(musicFolder string) (*Catalog, error) {
	files, err := AudioFiles(musicFolder)
	if err != nil {
		return nil, fmt.Errorf("unable to list music folder %s: %w", musicFolder, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no audio file found in %s", musicFolder)
	}

	logrus.Infof("Found %d audio files, reading tags ...", len(files))
	songs := make([]Song, 0, len(files))
	for _, path := range files {
		songs = append(songs, readSong(path))
	}
	logrus.Infof("Extracted metadata from %d songs", len(songs))

	return New(songs), nil
}

func readSong(path string) Song {
	song := Song{
		Title:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Artist:   unknownArtist,
		FilePath: path,
	}

	f, err := os.Open(path)
	if err != nil {
		logrus.Warnf("Unable to open %s: %v", path, err)
		return song
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		logrus.Debugf("No readable tags in %s: %v", path, err)
		return song
	}

	if title := strings.TrimSpace(m.Title()); title != "" {
		song.Title = title
	}
	if artist := strings.TrimSpace(m.Artist()); artist != "" {
		song.Artist = artist
	}
	song.Album = strings.TrimSpace(m.Album())
	if m.Year() > 0 {
		song.Year = strconv.Itoa(m.Year())
	}
	song.Genre = strings.TrimSpace(strings.Join([]string{m.Genre(), m.Comment()}, " "))

	return song
}

// Save writes the catalog document and its check document holding the song count
func Save(catalogPath, checkPath string, c *Catalog) error {
	raw, err := json.MarshalIndent(c.songs, "", "  ")
	if err != nil {
		return err
	}
	if err := tool.WriteFileAtomic(catalogPath, raw, 0o660); err != nil {
		return fmt.Errorf("unable to save catalog %s: %w", catalogPath, err)
	}
	if err := tool.WriteFileAtomic(checkPath, []byte(strconv.Itoa(c.Len())), 0o660); err != nil {
		return fmt.Errorf("unable to save catalog check %s: %w", checkPath, err)
	}
	return nil
}

// NeedsRescan reports whether the catalog document is missing or the number of audio files
// in musicFolder no longer matches the count recorded when the catalog was generated.
func NeedsRescan(musicFolder, catalogPath, checkPath string) bool {
	exists, err := tool.IsFileExists(catalogPath)
	if err != nil || !exists {
		return true
	}

	raw, err := os.ReadFile(checkPath)
	if err != nil {
		logrus.Warnf("Unable to read catalog check file: %v", err)
		return true
	}
	storedCount, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		logrus.Warnf("Unable to interpret catalog check file: %v", err)
		return true
	}

	files, err := AudioFiles(musicFolder)
	if err != nil {
		logrus.Warnf("Unable to count audio files: %v", err)
		return true
	}

	logrus.Debugf("Audio files: %d, stored count: %d", len(files), storedCount)
	return len(files) != storedCount
}

// Open loads the catalog, regenerating it first when the music folder changed
func Open(musicFolder, catalogPath, checkPath string) (*Catalog, error) {
	if NeedsRescan(musicFolder, catalogPath, checkPath) {
		logrus.Infof("Music database missing or outdated, regenerating from %s", musicFolder)
		c, err := Scan(musicFolder)
		if err != nil {
			return nil, &LoadError{Path: catalogPath, Err: err}
		}
		if err := Save(catalogPath, checkPath, c); err != nil {
			logrus.Warnf("%v", err)
		}
		return c, nil
	}
	return Load(catalogPath)
}
