// Package inbox implements the paid request mailbox shared with other processes.
//
// The request document is a JSON array of catalog indices, oldest request first.
// Producers only append to it; the scheduler is the only consumer.
//
// Every read-modify-write holds an advisory lock on the sidecar file "<document>.lock".
// Producers in other processes must take the same lock (flock(2)) around their update.
package inbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/gofrs/flock"
	"github.com/jypelle/jukeboxsrv/internal/tool"
	"github.com/sirupsen/logrus"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotPending   = errors.New("request not pending")
	ErrInvalidEntry = errors.New("invalid request entry")
	ErrConflict     = errors.New("request document kept changing")
)

// Inbox hides how paid requests reach the scheduler
type Inbox interface {
	// Poll returns the valid pending requests, oldest first
	Poll() []int
	// Consume removes exactly one pending occurrence of index
	Consume(index int) error
}

// Validator tells which indices can be played
type Validator interface {
	Valid(index int) bool
}

const (
	maxWriteAttempts = 5
	documentPerm     = 0o666
)

// FileInbox is an Inbox backed by a request document on disk.
// Every write re-reads the document and only replaces it if it did not change meanwhile,
// so entries appended by another process are never overwritten.
type FileInbox struct {
	lock      sync.Mutex
	path      string
	validator Validator

	// reported holds the invalid entries already warned about
	reported map[string]bool

	// beforeReplace runs between the write of the new document and its rename, tests only
	beforeReplace func()
}

var _ Inbox = (*FileInbox)(nil)

func NewFileInbox(path string, validator Validator) *FileInbox {
	return &FileInbox{
		path:      path,
		validator: validator,
	}
}

func (i *FileInbox) Path() string {
	return i.path
}

// LockPath is the file locked by every writer of the request document
func (i *FileInbox) LockPath() string {
	return i.path + ".lock"
}

// document is a snapshot of the request document
type document struct {
	entries []json.RawMessage
	exists  bool
	size    int64
	modTime time.Time
}

func (i *FileInbox) read() (*document, error) {
	doc := &document{}

	info, err := os.Stat(i.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, err
	}
	raw, err := os.ReadFile(i.path)
	if err != nil {
		return nil, err
	}
	doc.exists = true
	doc.size = info.Size()
	doc.modTime = info.ModTime()

	if strings.TrimSpace(string(raw)) == "" {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc.entries); err != nil {
		return nil, fmt.Errorf("malformed request document %s: %w", i.path, err)
	}
	return doc, nil
}

// unchanged fails when the document on disk differs from the snapshot
func (i *FileInbox) unchanged(doc *document) func() error {
	return func() error {
		if i.beforeReplace != nil {
			i.beforeReplace()
		}
		info, err := os.Stat(i.path)
		if err != nil {
			if os.IsNotExist(err) && !doc.exists {
				return nil
			}
			return errChanged
		}
		if !doc.exists || info.Size() != doc.size || !info.ModTime().Equal(doc.modTime) {
			return errChanged
		}
		return nil
	}
}

var errChanged = errors.New("request document changed")

func (i *FileInbox) write(doc *document, entries []json.RawMessage) error {
	if entries == nil {
		entries = []json.RawMessage{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return tool.WriteFileAtomicIf(i.path, raw, documentPerm, i.unchanged(doc))
}

// update applies change to a fresh read of the document under the document lock.
// A writer ignoring the lock is still detected before the replace, and the update retried.
func (i *FileInbox) update(change func(entries []json.RawMessage) ([]json.RawMessage, error)) error {
	i.lock.Lock()
	defer i.lock.Unlock()

	fileLock := flock.New(i.LockPath())
	if err := fileLock.Lock(); err != nil {
		return fmt.Errorf("unable to lock request document %s: %w", i.path, err)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			logrus.Warnf("Unable to unlock request document %s: %v", i.path, err)
		}
	}()

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		doc, err := i.read()
		if err != nil {
			return err
		}
		entries, err := change(doc.entries)
		if err != nil {
			return err
		}
		err = i.write(doc, entries)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errChanged) {
			return err
		}
		logrus.Debugf("Request document changed while updating it, retrying (%d/%d)", attempt, maxWriteAttempts)
	}
	return ErrConflict
}

func parseEntry(entry json.RawMessage) (int, bool) {
	index, err := strconv.Atoi(strings.TrimSpace(string(entry)))
	if err != nil {
		return 0, false
	}
	return index, true
}

// Poll reads the request document. A missing or malformed document means no request.
// Entries that are not a valid catalog index are skipped, and reported once while they stay.
func (i *FileInbox) Poll() []int {
	i.lock.Lock()
	defer i.lock.Unlock()

	requests := []int{}
	doc, err := i.read()
	if err != nil {
		logrus.Warnf("Unable to read paid requests: %v", err)
		return requests
	}

	invalid := make(map[string]bool)
	for _, entry := range doc.entries {
		index, ok := parseEntry(entry)
		if !ok || !i.validator.Valid(index) {
			if i.reported[string(entry)] || invalid[string(entry)] {
				logrus.Debugf("Ignoring invalid paid request entry %s", string(entry))
			} else {
				logrus.Warnf("Ignoring invalid paid request entry %s", string(entry))
			}
			invalid[string(entry)] = true
			continue
		}
		requests = append(requests, index)
	}
	i.reported = invalid
	return requests
}

// Pending returns every integer entry of the request document, valid or not
func (i *FileInbox) Pending() []int {
	i.lock.Lock()
	defer i.lock.Unlock()

	doc, err := i.read()
	if err != nil {
		return nil
	}
	pending := make([]int, 0, len(doc.entries))
	for _, entry := range doc.entries {
		if index, ok := parseEntry(entry); ok {
			pending = append(pending, index)
		}
	}
	return pending
}

// Consume removes the oldest occurrence of index from the document as it is now on disk.
// All other entries, including those appended since the last Poll, are kept in place.
func (i *FileInbox) Consume(index int) error {
	return i.update(func(entries []json.RawMessage) ([]json.RawMessage, error) {
		for position, entry := range entries {
			if value, ok := parseEntry(entry); ok && value == index {
				remaining := make([]json.RawMessage, 0, len(entries)-1)
				remaining = append(remaining, entries[:position]...)
				return append(remaining, entries[position+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %d", ErrNotPending, index)
	})
}

// Append queues a new paid request for index
func (i *FileInbox) Append(index int) error {
	if !i.validator.Valid(index) {
		return fmt.Errorf("%w: %d", ErrInvalidEntry, index)
	}
	return i.update(func(entries []json.RawMessage) ([]json.RawMessage, error) {
		return append(entries, json.RawMessage(strconv.Itoa(index))), nil
	})
}
