// Package history keeps the messages delivered to the frame loop, keyed by
// their Mirai source id, and persists them as TOML.
package history

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/willowblossom/internal/bridge"
	"github.com/danmuck/willowblossom/internal/mirai"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

const DefaultLimit = 1000

var ErrNotFound = errors.New("history: entry not found")

// Entry is one delivered message. Chat events carry Sender and Text; other
// frames keep only Raw.
type Entry struct {
	Key    string    `toml:"key" json:"key"`
	Seq    uint64    `toml:"seq" json:"seq"`
	Kind   string    `toml:"kind" json:"kind"`
	At     time.Time `toml:"at" json:"at"`
	Sender string    `toml:"sender,omitempty" json:"sender,omitempty"`
	Group  int64     `toml:"group,omitempty" json:"group,omitempty"`
	Text   string    `toml:"text,omitempty" json:"text,omitempty"`
	Raw    string    `toml:"raw,omitempty" json:"raw,omitempty"`
}

// Line is the display form used by the TUI.
func (e Entry) Line() string {
	if e.Sender != "" {
		return e.Sender + ": " + e.Text
	}
	return e.Raw
}

type file struct {
	Entries []Entry `toml:"entries"`
}

// Store implements bridge.Ingestor. OnInbound runs on the frame loop; the
// read side may be used from any goroutine.
type Store struct {
	mu      sync.RWMutex
	limit   int
	order   []string
	entries map[string]Entry
	arrival uint64
}

var _ bridge.Ingestor = (*Store)(nil)

// New returns a store holding at most limit entries, oldest evicted first.
// A limit of zero or less uses DefaultLimit.
func New(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		limit:   limit,
		entries: make(map[string]Entry),
	}
}

func (s *Store) OnInbound(msg bridge.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arrival++
	s.putLocked(entryFor(msg, s.arrival))
}

func entryFor(msg bridge.Message, arrival uint64) Entry {
	e := Entry{
		Key:  "seq:" + strconv.FormatUint(arrival, 10),
		Seq:  msg.Seq,
		Kind: msg.Kind.String(),
		At:   msg.At,
	}
	if msg.Kind != bridge.KindText {
		e.Raw = fmt.Sprintf("<%d bytes>", len(msg.Payload))
		return e
	}
	ev, err := mirai.DecodeEvent(msg.Payload)
	if err != nil {
		e.Raw = msg.Text()
		return e
	}
	if id, ok := ev.Chain.SourceID(); ok {
		e.Key = "src:" + strconv.FormatInt(id, 10)
	}
	e.Sender = ev.Sender.Name()
	if ev.IsGroup() && ev.Sender.Group != nil {
		e.Group = ev.Sender.Group.ID
	}
	e.Text = ev.Chain.Text()
	return e
}

// putLocked replaces an entry with the same key in place, otherwise
// appends and evicts past the limit.
func (s *Store) putLocked(e Entry) {
	if _, ok := s.entries[e.Key]; ok {
		s.entries[e.Key] = e
		return
	}
	s.entries[e.Key] = e
	s.order = append(s.order, e.Key)
	for len(s.order) > s.limit {
		delete(s.entries, s.order[0])
		s.order = s.order[1:]
	}
}

// List returns the entries in arrival order.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.entries[key])
	}
	return out
}

// Tail returns at most n of the newest entries in arrival order.
func (s *Store) Tail(n int) []Entry {
	all := s.List()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) Get(key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return e, nil
}

// Save writes the store to path as TOML.
func (s *Store) Save(path string) error {
	data, err := toml.Marshal(file{Entries: s.List()})
	if err != nil {
		return fmt.Errorf("history encode failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("history save failed (%s): %w", path, err)
	}
	log.Debug().Str("path", path).Int("entries", s.Len()).Msg("history.Store.Save")
	return nil
}

// Load appends the entries saved at path. A missing file is not an error.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("history load failed (%s): %w", path, err)
	}
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("history parse failed (%s): %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range f.Entries {
		if e.Key == "" {
			continue
		}
		s.putLocked(e)
		if n, ok := strings.CutPrefix(e.Key, "seq:"); ok {
			if v, err := strconv.ParseUint(n, 10, 64); err == nil && v > s.arrival {
				s.arrival = v
			}
		}
	}
	log.Debug().Str("path", path).Int("entries", len(f.Entries)).Msg("history.Store.Load")
	return nil
}
