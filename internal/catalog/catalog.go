// Package catalog maps stream names to durable stream ids and stores group
// link state. Entries are JSON records in Pebble.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/strata/internal/storage/pebble"
	"github.com/rzbill/strata/internal/stream"
	logpkg "github.com/rzbill/strata/pkg/log"
)

// DefaultNameRegex matches the names accepted when none is configured.
const DefaultNameRegex = `[a-z0-9][a-z0-9._-]{0,127}`

var (
	// ErrNotFound is returned for unknown names or groups.
	ErrNotFound = errors.New("catalog: not found")
	// ErrInvalidName is returned for names rejected by the name pattern.
	ErrInvalidName = errors.New("catalog: invalid name")
)

// Entry records the stream backing a name. StreamID is
// stream.InvalidStreamID until the stream is first materialized.
type Entry struct {
	Name        string `json:"name"`
	StreamID    int64  `json:"streamId"`
	Epoch       int64  `json:"epoch"`
	CreatedAtMs int64  `json:"createdAtMs"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
}

// Group is the link state of a consumer group.
type Group struct {
	GroupID     string `json:"groupId"`
	LinkID      string `json:"linkId"`
	Promoted    bool   `json:"promoted"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
}

var (
	streamPrefix = []byte("cat/stream/")
	groupPrefix  = []byte("cat/group/")
)

func prefixedKey(prefix []byte, name string) []byte {
	k := make([]byte, 0, len(prefix)+len(name))
	k = append(k, prefix...)
	k = append(k, name...)
	return k
}

// Options configures a Catalog.
type Options struct {
	NameRegex string
	Clock     clock.Clock
	Logger    logpkg.Logger
}

// Catalog is safe for concurrent use; Pebble serializes the writes.
type Catalog struct {
	db     *pebblestore.DB
	name   *regexp.Regexp
	clock  clock.Clock
	logger logpkg.Logger
}

// New returns a Catalog over db.
func New(db *pebblestore.DB, opts Options) (*Catalog, error) {
	pattern := opts.NameRegex
	if pattern == "" {
		pattern = DefaultNameRegex
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("catalog: name regex: %w", err)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Catalog{db: db, name: re, clock: clk, logger: logger.With(logpkg.Component("catalog"))}, nil
}

// ValidateName reports ErrInvalidName if name does not match the pattern.
func (c *Catalog) ValidateName(name string) error {
	if !c.name.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Lookup returns the entry for name, or ErrNotFound.
func (c *Catalog) Lookup(name string) (Entry, error) {
	b, err := c.db.Get(prefixedKey(streamPrefix, name))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, fmt.Errorf("catalog: decode %q: %w", name, err)
	}
	return e, nil
}

// Ensure returns the entry for name, creating an unassigned one at epoch if
// absent. Idempotent.
func (c *Catalog) Ensure(name string, epoch int64) (Entry, error) {
	if err := c.ValidateName(name); err != nil {
		return Entry{}, err
	}
	e, err := c.Lookup(name)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Entry{}, err
	}
	now := c.clock.Now().UnixMilli()
	e = Entry{Name: name, StreamID: stream.InvalidStreamID, Epoch: epoch, CreatedAtMs: now, UpdatedAtMs: now}
	return e, c.Put(e)
}

// Put writes e, stamping UpdatedAtMs.
func (c *Catalog) Put(e Entry) error {
	if err := c.ValidateName(e.Name); err != nil {
		return err
	}
	e.UpdatedAtMs = c.clock.Now().UnixMilli()
	if e.CreatedAtMs == 0 {
		e.CreatedAtMs = e.UpdatedAtMs
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.db.Set(prefixedKey(streamPrefix, e.Name), b)
}

// Delete removes the entry for name. Missing names are not an error.
func (c *Catalog) Delete(name string) error {
	return c.db.Delete(prefixedKey(streamPrefix, name))
}

// List returns entries whose names start with prefix, in name order.
func (c *Catalog) List(prefix string) ([]Entry, error) {
	low := prefixedKey(streamPrefix, prefix)
	high := append(append([]byte(nil), streamPrefix[:len(streamPrefix)-1]...), '/'+1)
	iter, err := c.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Entry
	for ok := iter.First(); ok; ok = iter.Next() {
		name := string(iter.Key()[len(streamPrefix):])
		if len(name) < len(prefix) || name[:len(prefix)] != prefix {
			break
		}
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("catalog: decode %q: %w", name, err)
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

// ListenerFor returns a listener that records the id of the stream backing
// name once it is created.
func (c *Catalog) ListenerFor(name string, epoch int64) stream.EventListener {
	return stream.EventListenerFunc(func(streamID int64, ev stream.MetaEvent) error {
		if ev != stream.MetaEventStreamCreated {
			return nil
		}
		e, err := c.Lookup(name)
		switch {
		case errors.Is(err, ErrNotFound):
			e = Entry{Name: name}
		case err != nil:
			return err
		}
		e.StreamID = streamID
		e.Epoch = epoch
		if err := c.Put(e); err != nil {
			return fmt.Errorf("catalog: record stream %d for %q: %w", streamID, name, err)
		}
		c.logger.Info("stream id recorded", logpkg.Str("name", name), logpkg.Int64("stream_id", streamID))
		return nil
	})
}

// UpdateGroup stores the link state of a group.
func (c *Catalog) UpdateGroup(g Group) (Group, error) {
	if g.GroupID == "" {
		return Group{}, fmt.Errorf("%w: empty group id", ErrInvalidName)
	}
	g.UpdatedAtMs = c.clock.Now().UnixMilli()
	b, err := json.Marshal(g)
	if err != nil {
		return Group{}, err
	}
	if err := c.db.Set(prefixedKey(groupPrefix, g.GroupID), b); err != nil {
		return Group{}, err
	}
	return g, nil
}

// Group returns the stored state of a group, or ErrNotFound.
func (c *Catalog) Group(id string) (Group, error) {
	b, err := c.db.Get(prefixedKey(groupPrefix, id))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return Group{}, ErrNotFound
		}
		return Group{}, err
	}
	var g Group
	if err := json.Unmarshal(b, &g); err != nil {
		return Group{}, fmt.Errorf("catalog: decode group %q: %w", id, err)
	}
	return g, nil
}
