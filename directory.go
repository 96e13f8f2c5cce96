package staffchat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// DirectoryCache holds the roster of addressable participants and channels.
// The roster is fetched once at session initialization and refreshed only by
// re-invoking Load; a load replaces both lists atomically, never partially.
type DirectoryCache struct {
	client *Client

	mu           sync.RWMutex
	participants []Participant
	channels     []Channel
}

// NewDirectoryCache creates an empty cache over the given client.
func NewDirectoryCache(client *Client) *DirectoryCache {
	return &DirectoryCache{client: client}
}

// Load fetches both rosters and swaps them in. When the directory service is
// unreachable or returns malformed data it installs an empty roster and
// returns ErrDirectoryUnavailable; the caller decides whether that degrades
// the session or just gets logged. Partial failure is total failure here:
// one bad roster rejects both, keeping the swap atomic.
func (d *DirectoryCache) Load(ctx context.Context) error {
	participants, perr := d.client.FetchEmployees(ctx)
	channels, cerr := d.client.FetchChannels(ctx)

	if perr != nil || cerr != nil {
		d.mu.Lock()
		d.participants = nil
		d.channels = nil
		d.mu.Unlock()
		err := perr
		if err == nil {
			err = cerr
		}
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	d.mu.Lock()
	d.participants = participants
	d.channels = channels
	d.mu.Unlock()
	return nil
}

// Participants returns a copy of the current participant roster.
func (d *DirectoryCache) Participants() []Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Participant, len(d.participants))
	copy(out, d.participants)
	return out
}

// Channels returns a copy of the current channel roster.
func (d *DirectoryCache) Channels() []Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Channel, len(d.channels))
	copy(out, d.channels)
	return out
}

// Participant looks up one participant by canonical id.
func (d *DirectoryCache) Participant(id string) (Participant, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// ============================================================================
// Tolerant roster decoding
// ============================================================================

// decodeRoster accepts the three response shapes observed in the wild: a bare
// array, an object with a named collection field, or a single bare object
// treated as a one-element roster.
func decodeRoster(data []byte, field string) ([]rosterEntry, error) {
	var entries []rosterEntry
	if err := json.Unmarshal(data, &entries); err == nil {
		return entries, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("unrecognized roster shape: %w", err)
	}
	for _, name := range []string{field, "data", "items", "results"} {
		raw, ok := wrapped[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("malformed %q collection: %w", name, err)
		}
		return entries, nil
	}

	// Single bare object: a one-element roster.
	var single rosterEntry
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("unrecognized roster shape: %w", err)
	}
	if single.canonicalID() == "" {
		return nil, fmt.Errorf("roster object with no usable id")
	}
	return []rosterEntry{single}, nil
}

// participantsFromEntries normalizes entries at ingestion. Entries with no
// usable id are dropped; everything past this point can rely on exactly one
// non-empty canonical id per participant.
func participantsFromEntries(entries []rosterEntry) []Participant {
	out := make([]Participant, 0, len(entries))
	for _, e := range entries {
		id := e.canonicalID()
		if id == "" {
			continue
		}
		out = append(out, Participant{
			ID:         id,
			Name:       e.displayName(),
			Department: e.Department,
			Email:      e.Email,
		})
	}
	return out
}

func channelsFromEntries(entries []rosterEntry) []Channel {
	out := make([]Channel, 0, len(entries))
	for _, e := range entries {
		id := e.canonicalID()
		if id == "" {
			continue
		}
		out = append(out, Channel{ID: id, Name: e.displayName()})
	}
	return out
}
