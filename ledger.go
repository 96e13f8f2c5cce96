package staffchat

import (
	"sort"
	"sync"
)

// Ledger holds the per-conversation ordered message collections. It is the
// single authority on insertion order, deduplication, and soft deletion; the
// session is its only writer.
//
// Invariants per conversation:
//   - messages are in non-decreasing Timestamp order, stable on ties
//   - no two entries share an ID, or a (SenderID, Text, Timestamp) triple
//
// The triple rule is what reconciles an optimistic local send with its server
// echo, which arrives under a different id. It is a heuristic: two genuinely
// distinct messages with identical sender, text, and millisecond timestamp
// collapse into one entry.
type Ledger struct {
	mu            sync.RWMutex
	conversations map[ConversationKey][]Message
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{conversations: make(map[ConversationKey][]Message)}
}

// Append inserts msg into the conversation in timestamp order. Duplicates
// are a no-op. Returns whether the message was inserted.
func (l *Ledger) Append(key ConversationKey, msg Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(key, msg)
}

func (l *Ledger) appendLocked(key ConversationKey, msg Message) bool {
	msgs := l.conversations[key]
	for _, m := range msgs {
		if isDuplicate(m, msg) {
			return false
		}
	}
	// Stable insertion point: after all entries with Timestamp <= msg's, so
	// ties keep arrival order.
	i := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].Timestamp > msg.Timestamp
	})
	msgs = append(msgs, Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = msg
	l.conversations[key] = msgs
	return true
}

func isDuplicate(a, b Message) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	return a.SenderID == b.SenderID && a.Text == b.Text && a.Timestamp == b.Timestamp
}

// MarkDeleted flips Deleted on the matching entry. Unknown ids and unknown
// conversations are a no-op; deletion requests may race with eviction or
// arrive for a conversation that was never loaded. Returns whether an entry
// changed state.
func (l *Ledger) MarkDeleted(key ConversationKey, messageID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := l.conversations[key]
	for i := range msgs {
		if msgs[i].ID == messageID {
			if msgs[i].Deleted {
				return false
			}
			msgs[i].Deleted = true
			return true
		}
	}
	return false
}

// Replace bulk-loads a conversation, the path used when it is opened for the
// first time. Entries already present (optimistic sends that raced the fetch)
// are merged back in rather than overwritten, so a late-arriving history
// result never loses local state.
func (l *Ledger) Replace(key ConversationKey, msgs []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.conversations[key]
	l.conversations[key] = make([]Message, 0, len(msgs)+len(existing))
	for _, m := range msgs {
		l.appendLocked(key, m)
	}
	for _, m := range existing {
		l.appendLocked(key, m)
	}
}

// Get returns a copy of the conversation's ordered sequence, deleted entries
// included.
func (l *Ledger) Get(key ConversationKey) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	msgs := l.conversations[key]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Has reports whether the conversation has a slot, loaded or appended to.
// The session uses this to decide whether a history fetch is needed.
func (l *Ledger) Has(key ConversationKey) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.conversations[key]
	return ok
}

// Len returns the number of entries in one conversation.
func (l *Ledger) Len(key ConversationKey) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.conversations[key])
}
