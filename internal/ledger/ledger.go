// Package ledger keeps the mapping from query key to the video references
// collected for it, deduplicated across keys, and checkpoints it to disk.
package ledger

// Entry is the ordered reference list of one query key.
type Entry struct {
	Key  string   `json:"key"`
	URLs []string `json:"urls"`
}

// Item is one (key, reference) pair in ledger order.
type Item struct {
	Key string
	URL string
}

// Ledger maps query keys to video references. A reference belongs to the
// first key that added it; later keys never receive it.
type Ledger struct {
	entries []Entry
	index   map[string]int // key -> position in entries
	owner   map[string]string
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		index: make(map[string]int),
		owner: make(map[string]string),
	}
}

// Add appends the references not already owned by any key to key's bucket
// and returns how many were added. A key is created even when nothing new is
// added, so it keeps its place in the order.
func (l *Ledger) Add(key string, refs []string) int {
	pos, ok := l.index[key]
	if !ok {
		pos = len(l.entries)
		l.index[key] = pos
		l.entries = append(l.entries, Entry{Key: key, URLs: []string{}})
	}
	added := 0
	for _, ref := range refs {
		if _, taken := l.owner[ref]; taken {
			continue
		}
		l.owner[ref] = key
		l.entries[pos].URLs = append(l.entries[pos].URLs, ref)
		added++
	}
	return added
}

// Keys returns the query keys in insertion order.
func (l *Ledger) Keys() []string {
	keys := make([]string, len(l.entries))
	for i, e := range l.entries {
		keys[i] = e.Key
	}
	return keys
}

// URLs returns a copy of the references owned by key.
func (l *Ledger) URLs(key string) []string {
	pos, ok := l.index[key]
	if !ok {
		return nil
	}
	return append([]string(nil), l.entries[pos].URLs...)
}

// Owner returns the key a reference is attributed to.
func (l *Ledger) Owner(ref string) (string, bool) {
	key, ok := l.owner[ref]
	return key, ok
}

// Len is the number of distinct references.
func (l *Ledger) Len() int { return len(l.owner) }

// Entries returns a deep copy of the ledger contents in order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = Entry{Key: e.Key, URLs: append([]string{}, e.URLs...)}
	}
	return out
}

// Items flattens the ledger into (key, reference) pairs, key by key.
func (l *Ledger) Items() []Item {
	items := make([]Item, 0, l.Len())
	for _, e := range l.entries {
		for _, u := range e.URLs {
			items = append(items, Item{Key: e.Key, URL: u})
		}
	}
	return items
}

// FromEntries rebuilds a ledger from stored entries, applying the same
// first-seen-wins rule.
func FromEntries(entries []Entry) *Ledger {
	l := New()
	for _, e := range entries {
		l.Add(e.Key, e.URLs)
	}
	return l
}
