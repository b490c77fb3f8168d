// FilePath: internal/store/pinstore.go
package store

import "github.com/itsatony/relayhub/internal/models"

// Entry is one stored pin value.
type Entry struct {
	Key   models.PinKey
	Value string
}

// PinStorage is the per-dashboard last-known-value store: a mapping from
// pin key to its most recent accepted value. Entries are created lazily on
// first write and kept in insertion order so replays are deterministic.
// Last writer wins; there is no conflict detection. The storage is not
// safe for concurrent use — the owning session loop serializes access.
type PinStorage struct {
	values map[models.PinKey]string
	order  []models.PinKey
}

// New creates an empty PinStorage.
func New() *PinStorage {
	return &PinStorage{values: make(map[models.PinKey]string)}
}

// Write unconditionally creates or overwrites the entry and returns the
// previous value, if any.
func (s *PinStorage) Write(key models.PinKey, value string) (prev string, existed bool) {
	prev, existed = s.values[key]
	if !existed {
		s.order = append(s.order, key)
	}
	s.values[key] = value
	return prev, existed
}

// Read returns the current value for key, if any.
func (s *PinStorage) Read(key models.PinKey) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of stored entries.
func (s *PinStorage) Len() int { return len(s.values) }

// Entries returns all entries in insertion order.
func (s *PinStorage) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, key := range s.order {
		if v, ok := s.values[key]; ok {
			out = append(out, Entry{Key: key, Value: v})
		}
	}
	return out
}

// ForEach visits all entries in insertion order.
func (s *PinStorage) ForEach(fn func(key models.PinKey, value string)) {
	for _, key := range s.order {
		if v, ok := s.values[key]; ok {
			fn(key, v)
		}
	}
}

// DeleteDevice purges every entry belonging to the given device, including
// property entries.
func (s *PinStorage) DeleteDevice(deviceID int) int {
	removed := 0
	kept := s.order[:0]
	for _, key := range s.order {
		if key.DeviceID == deviceID {
			delete(s.values, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	s.order = kept
	return removed
}

// Delete removes a single entry and reports whether it existed.
func (s *PinStorage) Delete(key models.PinKey) bool {
	if _, ok := s.values[key]; !ok {
		return false
	}
	delete(s.values, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}
