package resolver

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// missingRingSize bounds the in-memory audit trail of failed lookups.
const missingRingSize = 1000

// MissingRecord is one audited not-found lookup.
type MissingRecord struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Path       string    `json:"path"`
	Normalized string    `json:"normalized"`
	Tried      []string  `json:"tried"`
}

// MissingLog is an append-only ring of not-found lookups with a cooldown on
// external notification, so a client hammering a dead path does not flood
// whatever is listening.
type MissingLog struct {
	mu       sync.Mutex
	ring     []MissingRecord
	next     int
	total    uint64
	notify   func(MissingRecord)
	cooldown time.Duration
	lastSent time.Time
}

// NewMissingLog creates a log. notify may be nil; cooldown of zero notifies
// on every record.
func NewMissingLog(notify func(MissingRecord), cooldown time.Duration) *MissingLog {
	return &MissingLog{
		ring:     make([]MissingRecord, 0, missingRingSize),
		notify:   notify,
		cooldown: cooldown,
	}
}

// Record appends a miss and fires the notifier if the cooldown has elapsed.
func (m *MissingLog) Record(path, normalized string, tried []string) MissingRecord {
	rec := MissingRecord{
		ID:         uuid.NewString(),
		Time:       time.Now(),
		Path:       path,
		Normalized: normalized,
		Tried:      tried,
	}

	m.mu.Lock()
	if len(m.ring) < missingRingSize {
		m.ring = append(m.ring, rec)
	} else {
		m.ring[m.next] = rec
	}
	m.next = (m.next + 1) % missingRingSize
	m.total++
	fire := m.notify != nil && time.Since(m.lastSent) >= m.cooldown
	if fire {
		m.lastSent = rec.Time
	}
	notify := m.notify
	m.mu.Unlock()

	if fire {
		notify(rec)
	}
	return rec
}

// Total returns how many misses were ever recorded.
func (m *MissingLog) Total() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Snapshot copies the retained records, oldest first.
func (m *MissingLog) Snapshot() []MissingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MissingRecord, 0, len(m.ring))
	if len(m.ring) == missingRingSize {
		out = append(out, m.ring[m.next:]...)
		out = append(out, m.ring[:m.next]...)
	} else {
		out = append(out, m.ring...)
	}
	return out
}
