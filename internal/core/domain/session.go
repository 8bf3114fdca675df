package domain

import (
	"sort"
	"time"
)

// SessionRecord is observational metadata about a participant. It never gates scheduling.
type SessionRecord struct {
	Identity     Identity
	JoinedAt     time.Time
	LastActivity time.Time
	TurnCount    int
}

// SessionRegistry tracks per-identity session records.
// Like WaitingLine it relies on the scheduler lock.
type SessionRegistry struct {
	records map[Identity]*SessionRecord
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{records: make(map[Identity]*SessionRecord)}
}

// Upsert creates the record on first sight, otherwise refreshes its activity time.
func (r *SessionRegistry) Upsert(id Identity, now time.Time) (created bool) {
	if rec, ok := r.records[id]; ok {
		rec.LastActivity = now
		return false
	}
	r.records[id] = &SessionRecord{
		Identity:     id,
		JoinedAt:     now,
		LastActivity: now,
	}
	return true
}

// Touch refreshes activity for an existing record only.
func (r *SessionRegistry) Touch(id Identity, now time.Time) bool {
	rec, ok := r.records[id]
	if !ok {
		return false
	}
	rec.LastActivity = now
	return true
}

// BeginTurn bumps the turn counter of an existing record.
func (r *SessionRegistry) BeginTurn(id Identity, now time.Time) int {
	rec, ok := r.records[id]
	if !ok {
		return 0
	}
	rec.TurnCount++
	rec.LastActivity = now
	return rec.TurnCount
}

func (r *SessionRegistry) Get(id Identity) (SessionRecord, bool) {
	rec, ok := r.records[id]
	if !ok {
		return SessionRecord{}, false
	}
	return *rec, true
}

// EvictIdle removes records whose last activity is before cutoff.
func (r *SessionRegistry) EvictIdle(cutoff time.Time) []Identity {
	var evicted []Identity
	for id, rec := range r.records {
		if rec.LastActivity.Before(cutoff) {
			delete(r.records, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

func (r *SessionRegistry) Len() int {
	return len(r.records)
}

// Identities returns at most n identities ordered by first-seen time.
func (r *SessionRegistry) Identities(n int) []Identity {
	recs := make([]*SessionRecord, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].JoinedAt.Equal(recs[j].JoinedAt) {
			return recs[i].Identity < recs[j].Identity
		}
		return recs[i].JoinedAt.Before(recs[j].JoinedAt)
	})
	if n > len(recs) {
		n = len(recs)
	}
	if n < 0 {
		n = 0
	}
	out := make([]Identity, 0, n)
	for _, rec := range recs[:n] {
		out = append(out, rec.Identity)
	}
	return out
}

func (r *SessionRegistry) Clear() {
	r.records = make(map[Identity]*SessionRecord)
}
