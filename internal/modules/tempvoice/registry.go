package tempvoice

import (
	"sync"
	"time"
)

type Record struct {
	ChannelID string
	GuildID   string
	OwnerID   string
	CreatedAt time.Time
}

// Registry maps temp channel ids to their records. It is in-memory only and
// starts empty after a restart.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]Record)}
}

func (r *Registry) Register(record Record) {
	r.mu.Lock()
	r.records[record.ChannelID] = record
	r.mu.Unlock()
}

func (r *Registry) Unregister(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[channelID]; !ok {
		return false
	}
	delete(r.records, channelID)
	return true
}

func (r *Registry) Get(channelID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[channelID]
	return record, ok
}

func (r *Registry) SetOwner(channelID, ownerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[channelID]
	if !ok {
		return false
	}
	record.OwnerID = ownerID
	r.records[channelID] = record
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
