package domain

import "time"

// Meta carries the identity and timestamps every stored document has.
// CreatedAt is set once on first write; UpdatedAt moves on every write.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DocMeta exposes the embedded Meta to the store adapter.
func (m *Meta) DocMeta() *Meta { return m }

// Stamp applies the timestamp contract: createdAt only if absent,
// updatedAt unconditionally.
func (m *Meta) Stamp(now time.Time) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}
