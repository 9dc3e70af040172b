package models

import (
	"time"

	"github.com/google/uuid"
)

// Journal entry processing status values.
const (
	EntryStatusPending   = "pending"
	EntryStatusProcessed = "processed"
	EntryStatusFailed    = "failed"
)

// JournalEntry is the slice of the entry store the graph core reads and
// writes: content in, mention set and processed status out. The rest of the
// entry record (media, mood check-ins, edit history) belongs to the journal
// collaborator. Stored in engine_journal_entries.
type JournalEntry struct {
	ID        uuid.UUID   `json:"id"`
	OwnerID   uuid.UUID   `json:"owner_id"`
	Content   string      `json:"content"`
	EntryDate time.Time   `json:"entry_date"`
	Mentions  []uuid.UUID `json:"mentions,omitempty"` // KnowledgeEntity ids referenced by this entry
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NodeRef returns the graph reference for this entry. Entries appear in the
// graph as Context nodes, the target of MENTIONED_IN provenance edges.
func (j *JournalEntry) NodeRef() NodeRef {
	return NodeRef{ID: j.ID, Type: NodeTypeContext}
}

// MergeMentions unions ids into the entry's mention set, preserving order of
// first appearance.
func (j *JournalEntry) MergeMentions(ids []uuid.UUID) {
	seen := make(map[uuid.UUID]struct{}, len(j.Mentions)+len(ids))
	for _, id := range j.Mentions {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		j.Mentions = append(j.Mentions, id)
	}
}
