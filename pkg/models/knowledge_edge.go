package models

import (
	"time"

	"github.com/google/uuid"
)

// Relation is the closed vocabulary of edge types.
type Relation string

const (
	RelationHasGoal        Relation = "HAS_GOAL"
	RelationHasTask        Relation = "HAS_TASK"
	RelationKnows          Relation = "KNOWS"
	RelationInterestedIn   Relation = "INTERESTED_IN"
	RelationMentionedIn    Relation = "MENTIONED_IN"
	RelationWorksAt        Relation = "WORKS_AT"
	RelationContributesTo  Relation = "CONTRIBUTES_TO"
	RelationMemberOf       Relation = "MEMBER_OF"
	RelationPartOf         Relation = "PART_OF"
	RelationOwnedBy        Relation = "OWNED_BY"
	RelationAssociatedWith Relation = "ASSOCIATED_WITH"
	RelationAvoids         Relation = "AVOIDS"
	RelationNeglects       Relation = "NEGLECTS"
	RelationStrugglesWith  Relation = "STRUGGLES_WITH"
	RelationConsistentIn   Relation = "CONSISTENT_IN"
	RelationTriggers       Relation = "TRIGGERS"
	RelationBlocks         Relation = "BLOCKS"
	RelationSupports       Relation = "SUPPORTS"
	RelationRequires       Relation = "REQUIRES"
	RelationInfluences     Relation = "INFLUENCES"
)

// Edge status values.
const (
	EdgeStatusActive   = "ACTIVE"
	EdgeStatusProposed = "PROPOSED"
	EdgeStatusRefuted  = "REFUTED"
	EdgeStatusArchived = "ARCHIVED"
)

// EdgeMetadata carries the known per-edge fields plus a bounded open
// extension map. Stored as JSONB alongside the edge row.
type EdgeMetadata struct {
	Confidence    *float64          `json:"confidence,omitempty"`     // Extraction confidence 0.0-1.0
	DisplayTitle  string            `json:"display_title,omitempty"`  // Human-readable caption for UI surfaces
	ExtractedText string            `json:"extracted_text,omitempty"` // Text fragment the relation was grounded on
	Extra         map[string]string `json:"extra,omitempty"`
}

// Merge folds an incoming claim's metadata into the receiver.
// Non-empty incoming fields win; Extra is a key union with incoming
// values taking precedence.
func (m *EdgeMetadata) Merge(in EdgeMetadata) {
	if in.Confidence != nil {
		m.Confidence = in.Confidence
	}
	if in.DisplayTitle != "" {
		m.DisplayTitle = in.DisplayTitle
	}
	if in.ExtractedText != "" {
		m.ExtractedText = in.ExtractedText
	}
	if len(in.Extra) > 0 {
		if m.Extra == nil {
			m.Extra = make(map[string]string, len(in.Extra))
		}
		for k, v := range in.Extra {
			m.Extra[k] = v
		}
	}
}

// KnowledgeEdge is a directed, typed, status-carrying relationship between
// two nodes. Stored in engine_knowledge_edges.
//
// At most one logically current edge (ACTIVE or PROPOSED) exists per
// (owner_id, from.id, to.id, relation); REFUTED and ARCHIVED rows are
// retained as history outside that uniqueness.
type KnowledgeEdge struct {
	ID            uuid.UUID    `json:"id"`
	OwnerID       uuid.UUID    `json:"owner_id"`
	From          NodeRef      `json:"from"`
	To            NodeRef      `json:"to"`
	Relation      Relation     `json:"relation"`
	Status        string       `json:"status"`
	Weight        float64      `json:"weight"` // 0.0-1.0
	SourceEntryID *uuid.UUID   `json:"source_entry_id,omitempty"`
	RefutedAt     *time.Time   `json:"refuted_at,omitempty"`
	Metadata      EdgeMetadata `json:"metadata"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// IsCurrent reports whether the edge occupies the live triple slot.
func (e *KnowledgeEdge) IsCurrent() bool {
	return e.Status == EdgeStatusActive || e.Status == EdgeStatusProposed
}
