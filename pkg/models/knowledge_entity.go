package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// KnowledgeEntity is a named thing the owner's journal talks about: a person,
// an organization, a topic, a recurring emotion. Created on first mention and
// merged into on every subsequent one. Soft-deleted only, so historical edges
// keep a valid endpoint. Stored in engine_knowledge_entities.
type KnowledgeEntity struct {
	ID                     uuid.UUID         `json:"id"`
	OwnerID                uuid.UUID         `json:"owner_id"`
	Name                   string            `json:"name"`
	Aliases                []string          `json:"aliases,omitempty"`
	Type                   NodeType          `json:"type"` // One of EntityTypes
	Narrative              string            `json:"narrative,omitempty"` // Markdown, long-form
	Summary                string            `json:"summary,omitempty"`
	Tags                   []string          `json:"tags,omitempty"`
	InteractionCount       int               `json:"interaction_count"`
	LastInteractionAt      *time.Time        `json:"last_interaction_at,omitempty"`
	LastInteractionSummary string            `json:"last_interaction_summary,omitempty"`
	SentimentScore         float64           `json:"sentiment_score"`
	Metadata               map[string]string `json:"metadata,omitempty"`
	IsDeleted              bool              `json:"is_deleted"`
	DeletedAt              *time.Time        `json:"deleted_at,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

// NodeRef returns the graph reference for this entity.
func (e *KnowledgeEntity) NodeRef() NodeRef {
	return NodeRef{ID: e.ID, Type: e.Type}
}

// IndexKeys returns the lowercased name and aliases, deduplicated. These are
// the keys the entity registry maps to the entity id.
func (e *KnowledgeEntity) IndexKeys() []string {
	seen := make(map[string]struct{}, len(e.Aliases)+1)
	keys := make([]string, 0, len(e.Aliases)+1)
	for _, n := range append([]string{e.Name}, e.Aliases...) {
		k := strings.ToLower(strings.TrimSpace(n))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// MatchesName reports whether name equals the entity name or any alias,
// case-insensitively.
func (e *KnowledgeEntity) MatchesName(name string) bool {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, k := range e.IndexKeys() {
		if k == want {
			return true
		}
	}
	return false
}

// RecordMention merges one more mention into the entity: alias and tag set
// union, interaction count increment, running-mean sentiment update.
// The sentiment sample is optional; when nil the score is left untouched but
// the count still advances.
func (e *KnowledgeEntity) RecordMention(aliases, tags []string, sentiment *float64, summary string, at time.Time) {
	e.Aliases = unionFold(e.Aliases, aliases, e.Name)
	e.Tags = unionFold(e.Tags, tags, "")

	if sentiment != nil {
		old := float64(e.InteractionCount)
		e.SentimentScore = (e.SentimentScore*old + *sentiment) / (old + 1)
	}
	e.InteractionCount++
	e.LastInteractionAt = &at
	if summary != "" {
		e.LastInteractionSummary = summary
	}
}

// unionFold unions incoming into existing, case-insensitively, preserving
// first-seen casing and skipping the entity's own name.
func unionFold(existing, incoming []string, selfName string) []string {
	self := strings.ToLower(strings.TrimSpace(selfName))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, v := range append(append([]string{}, existing...), incoming...) {
		v = strings.TrimSpace(v)
		k := strings.ToLower(v)
		if v == "" || k == self {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
