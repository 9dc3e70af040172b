package models

import "github.com/google/uuid"

// NodeType identifies which backing store a node reference points into.
type NodeType string

const (
	NodeTypeUser         NodeType = "User"
	NodeTypeGoal         NodeType = "Goal"
	NodeTypeTask         NodeType = "Task"
	NodeTypePerson       NodeType = "Person"
	NodeTypeEntity       NodeType = "Entity"
	NodeTypeProject      NodeType = "Project"
	NodeTypeOrganization NodeType = "Organization"
	NodeTypeTopic        NodeType = "Topic"
	NodeTypeEmotion      NodeType = "Emotion"
	NodeTypeContext      NodeType = "Context"
	NodeTypeReminder     NodeType = "Reminder"
)

// EntityTypes lists the node types backed by a KnowledgeEntity row.
// User and Context nodes live in the user and journal-entry stores;
// Goal/Task/Reminder nodes live in their own collaborator stores.
var EntityTypes = []NodeType{
	NodeTypePerson,
	NodeTypeEntity,
	NodeTypeProject,
	NodeTypeOrganization,
	NodeTypeTopic,
	NodeTypeEmotion,
}

// IsEntityType reports whether t is backed by a KnowledgeEntity row.
func IsEntityType(t NodeType) bool {
	for _, et := range EntityTypes {
		if t == et {
			return true
		}
	}
	return false
}

// NodeRef is a typed reference into one of the node backing stores.
type NodeRef struct {
	ID   uuid.UUID `json:"id"`
	Type NodeType  `json:"type"`
}
