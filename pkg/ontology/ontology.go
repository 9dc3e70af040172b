// Package ontology holds the fixed rule table constraining which node types
// each relation may connect. Validation is pure and must pass before any
// edge write.
package ontology

import (
	"fmt"
	"sort"

	"github.com/inkwell-ai/inkwell-engine/pkg/models"
)

// InvalidRelationError reports a (fromType, relation, toType) combination the
// ontology table does not allow.
type InvalidRelationError struct {
	FromType models.NodeType
	Relation models.Relation
	ToType   models.NodeType
}

func (e *InvalidRelationError) Error() string {
	return fmt.Sprintf("ontology does not allow %s -[%s]-> %s", e.FromType, e.Relation, e.ToType)
}

// Rule lists the node types a relation may connect.
type Rule struct {
	From []models.NodeType
	To   []models.NodeType
}

func types(ts ...models.NodeType) []models.NodeType { return ts }

// rules is the ontology table. Data only; changing graph semantics means
// changing this table, not code.
var rules = map[models.Relation]Rule{
	models.RelationHasGoal: {
		From: types(models.NodeTypeUser),
		To:   types(models.NodeTypeGoal),
	},
	models.RelationHasTask: {
		From: types(models.NodeTypeUser, models.NodeTypeGoal, models.NodeTypeProject),
		To:   types(models.NodeTypeTask),
	},
	models.RelationKnows: {
		From: types(models.NodeTypeUser),
		To:   types(models.NodeTypePerson),
	},
	models.RelationInterestedIn: {
		From: types(models.NodeTypeUser),
		To:   types(models.NodeTypeEntity, models.NodeTypeProject, models.NodeTypeOrganization, models.NodeTypeTopic, models.NodeTypeEmotion),
	},
	models.RelationMentionedIn: {
		From: types(models.NodeTypePerson, models.NodeTypeEntity, models.NodeTypeProject, models.NodeTypeOrganization,
			models.NodeTypeTopic, models.NodeTypeEmotion, models.NodeTypeGoal, models.NodeTypeTask),
		To: types(models.NodeTypeContext),
	},
	models.RelationWorksAt: {
		From: types(models.NodeTypeUser, models.NodeTypePerson),
		To:   types(models.NodeTypeOrganization),
	},
	models.RelationContributesTo: {
		From: types(models.NodeTypeUser, models.NodeTypePerson, models.NodeTypeOrganization),
		To:   types(models.NodeTypeProject, models.NodeTypeGoal),
	},
	models.RelationMemberOf: {
		From: types(models.NodeTypeUser, models.NodeTypePerson),
		To:   types(models.NodeTypeOrganization, models.NodeTypeProject),
	},
	models.RelationPartOf: {
		From: types(models.NodeTypeTask, models.NodeTypeProject, models.NodeTypeTopic, models.NodeTypeEntity, models.NodeTypeGoal),
		To:   types(models.NodeTypeGoal, models.NodeTypeProject, models.NodeTypeOrganization, models.NodeTypeTopic, models.NodeTypeEntity),
	},
	models.RelationOwnedBy: {
		From: types(models.NodeTypeEntity, models.NodeTypeProject, models.NodeTypeOrganization),
		To:   types(models.NodeTypeUser, models.NodeTypePerson, models.NodeTypeOrganization),
	},
	models.RelationAssociatedWith: {
		From: types(models.NodeTypePerson, models.NodeTypeEntity, models.NodeTypeProject, models.NodeTypeOrganization,
			models.NodeTypeTopic, models.NodeTypeEmotion, models.NodeTypeGoal, models.NodeTypeTask),
		To: types(models.NodeTypePerson, models.NodeTypeEntity, models.NodeTypeProject, models.NodeTypeOrganization,
			models.NodeTypeTopic, models.NodeTypeEmotion, models.NodeTypeGoal, models.NodeTypeTask),
	},
	models.RelationAvoids: {
		From: types(models.NodeTypeUser, models.NodeTypePerson),
		To: types(models.NodeTypePerson, models.NodeTypeEntity, models.NodeTypeTopic, models.NodeTypeContext,
			models.NodeTypeEmotion, models.NodeTypeTask),
	},
	models.RelationNeglects: {
		From: types(models.NodeTypeUser, models.NodeTypePerson),
		To:   types(models.NodeTypeGoal, models.NodeTypeTask, models.NodeTypeProject, models.NodeTypePerson, models.NodeTypeTopic),
	},
	models.RelationStrugglesWith: {
		From: types(models.NodeTypeUser, models.NodeTypePerson),
		To: types(models.NodeTypeTopic, models.NodeTypeTask, models.NodeTypeGoal, models.NodeTypeEmotion,
			models.NodeTypeEntity, models.NodeTypeProject),
	},
	models.RelationConsistentIn: {
		From: types(models.NodeTypeUser, models.NodeTypePerson),
		To:   types(models.NodeTypeTopic, models.NodeTypeTask, models.NodeTypeGoal, models.NodeTypeContext),
	},
	models.RelationTriggers: {
		From: types(models.NodeTypeContext, models.NodeTypeEntity, models.NodeTypeTopic, models.NodeTypePerson, models.NodeTypeEmotion),
		To:   types(models.NodeTypeEmotion),
	},
	models.RelationBlocks: {
		From: types(models.NodeTypeTask, models.NodeTypeEmotion, models.NodeTypeContext, models.NodeTypeEntity, models.NodeTypePerson),
		To:   types(models.NodeTypeTask, models.NodeTypeGoal, models.NodeTypeProject),
	},
	models.RelationSupports: {
		From: types(models.NodeTypeTask, models.NodeTypeEntity, models.NodeTypePerson, models.NodeTypeTopic, models.NodeTypeContext),
		To:   types(models.NodeTypeGoal, models.NodeTypeProject, models.NodeTypeTask),
	},
	models.RelationRequires: {
		From: types(models.NodeTypeTask, models.NodeTypeGoal, models.NodeTypeProject),
		To:   types(models.NodeTypeEntity, models.NodeTypeTask, models.NodeTypePerson, models.NodeTypeOrganization),
	},
	models.RelationInfluences: {
		From: types(models.NodeTypeEmotion, models.NodeTypeContext, models.NodeTypePerson, models.NodeTypeTopic, models.NodeTypeEntity),
		To:   types(models.NodeTypeEmotion, models.NodeTypeTask, models.NodeTypeGoal, models.NodeTypePerson, models.NodeTypeTopic),
	},
}

// Validate checks the (fromType, relation, toType) combination against the
// rule table. Type-level only: node identity (including self-loops) is the
// caller's concern.
func Validate(fromType models.NodeType, relation models.Relation, toType models.NodeType) *InvalidRelationError {
	rule, ok := rules[relation]
	if !ok {
		return &InvalidRelationError{FromType: fromType, Relation: relation, ToType: toType}
	}
	if !contains(rule.From, fromType) || !contains(rule.To, toType) {
		return &InvalidRelationError{FromType: fromType, Relation: relation, ToType: toType}
	}
	return nil
}

// IsRelation reports whether s is in the relation vocabulary.
func IsRelation(s string) bool {
	_, ok := rules[models.Relation(s)]
	return ok
}

// Relations returns the vocabulary in stable sorted order, for prompt
// construction and schema hints.
func Relations() []models.Relation {
	out := make([]models.Relation, 0, len(rules))
	for r := range rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RuleFor exposes the allowed type lists for a relation. The second return
// is false for unknown relations.
func RuleFor(relation models.Relation) (Rule, bool) {
	r, ok := rules[relation]
	return r, ok
}

func contains(ts []models.NodeType, t models.NodeType) bool {
	for _, v := range ts {
		if v == t {
			return true
		}
	}
	return false
}
