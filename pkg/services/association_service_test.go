package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inkwell-ai/inkwell-engine/pkg/apperrors"
	"github.com/inkwell-ai/inkwell-engine/pkg/models"
	"github.com/inkwell-ai/inkwell-engine/pkg/ontology"
)

func newAssociationFixture() (*fakeEdgeRepo, AssociationService, uuid.UUID) {
	repo := newFakeEdgeRepo()
	svc := NewAssociationService(repo, zap.NewNop())
	return repo, svc, uuid.New()
}

func personRef() models.NodeRef {
	return models.NodeRef{ID: uuid.New(), Type: models.NodeTypePerson}
}

func orgRef() models.NodeRef {
	return models.NodeRef{ID: uuid.New(), Type: models.NodeTypeOrganization}
}

func TestCreateAssociation_NewEdgeIsActive(t *testing.T) {
	repo, svc, ownerID := newAssociationFixture()
	ctx := scopedCtx(ownerID)

	from, to := personRef(), orgRef()
	edge, err := svc.CreateAssociation(ctx, AssociationRequest{
		From: from, To: to, Relation: models.RelationWorksAt,
	})

	require.NoError(t, err)
	assert.Equal(t, models.EdgeStatusActive, edge.Status)
	assert.Equal(t, 1.0, edge.Weight)
	assert.Equal(t, ownerID, edge.OwnerID)
	assert.Len(t, repo.edges, 1)
}

func TestCreateAssociation_InvalidRelationWritesNothing(t *testing.T) {
	repo, svc, ownerID := newAssociationFixture()
	ctx := scopedCtx(ownerID)

	// An organization cannot KNOW a person.
	_, err := svc.CreateAssociation(ctx, AssociationRequest{
		From: orgRef(), To: personRef(), Relation: models.RelationKnows,
	})

	require.Error(t, err)
	var invalid *ontology.InvalidRelationError
	require.ErrorAs(t, err, &invalid)
	assert.Empty(t, repo.edges)
}

func TestCreateAssociation_SelfLoopRejected(t *testing.T) {
	repo, svc, ownerID := newAssociationFixture()
	ctx := scopedCtx(ownerID)

	node := personRef()
	_, err := svc.CreateAssociation(ctx, AssociationRequest{
		From: node, To: node, Relation: models.RelationKnows,
	})

	require.ErrorIs(t, err, apperrors.ErrSelfReference)
	assert.Empty(t, repo.edges)
}

func TestCreateAssociation_ReassertingActiveEdgeMergesInPlace(t *testing.T) {
	repo, svc, ownerID := newAssociationFixture()
	ctx := scopedCtx(ownerID)

	from, to := personRef(), orgRef()
	first, err := svc.CreateAssociation(ctx, AssociationRequest{
		From: from, To: to, Relation: models.RelationWorksAt, Weight: 0.6,
		Metadata: models.EdgeMetadata{ExtractedText: "started at Acme"},
	})
	require.NoError(t, err)

	second, err := svc.CreateAssociation(ctx, AssociationRequest{
		From: from, To: to, Relation: models.RelationWorksAt, Weight: 0.9,
		Metadata: models.EdgeMetadata{DisplayTitle: "Works at Acme"},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.EdgeStatusActive, second.Status)
	assert.Equal(t, 0.9, second.Weight)
	// Merge keeps earlier fields the new claim did not carry.
	assert.Equal(t, "started at Acme", second.Metadata.ExtractedText)
	assert.Equal(t, "Works at Acme", second.Metadata.DisplayTitle)
	assert.Len(t, repo.edges, 1)
}

func TestCreateAssociation_RefutedEdgeYieldsProposal(t *testing.T) {
	repo, svc, ownerID := newAssociationFixture()
	ctx := scopedCtx(ownerID)

	from, to := personRef(), orgRef()
	edge, err := svc.CreateAssociation(ctx, AssociationRequest{
		From: from, To: to, Relation: models.RelationWorksAt,
	})
	require.NoError(t, err)

	refuted, err := svc.RefuteEdge(ctx, edge.ID)
	require.NoError(t, err)
	require.NotNil(t, refuted.RefutedAt)

	// Re-extraction asserts the same claim again.
	proposal, err := svc.CreateAssociation(ctx, AssociationRequest{
		From: from, To: to, Relation: models.RelationWorksAt,
	})
	require.NoError(t, err)

	assert.Equal(t, models.EdgeStatusProposed, proposal.Status)
	assert.NotEqual(t, refuted.ID, proposal.ID)

	// The refutation stays intact and queryable.
	kept, err := repo.GetByID(ctx, refuted.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EdgeStatusRefuted, kept.Status)
	assert.Len(t, repo.edges, 2)
}

func TestCreateAssociation_MergesIntoPendingProposal(t *testing.T) {
	repo, svc, ownerID := newAssociationFixture()
	ctx := scopedCtx(ownerID)

	from, to := personRef(), orgRef()
	edge, err := svc.CreateAssociation(ctx, AssociationRequest{From: from, To: to, Relation: models.RelationWorksAt})
	require.NoError(t, err)
	_, err = svc.RefuteEdge(ctx, edge.ID)
	require.NoError(t, err)

	p1, err := svc.CreateAssociation(ctx, AssociationRequest{From: from, To: to, Relation: models.RelationWorksAt, Weight: 0.4})
	require.NoError(t, err)
	p2, err := svc.CreateAssociation(ctx, AssociationRequest{From: from, To: to, Relation: models.RelationWorksAt, Weight: 0.8})
	require.NoError(t, err)

	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, models.EdgeStatusProposed, p2.Status)
	assert.Equal(t, 0.8, p2.Weight)
	assert.Len(t, repo.edges, 2) // refuted + single pending proposal
}

func TestResolveProposal(t *testing.T) {
	t.Run("accept transitions to ACTIVE", func(t *testing.T) {
		_, svc, ownerID := newAssociationFixture()
		ctx := scopedCtx(ownerID)

		from, to := personRef(), orgRef()
		edge, err := svc.CreateAssociation(ctx, AssociationRequest{From: from, To: to, Relation: models.RelationWorksAt})
		require.NoError(t, err)
		_, err = svc.RefuteEdge(ctx, edge.ID)
		require.NoError(t, err)
		proposal, err := svc.CreateAssociation(ctx, AssociationRequest{From: from, To: to, Relation: models.RelationWorksAt})
		require.NoError(t, err)

		resolved, err := svc.ResolveProposal(ctx, proposal.ID, true)
		require.NoError(t, err)
		assert.Equal(t, models.EdgeStatusActive, resolved.Status)
	})

	t.Run("reject transitions to REFUTED", func(t *testing.T) {
		_, svc, ownerID := newAssociationFixture()
		ctx := scopedCtx(ownerID)

		from, to := personRef(), orgRef()
		edge, err := svc.CreateAssociation(ctx, AssociationRequest{From: from, To: to, Relation: models.RelationWorksAt})
		require.NoError(t, err)
		_, err = svc.RefuteEdge(ctx, edge.ID)
		require.NoError(t, err)
		proposal, err := svc.CreateAssociation(ctx, AssociationRequest{From: from, To: to, Relation: models.RelationWorksAt})
		require.NoError(t, err)

		resolved, err := svc.ResolveProposal(ctx, proposal.ID, false)
		require.NoError(t, err)
		assert.Equal(t, models.EdgeStatusRefuted, resolved.Status)
		assert.NotNil(t, resolved.RefutedAt)
	})

	t.Run("non-proposal is rejected", func(t *testing.T) {
		_, svc, ownerID := newAssociationFixture()
		ctx := scopedCtx(ownerID)

		edge, err := svc.CreateAssociation(ctx, AssociationRequest{From: personRef(), To: orgRef(), Relation: models.RelationWorksAt})
		require.NoError(t, err)

		_, err = svc.ResolveProposal(ctx, edge.ID, true)
		require.ErrorIs(t, err, apperrors.ErrProposalNotPending)
	})
}

func TestUnrefuteEdge(t *testing.T) {
	t.Run("reinstates as ACTIVE", func(t *testing.T) {
		_, svc, ownerID := newAssociationFixture()
		ctx := scopedCtx(ownerID)

		edge, err := svc.CreateAssociation(ctx, AssociationRequest{From: personRef(), To: orgRef(), Relation: models.RelationWorksAt})
		require.NoError(t, err)
		_, err = svc.RefuteEdge(ctx, edge.ID)
		require.NoError(t, err)

		restored, err := svc.UnrefuteEdge(ctx, edge.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EdgeStatusActive, restored.Status)
		assert.Nil(t, restored.RefutedAt)
	})

	t.Run("conflicts with an existing current edge", func(t *testing.T) {
		_, svc, ownerID := newAssociationFixture()
		ctx := scopedCtx(ownerID)

		from, to := personRef(), orgRef()
		edge, err := svc.CreateAssociation(ctx, AssociationRequest{From: from, To: to, Relation: models.RelationWorksAt})
		require.NoError(t, err)
		_, err = svc.RefuteEdge(ctx, edge.ID)
		require.NoError(t, err)
		// A proposal has since filled the current slot.
		_, err = svc.CreateAssociation(ctx, AssociationRequest{From: from, To: to, Relation: models.RelationWorksAt})
		require.NoError(t, err)

		_, err = svc.UnrefuteEdge(ctx, edge.ID)
		require.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("rejects an edge that is not refuted", func(t *testing.T) {
		_, svc, ownerID := newAssociationFixture()
		ctx := scopedCtx(ownerID)

		edge, err := svc.CreateAssociation(ctx, AssociationRequest{From: personRef(), To: orgRef(), Relation: models.RelationWorksAt})
		require.NoError(t, err)

		_, err = svc.UnrefuteEdge(ctx, edge.ID)
		require.ErrorIs(t, err, apperrors.ErrConflict, "only a REFUTED edge can be reinstated")
	})
}

func TestRemoveEdge(t *testing.T) {
	repo, svc, ownerID := newAssociationFixture()
	ctx := scopedCtx(ownerID)

	from, to := personRef(), orgRef()
	_, err := svc.CreateAssociation(ctx, AssociationRequest{From: from, To: to, Relation: models.RelationWorksAt})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveEdge(ctx, from.ID, to.ID, models.RelationWorksAt))
	assert.Empty(t, repo.edges)

	err = svc.RemoveEdge(ctx, from.ID, to.ID, models.RelationWorksAt)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRemoveNodeEdges(t *testing.T) {
	repo, svc, ownerID := newAssociationFixture()
	ctx := scopedCtx(ownerID)

	person, org, topic := personRef(), orgRef(), models.NodeRef{ID: uuid.New(), Type: models.NodeTypeTopic}
	_, err := svc.CreateAssociation(ctx, AssociationRequest{From: person, To: org, Relation: models.RelationWorksAt})
	require.NoError(t, err)
	_, err = svc.CreateAssociation(ctx, AssociationRequest{From: person, To: topic, Relation: models.RelationAssociatedWith})
	require.NoError(t, err)
	_, err = svc.CreateAssociation(ctx, AssociationRequest{From: models.NodeRef{ID: ownerID, Type: models.NodeTypeUser}, To: person, Relation: models.RelationKnows})
	require.NoError(t, err)

	removed, err := svc.RemoveNodeEdges(ctx, person.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.Empty(t, repo.edges)
}

func TestGetOutbounds_RelationFilter(t *testing.T) {
	_, svc, ownerID := newAssociationFixture()
	ctx := scopedCtx(ownerID)

	owner := models.NodeRef{ID: ownerID, Type: models.NodeTypeUser}
	person, topic := personRef(), models.NodeRef{ID: uuid.New(), Type: models.NodeTypeTopic}
	_, err := svc.CreateAssociation(ctx, AssociationRequest{From: owner, To: person, Relation: models.RelationKnows})
	require.NoError(t, err)
	_, err = svc.CreateAssociation(ctx, AssociationRequest{From: owner, To: topic, Relation: models.RelationInterestedIn})
	require.NoError(t, err)

	all, err := svc.GetOutbounds(ctx, ownerID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	knows := models.RelationKnows
	filtered, err := svc.GetOutbounds(ctx, ownerID, &knows)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, person.ID, filtered[0].To.ID)

	inbound, err := svc.GetInbounds(ctx, person.ID, &knows)
	require.NoError(t, err)
	require.Len(t, inbound, 1)
	assert.Equal(t, ownerID, inbound[0].From.ID)
}

func TestCreateAssociation_ConvergesWithConcurrentWriter(t *testing.T) {
	repo, svc, ownerID := newAssociationFixture()
	ctx := scopedCtx(ownerID)

	from, to := personRef(), orgRef()

	// A rival writer already claimed the triple; the same claim from this
	// side must converge on that edge instead of duplicating it.
	rival := &models.KnowledgeEdge{
		OwnerID: ownerID, From: from, To: to,
		Relation: models.RelationWorksAt, Status: models.EdgeStatusActive, Weight: 0.3,
	}
	require.NoError(t, repo.Insert(ctx, rival))

	edge, err := svc.CreateAssociation(ctx, AssociationRequest{From: from, To: to, Relation: models.RelationWorksAt, Weight: 0.7})
	require.NoError(t, err)
	assert.Equal(t, rival.ID, edge.ID)
	assert.Equal(t, 0.7, edge.Weight)
	assert.Len(t, repo.edges, 1)
}
