package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell-engine/pkg/database"
)

// OwnerContextFunc creates an owner-scoped context for database operations.
// The returned cleanup function must be called when the scope is no longer needed.
type OwnerContextFunc func(ctx context.Context, ownerID uuid.UUID) (context.Context, func(), error)

// NewOwnerContextFunc creates an OwnerContextFunc that uses the given database.
func NewOwnerContextFunc(db *database.DB) OwnerContextFunc {
	return func(ctx context.Context, ownerID uuid.UUID) (context.Context, func(), error) {
		scope, err := db.WithOwner(ctx, ownerID)
		if err != nil {
			return nil, nil, err
		}
		ownerCtx := database.SetOwnerScope(ctx, scope)
		return ownerCtx, func() { scope.Close() }, nil
	}
}
