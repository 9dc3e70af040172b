package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inkwell-ai/inkwell-engine/pkg/apperrors"
	"github.com/inkwell-ai/inkwell-engine/pkg/database"
	"github.com/inkwell-ai/inkwell-engine/pkg/models"
)

// EntryRepository provides the graph core's access to journal entries:
// content in, mention set and processing status out.
type EntryRepository interface {
	// Create inserts a new entry in pending status.
	Create(ctx context.Context, entry *models.JournalEntry) error

	// GetByID retrieves an entry. Returns apperrors.ErrNotFound on miss.
	GetByID(ctx context.Context, id uuid.UUID) (*models.JournalEntry, error)

	// UpdateMentionsAndStatus persists the entry's mention set and status.
	UpdateMentionsAndStatus(ctx context.Context, entry *models.JournalEntry) error

	// ListByMention returns processed entries whose mention set contains the
	// entity, newest entry date first, paginated.
	ListByMention(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]*models.JournalEntry, error)
}

type entryRepository struct{}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository() EntryRepository {
	return &entryRepository{}
}

var _ EntryRepository = (*entryRepository)(nil)

const entryColumns = `id, owner_id, content, entry_date, mentions, status, created_at, updated_at`

func (r *entryRepository) Create(ctx context.Context, entry *models.JournalEntry) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	now := time.Now()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Status == "" {
		entry.Status = models.EntryStatusPending
	}
	if entry.EntryDate.IsZero() {
		entry.EntryDate = now
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now

	query := `
		INSERT INTO engine_journal_entries (
			id, owner_id, content, entry_date, mentions, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := scope.Q().Exec(ctx, query,
		entry.ID, entry.OwnerID, entry.Content, entry.EntryDate,
		entry.Mentions, entry.Status, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}

	return nil
}

func (r *entryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.JournalEntry, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	query := `SELECT ` + entryColumns + ` FROM engine_journal_entries WHERE id = $1`

	entry, err := scanEntry(scope.Q().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: entry %s", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	return entry, nil
}

func (r *entryRepository) UpdateMentionsAndStatus(ctx context.Context, entry *models.JournalEntry) error {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return fmt.Errorf("no owner scope in context")
	}

	entry.UpdatedAt = time.Now()

	query := `
		UPDATE engine_journal_entries
		SET mentions = $2, status = $3, updated_at = $4
		WHERE id = $1`

	tag, err := scope.Q().Exec(ctx, query, entry.ID, entry.Mentions, entry.Status, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: entry %s", apperrors.ErrNotFound, entry.ID)
	}

	return nil
}

func (r *entryRepository) ListByMention(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]*models.JournalEntry, error) {
	scope, ok := database.GetOwnerScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no owner scope in context")
	}

	query := `
		SELECT ` + entryColumns + `
		FROM engine_journal_entries
		WHERE status = $1 AND $2 = ANY(mentions)
		ORDER BY entry_date DESC
		LIMIT $3 OFFSET $4`

	rows, err := scope.Q().Query(ctx, query, models.EntryStatusProcessed, entityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries by mention: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.JournalEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}

func scanEntry(row pgx.Row) (*models.JournalEntry, error) {
	var e models.JournalEntry
	err := row.Scan(
		&e.ID, &e.OwnerID, &e.Content, &e.EntryDate, &e.Mentions, &e.Status,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
