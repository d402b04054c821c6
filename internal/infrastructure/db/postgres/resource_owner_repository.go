package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
)

var _ ports.ResourceOwnerRepository = (*ResourceOwnerRepository)(nil)

// ownerQueries maps a resource type to the query returning its owning user.
var ownerQueries = map[string]string{
	"project": `select owner_id from projects where id = $1`,
	"task":    `select assignee_id from tasks where id = $1`,
	"file":    `select uploaded_by from files where id = $1`,
	"session": `select user_id from sessions where id = $1`,
}

// ResourceOwnerRepository reads ownership columns of business tables.
type ResourceOwnerRepository struct {
	db *sql.DB
}

func NewResourceOwnerRepository(db *sql.DB) *ResourceOwnerRepository {
	return &ResourceOwnerRepository{db: db}
}

// OwnerOf returns the owning user of the resource. Unknown types, unknown ids
// and unowned rows are all domain.ErrResourceNotFound.
func (r *ResourceOwnerRepository) OwnerOf(ctx context.Context, resourceType, resourceID string) (string, error) {
	query, ok := ownerQueries[resourceType]
	if !ok {
		return "", fmt.Errorf("%w: unknown resource type %q", domain.ErrResourceNotFound, resourceType)
	}
	var owner sql.NullString
	err := r.db.QueryRowContext(ctx, query, resourceID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) || (err == nil && !owner.Valid) {
		return "", domain.ErrResourceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resource owner: %w", err)
	}
	return owner.String, nil
}
