package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/claim"
)

const (
	catalogItemTable  = "claim_catalog_items"
	claimRequestTable = "claim_requests"
)

var (
	catalogItemColumns  = []string{"id", "kind", "title", "owner_id", "created_at", "updated_at"}
	claimRequestColumns = []string{
		"id", "claimant_id", "claimant_email", "subject_kind", "subject_id", "evidence", "status",
		"reviewer_id", "review_note", "created_at", "reviewed_at",
	}
)

type (
	catalogItemRow struct {
		ID        string      `db:"id"`
		Kind      string      `db:"kind"`
		Title     string      `db:"title"`
		OwnerID   null.String `db:"owner_id"`
		CreatedAt time.Time   `db:"created_at"`
		UpdatedAt time.Time   `db:"updated_at"`
	}

	claimRequestRow struct {
		ID            string      `db:"id"`
		ClaimantID    string      `db:"claimant_id"`
		ClaimantEmail string      `db:"claimant_email"`
		SubjectKind   string      `db:"subject_kind"`
		SubjectID     string      `db:"subject_id"`
		Evidence      string      `db:"evidence"`
		Status        string      `db:"status"`
		ReviewerID    null.String `db:"reviewer_id"`
		ReviewNote    null.String `db:"review_note"`
		CreatedAt     time.Time   `db:"created_at"`
		ReviewedAt    null.Time   `db:"reviewed_at"`
	}
)

func (r catalogItemRow) unboil() claim.CatalogItem {
	return claim.CatalogItem{
		ID:        r.ID,
		Kind:      r.Kind,
		Title:     r.Title,
		OwnerID:   r.OwnerID.String,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r claimRequestRow) unboil() claim.Claim {
	return claim.Claim{
		ID:            r.ID,
		ClaimantID:    r.ClaimantID,
		ClaimantEmail: r.ClaimantEmail,
		SubjectKind:   r.SubjectKind,
		SubjectID:     r.SubjectID,
		Evidence:      r.Evidence,
		Status:        claim.Status(r.Status),
		ReviewerID:    r.ReviewerID.String,
		ReviewNote:    r.ReviewNote.String,
		CreatedAt:     r.CreatedAt,
		ReviewedAt:    r.ReviewedAt.Time,
	}
}

type claimRepository struct {
	db *sqlx.DB
}

var _ claim.Repository = (*claimRepository)(nil) // interface compliance check

func NewClaimRepository(db *sqlx.DB) claim.Repository {
	return &claimRepository{db: db}
}

// Catalog

func (repo claimRepository) CreateItem(ctx context.Context, item claim.CatalogItem) (claim.CatalogItem, error) {
	err := insert(ctx, repo.db, catalogItemTable, map[string]interface{}{
		"id":         item.ID,
		"kind":       item.Kind,
		"title":      item.Title,
		"owner_id":   nullString(item.OwnerID),
		"created_at": item.CreatedAt.UTC(),
		"updated_at": item.UpdatedAt.UTC(),
	}, "inserting catalog item")
	return item, err
}

func (repo claimRepository) getItem(ctx context.Context, id string, lock bool) (claim.CatalogItem, error) {
	if !validID(id) {
		return claim.CatalogItem{}, claim.ErrItemNotFound
	}
	qb := selectByID(catalogItemTable, catalogItemColumns, id, lock)
	return getOne(ctx, repo.db, qb, claim.ErrItemNotFound, "selecting catalog item", catalogItemRow.unboil)
}

func (repo claimRepository) GetItem(ctx context.Context, id string) (claim.CatalogItem, error) {
	return repo.getItem(ctx, id, false)
}

func (repo claimRepository) LockItem(ctx context.Context, id string) (claim.CatalogItem, error) {
	return repo.getItem(ctx, id, true)
}

func (repo claimRepository) UpdateItem(ctx context.Context, item claim.CatalogItem) (claim.CatalogItem, error) {
	qb := psql.Update(catalogItemTable).
		Set("title", item.Title).
		Set("owner_id", nullString(item.OwnerID)).
		Set("updated_at", item.UpdatedAt.UTC()).
		Where(sq.Eq{"id": item.ID})
	if err := updateOne(ctx, repo.db, qb, claim.ErrItemNotFound, "updating catalog item"); err != nil {
		return claim.CatalogItem{}, err
	}
	return item, nil
}

func (repo claimRepository) QueryItems(ctx context.Context, filter claim.ItemFilter, page core.Page) ([]claim.CatalogItem, error) {
	qb := psql.Select(catalogItemColumns...).From(catalogItemTable)
	if filter.Kind != "" {
		qb = qb.Where(sq.Eq{"kind": filter.Kind})
	}
	if filter.Search != "" {
		qb = qb.Where(sq.ILike{"title": ilike(filter.Search)})
	}
	if filter.Owned != nil {
		if *filter.Owned {
			qb = qb.Where(sq.NotEq{"owner_id": nil})
		} else {
			qb = qb.Where(sq.Eq{"owner_id": nil})
		}
	}
	qb = paginate(qb.OrderBy("title", "id"), page)
	return selectAll(ctx, repo.db, qb, "selecting catalog items", catalogItemRow.unboil)
}

// Claims

func (repo claimRepository) CreateClaim(ctx context.Context, c claim.Claim) (claim.Claim, error) {
	err := insert(ctx, repo.db, claimRequestTable, map[string]interface{}{
		"id":             c.ID,
		"claimant_id":    c.ClaimantID,
		"claimant_email": c.ClaimantEmail,
		"subject_kind":   c.SubjectKind,
		"subject_id":     c.SubjectID,
		"evidence":       c.Evidence,
		"status":         string(c.Status),
		"reviewer_id":    nullString(c.ReviewerID),
		"review_note":    nullString(c.ReviewNote),
		"created_at":     c.CreatedAt.UTC(),
		"reviewed_at":    nullTime(c.ReviewedAt),
	}, "inserting claim")
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "claim_requests_one_pending" {
			return claim.Claim{}, claim.ErrDuplicateClaim
		}
		return claim.Claim{}, err
	}
	return c, nil
}

func (repo claimRepository) getClaim(ctx context.Context, id string, lock bool) (claim.Claim, error) {
	if !validID(id) {
		return claim.Claim{}, claim.ErrNotFound
	}
	qb := selectByID(claimRequestTable, claimRequestColumns, id, lock)
	return getOne(ctx, repo.db, qb, claim.ErrNotFound, "selecting claim", claimRequestRow.unboil)
}

func (repo claimRepository) GetClaim(ctx context.Context, id string) (claim.Claim, error) {
	return repo.getClaim(ctx, id, false)
}

func (repo claimRepository) LockClaim(ctx context.Context, id string) (claim.Claim, error) {
	return repo.getClaim(ctx, id, true)
}

func (repo claimRepository) UpdateClaim(ctx context.Context, c claim.Claim) (claim.Claim, error) {
	qb := psql.Update(claimRequestTable).SetMap(map[string]interface{}{
		"status":      string(c.Status),
		"reviewer_id": nullString(c.ReviewerID),
		"review_note": nullString(c.ReviewNote),
		"reviewed_at": nullTime(c.ReviewedAt),
	}).Where(sq.Eq{"id": c.ID})
	if err := updateOne(ctx, repo.db, qb, claim.ErrNotFound, "updating claim"); err != nil {
		return claim.Claim{}, err
	}
	return c, nil
}

func (repo claimRepository) QueryClaims(
	ctx context.Context,
	filter claim.Filter,
	ordering []core.DBOrdering,
	page core.Page,
) ([]claim.Claim, error) {
	qb := psql.Select(claimRequestColumns...).From(claimRequestTable)
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.SubjectKind != "" {
		qb = qb.Where(sq.Eq{"subject_kind": filter.SubjectKind})
	}
	if filter.SubjectID != "" {
		if !validID(filter.SubjectID) {
			return nil, nil
		}
		qb = qb.Where(sq.Eq{"subject_id": filter.SubjectID})
	}
	if filter.ClaimantID != "" {
		qb = qb.Where(sq.Eq{"claimant_id": filter.ClaimantID})
	}
	qb = paginate(orderBy(qb, ordering, "id"), page)
	return selectAll(ctx, repo.db, qb, "selecting claims", claimRequestRow.unboil)
}
