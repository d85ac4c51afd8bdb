package inmemdb

import (
	"context"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/claim"
)

type claimRepository struct {
	db *DB
}

var _ claim.Repository = (*claimRepository)(nil)

func NewClaimRepository(db *DB) claim.Repository {
	return &claimRepository{db: db}
}

func itemsTable(st *state) map[string]claim.CatalogItem { return st.items }
func claimsTable(st *state) map[string]claim.Claim      { return st.claims }

func (repo *claimRepository) CreateItem(ctx context.Context, item claim.CatalogItem) (claim.CatalogItem, error) {
	return put(ctx, repo.db, itemsTable, item.ID, item, false, nil)
}

func (repo *claimRepository) GetItem(_ context.Context, id string) (claim.CatalogItem, error) {
	return get(repo.db, itemsTable, id, claim.ErrItemNotFound)
}

func (repo *claimRepository) LockItem(ctx context.Context, id string) (claim.CatalogItem, error) {
	return repo.GetItem(ctx, id)
}

func (repo *claimRepository) UpdateItem(ctx context.Context, item claim.CatalogItem) (claim.CatalogItem, error) {
	return put(ctx, repo.db, itemsTable, item.ID, item, true, claim.ErrItemNotFound)
}

func (repo *claimRepository) QueryItems(_ context.Context, filter claim.ItemFilter, page core.Page) (res []claim.CatalogItem, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.items, func(item claim.CatalogItem) bool {
			return (filter.Kind == "" || item.Kind == filter.Kind) &&
				(filter.Search == "" || containsFold(item.Title, filter.Search)) &&
				(filter.Owned == nil || item.IsOwned() == *filter.Owned)
		})
	})
	orderBy(res, []core.DBOrdering{{Field: "title", Ascending: true}},
		func(item claim.CatalogItem, _ string) interface{} { return item.Title },
		func(item claim.CatalogItem) string { return item.ID })
	return paginate(res, page), nil
}

func (repo *claimRepository) CreateClaim(ctx context.Context, c claim.Claim) (claim.Claim, error) {
	return put(ctx, repo.db, claimsTable, c.ID, c, false, nil)
}

func (repo *claimRepository) GetClaim(_ context.Context, id string) (claim.Claim, error) {
	return get(repo.db, claimsTable, id, claim.ErrNotFound)
}

func (repo *claimRepository) LockClaim(ctx context.Context, id string) (claim.Claim, error) {
	return repo.GetClaim(ctx, id)
}

func (repo *claimRepository) UpdateClaim(ctx context.Context, c claim.Claim) (claim.Claim, error) {
	return put(ctx, repo.db, claimsTable, c.ID, c, true, claim.ErrNotFound)
}

func (repo *claimRepository) QueryClaims(
	_ context.Context,
	filter claim.Filter,
	ordering []core.DBOrdering,
	page core.Page,
) (res []claim.Claim, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.claims, func(c claim.Claim) bool {
			return (filter.Status == "" || c.Status == filter.Status) &&
				(filter.SubjectKind == "" || c.SubjectKind == filter.SubjectKind) &&
				(filter.SubjectID == "" || c.SubjectID == filter.SubjectID) &&
				(filter.ClaimantID == "" || c.ClaimantID == filter.ClaimantID)
		})
	})
	orderBy(res, ordering, func(c claim.Claim, field string) interface{} {
		if field == "reviewed_at" {
			return c.ReviewedAt
		}
		return c.CreatedAt
	}, func(c claim.Claim) string { return c.ID })
	return paginate(res, page), nil
}
