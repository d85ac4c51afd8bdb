package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sautiplus/backoffice/core/claim"
	sqlxrepos "github.com/sautiplus/backoffice/storage/database/sqlx"
)

func TestClaimRepository_LockItem(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := sqlxrepos.NewClaimRepository(db)

	_, err := repo.LockItem(ctx, "missing")
	assert.Equal(t, claim.ErrItemNotFound, err)

	created := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, kind, title, owner_id, created_at, updated_at FROM claim_catalog_items WHERE id = \$1 FOR UPDATE`).
		WithArgs(testID1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "title", "owner_id", "created_at", "updated_at"}).
			AddRow(testID1, claim.KindArtist, "Sauti Sol", nil, created, created))

	item, err := repo.LockItem(ctx, testID1)
	require.NoError(t, err)
	assert.Equal(t, claim.CatalogItem{ID: testID1, Kind: claim.KindArtist, Title: "Sauti Sol", CreatedAt: created, UpdatedAt: created}, item)
	assert.False(t, item.IsOwned())

	mock.ExpectQuery(`FROM claim_catalog_items WHERE id = \$1 FOR UPDATE`).
		WithArgs(testID2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "title", "owner_id", "created_at", "updated_at"}))
	_, err = repo.LockItem(ctx, testID2)
	assert.Equal(t, claim.ErrItemNotFound, err)
}

func TestClaimRepository_CreateClaim(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO claim_requests`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "claim_requests_one_pending"})

	_, err := sqlxrepos.NewClaimRepository(db).CreateClaim(ctx, claim.Claim{
		ID:          testID1,
		ClaimantID:  "bien",
		SubjectKind: claim.KindArtist,
		SubjectID:   testID2,
		Evidence:    "distribution contract",
		Status:      claim.StatusPending,
		CreatedAt:   time.Now(),
	})
	assert.Equal(t, claim.ErrDuplicateClaim, err)
}
