package claim_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/claim"
	"github.com/sautiplus/backoffice/core/testutil"
)

func addItem(t *testing.T, svc *claim.Service, kind, title string) claim.CatalogItem {
	t.Helper()
	item, err := svc.AddItem(context.Background(), claim.NewCatalogItem{Kind: kind, Title: title})
	require.NoError(t, err)
	return item
}

func submit(svc *claim.Service, claimant string, item claim.CatalogItem) (claim.Claim, error) {
	return svc.Submit(context.Background(), claim.NewClaim{
		ClaimantID:    claimant,
		ClaimantEmail: claimant + "@example.com",
		SubjectKind:   item.Kind,
		SubjectID:     item.ID,
		Evidence:      "distribution contract",
	})
}

func TestService_Submit(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.ClaimSvc
	ctx := context.Background()

	_, err := svc.AddItem(ctx, claim.NewCatalogItem{Kind: "podcast", Title: "Mazungumzo"})
	assert.IsType(t, validator.ValidationErrors{}, err)

	song := addItem(t, svc, " SONG ", "Suzanna")
	assert.Equal(t, claim.KindSong, song.Kind)

	tests := []struct {
		name  string
		nc    claim.NewClaim
		field string
	}{
		{
			name:  "unknown subject",
			nc:    claim.NewClaim{ClaimantID: "user-1", SubjectKind: claim.KindSong, SubjectID: "missing", Evidence: "x"},
			field: "subject_id",
		},
		{
			name:  "kind mismatch",
			nc:    claim.NewClaim{ClaimantID: "user-1", SubjectKind: claim.KindAlbum, SubjectID: song.ID, Evidence: "x"},
			field: "subject_kind",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.nc)
			var verr *core.ValidationError
			if assert.ErrorAs(t, err, &verr) {
				assert.Equal(t, tt.field, verr.Fields[0].Field)
			}
		})
	}

	_, err = svc.Submit(ctx, claim.NewClaim{ClaimantID: "user-1", SubjectKind: claim.KindSong, SubjectID: song.ID})
	assert.IsType(t, validator.ValidationErrors{}, err, "evidence is required")

	c, err := submit(svc, "user-1", song)
	require.NoError(t, err)
	assert.Equal(t, claim.StatusPending, c.Status)

	_, err = submit(svc, "user-1", song)
	assert.Equal(t, claim.ErrDuplicateClaim, err)
	assert.True(t, core.IsConflict(err))

	// a rejected claim can be filed again
	_, err = svc.Reject(ctx, c.ID, "staff-1", "")
	var verr *core.ValidationError
	if assert.ErrorAs(t, err, &verr) {
		assert.Equal(t, "note", verr.Fields[0].Field)
	}
	c, err = svc.Reject(ctx, c.ID, "staff-1", " no proof ")
	require.NoError(t, err)
	assert.Equal(t, claim.StatusRejected, c.Status)
	assert.Equal(t, "no proof", c.ReviewNote)
	_, err = svc.Reject(ctx, c.ID, "staff-1", "again")
	assert.Equal(t, claim.ErrNotPending, err)

	_, err = submit(svc, "user-1", song)
	assert.NoError(t, err)

	if sent := env.Mail.SentMessages(); assert.Len(t, sent, 1) {
		assert.Equal(t, "user-1@example.com", sent[0].To[0].Address)
		assert.Contains(t, sent[0].Body, "Note: no proof")
	}
}

func TestService_ApproveAndRelease(t *testing.T) {
	reviewedAt := time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC)
	env := testutil.NewEnv(t, reviewedAt)
	svc := env.ClaimSvc
	ctx := context.Background()

	artist := addItem(t, svc, claim.KindArtist, "Sauti Sol")
	other := addItem(t, svc, claim.KindArtist, "Nyashinski")

	first, err := submit(svc, "bien", artist)
	require.NoError(t, err)
	second, err := submit(svc, "impostor", artist)
	require.NoError(t, err)
	unrelated, err := submit(svc, "nyashinski", other)
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, first.ID, "staff-1", "verified")
	require.NoError(t, err)
	assert.Equal(t, claim.StatusApproved, approved.Status)
	assert.Equal(t, reviewedAt, approved.ReviewedAt)

	superseded, err := svc.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, claim.StatusRejected, superseded.Status)
	assert.Equal(t, claim.SupersededNote, superseded.ReviewNote)

	untouched, err := svc.Get(ctx, unrelated.ID)
	require.NoError(t, err)
	assert.Equal(t, claim.StatusPending, untouched.Status)

	assert.Len(t, env.Events.Events(claim.EventApproved), 1)
	assert.Len(t, env.Events.Events(claim.EventRejected), 1)

	_, err = svc.Approve(ctx, second.ID, "staff-1", "")
	assert.Equal(t, claim.ErrNotPending, err)
	_, err = submit(svc, "latecomer", artist)
	assert.Equal(t, claim.ErrAlreadyOwned, err)

	owned := true
	items, err := svc.ListItems(ctx, claim.ItemFilter{Owned: &owned}, core.Page{})
	require.NoError(t, err)
	if assert.Len(t, items, 1) {
		assert.Equal(t, "bien", items[0].OwnerID)
	}

	item, err := svc.Release(ctx, artist.ID)
	require.NoError(t, err)
	assert.False(t, item.IsOwned())
	_, err = svc.Release(ctx, artist.ID)
	assert.Equal(t, claim.ErrNotOwned, err)

	claims, err := svc.List(ctx, claim.Filter{Status: claim.StatusPending}, core.Page{})
	require.NoError(t, err)
	assert.Len(t, claims, 1)

	_, err = svc.Approve(ctx, "missing", "staff-1", "")
	assert.Equal(t, claim.ErrNotFound, err)
}

func TestService_ApproveSupersedesEveryPendingClaim(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.ClaimSvc
	ctx := context.Background()

	artist := addItem(t, svc, claim.KindArtist, "Sauti Sol")
	first, err := submit(svc, "bien", artist)
	require.NoError(t, err)
	n := core.MaxPageLimit + 2
	for i := 0; i < n; i++ {
		_, err := submit(svc, fmt.Sprintf("claimant-%d", i), artist)
		require.NoError(t, err)
	}

	_, err = svc.Approve(ctx, first.ID, "staff-1", "verified")
	require.NoError(t, err)
	assert.Len(t, env.Events.Events(claim.EventRejected), n)

	pending, err := svc.List(ctx, claim.Filter{Status: claim.StatusPending, SubjectID: artist.ID}, core.Page{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestService_ConcurrentApprovals(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := env.ClaimSvc
	ctx := context.Background()

	album := addItem(t, svc, claim.KindAlbum, "Midnight Train")
	var ids []string
	for _, claimant := range []string{"user-1", "user-2", "user-3", "user-4"} {
		c, err := submit(svc, claimant, album)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved []string
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			c, err := svc.Approve(ctx, id, "staff-1", "")
			if err != nil {
				assert.Equal(t, claim.ErrNotPending, err)
				return
			}
			mu.Lock()
			approved = append(approved, c.ClaimantID)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	require.Len(t, approved, 1, "exactly one claim wins")
	item, err := svc.GetItem(ctx, album.ID)
	require.NoError(t, err)
	assert.Equal(t, approved[0], item.OwnerID)
}
