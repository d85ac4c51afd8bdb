package award_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/award"
	"github.com/sautiplus/backoffice/core/testutil"
)

var opensAt = time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	award    award.Award
	category award.Category
	nominees map[string]award.Nominee
}

func newFixture(t *testing.T, svc *award.Service, names ...string) fixture {
	t.Helper()
	ctx := context.Background()

	a, err := svc.CreateAward(ctx, award.NewAward{Title: "Sauti Awards", Year: 2024})
	require.NoError(t, err)
	c, err := svc.CreateCategory(ctx, a.ID, award.NewCategory{Name: "Artist of the Year", OpensAt: opensAt, ClosesAt: opensAt.AddDate(0, 0, 14)})
	require.NoError(t, err)

	f := fixture{award: a, category: c, nominees: map[string]award.Nominee{}}
	for _, name := range names {
		n, err := svc.AddNominee(ctx, c.ID, award.NewNominee{Name: name})
		require.NoError(t, err)
		f.nominees[name] = n
	}
	return f
}

func TestService_CastVote(t *testing.T) {
	env := testutil.NewEnv(t, opensAt)
	svc := env.AwardSvc
	ctx := context.Background()

	f := newFixture(t, svc, "Zuchu", "Nandy")
	other, err := svc.CreateCategory(ctx, f.award.ID, award.NewCategory{Name: "Song of the Year", OpensAt: opensAt, ClosesAt: opensAt.AddDate(0, 0, 14)})
	require.NoError(t, err)
	stranger, err := svc.AddNominee(ctx, other.ID, award.NewNominee{Name: "Otile Brown"})
	require.NoError(t, err)

	_, err = svc.CreateCategory(ctx, f.award.ID, award.NewCategory{Name: "Backwards", OpensAt: opensAt, ClosesAt: opensAt})
	assert.IsType(t, validator.ValidationErrors{}, err)
	_, err = svc.CreateCategory(ctx, "missing", award.NewCategory{Name: "Orphan", OpensAt: opensAt, ClosesAt: opensAt.Add(time.Hour)})
	assert.Equal(t, award.ErrAwardNotFound, err)

	v, err := svc.CastVote(ctx, f.category.ID, award.NewVote{NomineeID: f.nominees["Zuchu"].ID, UserID: " user-1 "})
	require.NoError(t, err)
	assert.Equal(t, "user-1", v.UserID)
	assert.Len(t, env.Events.Events(award.EventVoteCast), 1)

	tests := []struct {
		name     string
		category string
		vote     award.NewVote
		wantErr  error
		field    string
	}{
		{name: "second vote", category: f.category.ID, vote: award.NewVote{NomineeID: f.nominees["Nandy"].ID, UserID: "user-1"}, wantErr: award.ErrAlreadyVoted},
		{name: "unknown category", category: "missing", vote: award.NewVote{NomineeID: f.nominees["Nandy"].ID, UserID: "user-2"}, wantErr: award.ErrCategoryNotFound},
		{name: "unknown nominee", category: f.category.ID, vote: award.NewVote{NomineeID: "missing", UserID: "user-2"}, field: "nominee_id"},
		{name: "nominee of another category", category: f.category.ID, vote: award.NewVote{NomineeID: stranger.ID, UserID: "user-2"}, field: "nominee_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CastVote(ctx, tt.category, tt.vote)
			if tt.field != "" {
				var verr *core.ValidationError
				if assert.ErrorAs(t, err, &verr) {
					assert.Equal(t, tt.field, verr.Fields[0].Field)
				}
				return
			}
			assert.Equal(t, tt.wantErr, err)
		})
	}

	// the same user may vote in another category
	_, err = svc.CastVote(ctx, other.ID, award.NewVote{NomineeID: stranger.ID, UserID: "user-1"})
	assert.NoError(t, err)

	// ClosesAt is exclusive
	env.SetNow(f.category.ClosesAt)
	_, err = svc.CastVote(ctx, f.category.ID, award.NewVote{NomineeID: f.nominees["Nandy"].ID, UserID: "user-3"})
	assert.Equal(t, award.ErrVotingClosed, err)
	env.SetNow(opensAt.Add(-time.Second))
	_, err = svc.CastVote(ctx, f.category.ID, award.NewVote{NomineeID: f.nominees["Nandy"].ID, UserID: "user-3"})
	assert.Equal(t, award.ErrVotingClosed, err)
}

func TestService_Results(t *testing.T) {
	env := testutil.NewEnv(t, opensAt)
	svc := env.AwardSvc
	ctx := context.Background()

	f := newFixture(t, svc, "Zuchu", "Nandy", "Jux")
	for user, nominee := range map[string]string{"user-1": "Zuchu", "user-2": "Nandy", "user-3": "Nandy"} {
		_, err := svc.CastVote(ctx, f.category.ID, award.NewVote{NomineeID: f.nominees[nominee].ID, UserID: user})
		require.NoError(t, err)
	}

	want := []award.Result{
		{NomineeID: f.nominees["Nandy"].ID, Name: "Nandy", Votes: 2},
		{NomineeID: f.nominees["Zuchu"].ID, Name: "Zuchu", Votes: 1},
		{NomineeID: f.nominees["Jux"].ID, Name: "Jux", Votes: 0},
	}

	res, err := svc.Results(ctx, f.category.ID)
	require.NoError(t, err)
	assert.False(t, res.FromCache, "the first read loads the tally")
	assert.Equal(t, int64(3), res.TotalVotes)
	assert.Equal(t, want, res.Nominees)

	res, err = svc.Results(ctx, f.category.ID)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, want, res.Nominees)

	// ties are broken by name
	_, err = svc.CastVote(ctx, f.category.ID, award.NewVote{NomineeID: f.nominees["Zuchu"].ID, UserID: "user-4"})
	require.NoError(t, err)
	res, err = svc.Results(ctx, f.category.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nandy", res.Nominees[0].Name)
	assert.Equal(t, "Zuchu", res.Nominees[1].Name)
	assert.Equal(t, int64(2), res.Nominees[1].Votes)

	require.NoError(t, env.Tally.Load(ctx, f.category.ID, map[string]int64{}))
	require.NoError(t, svc.RebuildTally(ctx, f.category.ID))
	res, err = svc.Results(ctx, f.category.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.TotalVotes)

	assert.Equal(t, award.ErrCategoryNotFound, svc.RebuildTally(ctx, "missing"))
}

// brokenTally fails every call, like an unreachable redis.
type brokenTally struct{}

var errTallyDown = errors.New("tally down")

func (brokenTally) Incr(context.Context, string, string) error { return errTallyDown }

func (brokenTally) Counts(context.Context, string) (map[string]int64, bool, error) {
	return nil, false, errTallyDown
}

func (brokenTally) Load(context.Context, string, map[string]int64) error { return errTallyDown }

func TestService_TallyUnavailable(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := award.NewService(env.AwardRepo, brokenTally{}, env.Events, env.Logger, env.Validate)
	svc.NowFunc = func() time.Time { return opensAt }
	ctx := context.Background()

	f := newFixture(t, svc, "Zuchu", "Nandy")
	_, err := svc.CastVote(ctx, f.category.ID, award.NewVote{NomineeID: f.nominees["Zuchu"].ID, UserID: "user-1"})
	require.NoError(t, err, "votes are stored even when the tally is down")

	res, err := svc.Results(ctx, f.category.ID)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, int64(1), res.TotalVotes)

	assert.Equal(t, errTallyDown, svc.RebuildTally(ctx, f.category.ID))
}

// countHookRepo runs hook once, right after the first CountVotes read.
type countHookRepo struct {
	award.Repository
	once sync.Once
	hook func()
}

func (r *countHookRepo) CountVotes(ctx context.Context, categoryID string) (map[string]int64, error) {
	counts, err := r.Repository.CountVotes(ctx, categoryID)
	r.once.Do(r.hook)
	return counts, err
}

// lateIncrTally replays one increment right after the first Load,
// like a vote whose Incr reaches redis after the database was counted.
type lateIncrTally struct {
	award.TallyCache
	once      sync.Once
	nomineeID string
}

func (c *lateIncrTally) Load(ctx context.Context, categoryID string, counts map[string]int64) error {
	if err := c.TallyCache.Load(ctx, categoryID, counts); err != nil {
		return err
	}
	var err error
	c.once.Do(func() { err = c.TallyCache.Incr(ctx, categoryID, c.nomineeID) })
	return err
}

func TestService_TallyLoadRace(t *testing.T) {
	ctx := context.Background()

	t.Run("vote committed after counting", func(t *testing.T) {
		env := testutil.NewEnv(t, opensAt)
		f := newFixture(t, env.AwardSvc, "Zuchu", "Nandy")
		_, err := env.AwardSvc.CastVote(ctx, f.category.ID, award.NewVote{NomineeID: f.nominees["Nandy"].ID, UserID: "user-1"})
		require.NoError(t, err)

		repo := &countHookRepo{Repository: env.AwardRepo}
		svc := award.NewService(repo, env.Tally, env.Events, env.Logger, env.Validate)
		svc.NowFunc = func() time.Time { return opensAt }
		repo.hook = func() {
			// the tally is not loaded yet: this vote's Incr is dropped
			_, err := svc.CastVote(ctx, f.category.ID, award.NewVote{NomineeID: f.nominees["Zuchu"].ID, UserID: "user-2"})
			require.NoError(t, err)
		}

		res, err := svc.Results(ctx, f.category.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.TotalVotes)

		res, err = svc.Results(ctx, f.category.ID)
		require.NoError(t, err)
		assert.True(t, res.FromCache)
		assert.Equal(t, int64(2), res.TotalVotes)
	})

	t.Run("increment applied after loading", func(t *testing.T) {
		env := testutil.NewEnv(t, opensAt)
		f := newFixture(t, env.AwardSvc, "Zuchu", "Nandy")
		_, err := env.AwardSvc.CastVote(ctx, f.category.ID, award.NewVote{NomineeID: f.nominees["Zuchu"].ID, UserID: "user-1"})
		require.NoError(t, err)

		tally := &lateIncrTally{TallyCache: env.Tally, nomineeID: f.nominees["Zuchu"].ID}
		svc := award.NewService(env.AwardRepo, tally, env.Events, env.Logger, env.Validate)

		res, err := svc.Results(ctx, f.category.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.TotalVotes)

		counts, ok, err := env.Tally.Counts(ctx, f.category.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1), counts[f.nominees["Zuchu"].ID], "the late increment is not counted twice")
	})
}

func TestService_ConcurrentVotes(t *testing.T) {
	env := testutil.NewEnv(t, opensAt)
	svc := env.AwardSvc
	ctx := context.Background()

	f := newFixture(t, svc, "Zuchu", "Nandy")
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// user-0..user-9 each vote twice
			_, err := svc.CastVote(ctx, f.category.ID, award.NewVote{NomineeID: f.nominees["Zuchu"].ID, UserID: fmt.Sprintf("user-%d", i%10)})
			if err != nil {
				assert.Equal(t, award.ErrAlreadyVoted, err)
				return
			}
			mu.Lock()
			accepted++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	res, err := svc.Results(ctx, f.category.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.TotalVotes)
}
