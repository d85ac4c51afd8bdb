package award

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core"
)

var (
	// errors
	ErrAwardNotFound    = core.NewNotFoundError("award not found")
	ErrCategoryNotFound = core.NewNotFoundError("category not found")
	ErrNomineeNotFound  = core.NewNotFoundError("nominee not found")
	ErrVotingClosed     = core.NewStateError("voting is closed for this category")
	ErrAlreadyVoted     = core.NewConflictError("you already voted in this category")
)

const (
	EventVoteCast = "award.vote.cast"

	tallyLoadAttempts = 3
)

type (
	Repository interface {
		CreateAward(ctx context.Context, a Award) (Award, error)
		GetAward(ctx context.Context, id string) (Award, error)
		QueryAwards(ctx context.Context, page core.Page) ([]Award, error)

		CreateCategory(ctx context.Context, c Category) (Category, error)
		GetCategory(ctx context.Context, id string) (Category, error)
		QueryCategories(ctx context.Context, awardID string) ([]Category, error)

		CreateNominee(ctx context.Context, n Nominee) (Nominee, error)
		GetNominee(ctx context.Context, id string) (Nominee, error)
		QueryNominees(ctx context.Context, categoryID string) ([]Nominee, error)

		// CreateVote returns ErrAlreadyVoted when the user already voted in the category.
		CreateVote(ctx context.Context, v Vote) (Vote, error)
		CountVotes(ctx context.Context, categoryID string) (map[string]int64, error)
	}

	// TallyCache keeps live vote counts per category.
	// Counts reports ok = false when the category tally is not loaded.
	TallyCache interface {
		Incr(ctx context.Context, categoryID, nomineeID string) error
		Counts(ctx context.Context, categoryID string) (counts map[string]int64, ok bool, err error)
		Load(ctx context.Context, categoryID string, counts map[string]int64) error
	}

	Service struct {
		repo     Repository
		tally    TallyCache
		events   core.EventPublisher
		log      core.Logger
		validate *validator.Validate
		NowFunc  func() time.Time // mockable
	}
)

func NewService(repo Repository, tally TallyCache, events core.EventPublisher, logger core.Logger, validate *validator.Validate) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tally, "tally"),
		vala.IsNotNil(events, "events"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	return &Service{repo: repo, tally: tally, events: events, log: logger, validate: validate, NowFunc: core.Now}
}

func (svc *Service) CreateAward(ctx context.Context, na NewAward) (Award, error) {
	na.Title = core.CleanString(na.Title)
	if err := svc.validate.Struct(na); err != nil {
		return Award{}, err
	}
	return svc.repo.CreateAward(ctx, Award{
		ID:        uuid.NewString(),
		Title:     na.Title,
		Year:      na.Year,
		CreatedAt: svc.NowFunc(),
	})
}

func (svc *Service) GetAward(ctx context.Context, id string) (Award, error) {
	return svc.repo.GetAward(ctx, id)
}

func (svc *Service) ListAwards(ctx context.Context, page core.Page) ([]Award, error) {
	page.Clean()
	return svc.repo.QueryAwards(ctx, page)
}

func (svc *Service) CreateCategory(ctx context.Context, awardID string, nc NewCategory) (Category, error) {
	nc.clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Category{}, err
	}
	a, err := svc.repo.GetAward(ctx, awardID)
	if err != nil {
		return Category{}, err
	}
	return svc.repo.CreateCategory(ctx, Category{
		ID:        uuid.NewString(),
		AwardID:   a.ID,
		Name:      nc.Name,
		OpensAt:   nc.OpensAt,
		ClosesAt:  nc.ClosesAt,
		CreatedAt: svc.NowFunc(),
	})
}

func (svc *Service) ListCategories(ctx context.Context, awardID string) ([]Category, error) {
	if _, err := svc.repo.GetAward(ctx, awardID); err != nil {
		return nil, err
	}
	return svc.repo.QueryCategories(ctx, awardID)
}

func (svc *Service) AddNominee(ctx context.Context, categoryID string, nn NewNominee) (Nominee, error) {
	nn.Name = core.CleanString(nn.Name)
	nn.CatalogItemID = core.CleanString(nn.CatalogItemID)
	if err := svc.validate.Struct(nn); err != nil {
		return Nominee{}, err
	}
	c, err := svc.repo.GetCategory(ctx, categoryID)
	if err != nil {
		return Nominee{}, err
	}
	return svc.repo.CreateNominee(ctx, Nominee{
		ID:            uuid.NewString(),
		CategoryID:    c.ID,
		Name:          nn.Name,
		CatalogItemID: nn.CatalogItemID,
		CreatedAt:     svc.NowFunc(),
	})
}

func (svc *Service) ListNominees(ctx context.Context, categoryID string) ([]Nominee, error) {
	if _, err := svc.repo.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	return svc.repo.QueryNominees(ctx, categoryID)
}

// CastVote records the vote of a user; a user votes once per category.
func (svc *Service) CastVote(ctx context.Context, categoryID string, nv NewVote) (Vote, error) {
	nv.NomineeID = core.CleanString(nv.NomineeID)
	nv.UserID = core.CleanString(nv.UserID)
	if err := svc.validate.Struct(nv); err != nil {
		return Vote{}, err
	}

	c, err := svc.repo.GetCategory(ctx, categoryID)
	if err != nil {
		return Vote{}, err
	}
	now := svc.NowFunc()
	if !c.IsOpen(now) {
		return Vote{}, ErrVotingClosed
	}
	n, err := svc.repo.GetNominee(ctx, nv.NomineeID)
	if err != nil {
		if core.IsNotFound(err) {
			return Vote{}, core.NewFieldError("nominee_id", err)
		}
		return Vote{}, err
	}
	if n.CategoryID != c.ID {
		return Vote{}, core.NewFieldError("nominee_id", ErrNomineeNotFound)
	}

	v, err := svc.repo.CreateVote(ctx, Vote{
		ID:         uuid.NewString(),
		CategoryID: c.ID,
		NomineeID:  n.ID,
		UserID:     nv.UserID,
		CreatedAt:  now,
	})
	if err != nil {
		return Vote{}, err
	}

	if err := svc.tally.Incr(ctx, c.ID, n.ID); err != nil {
		svc.log.Warn("incrementing vote tally", "category", c.ID, "err", err)
	}
	svc.events.Publish(ctx, core.NewEvent(EventVoteCast, c.ID, v))
	return v, nil
}

// Results returns the vote counts of a category, highest first (ties by nominee name).
func (svc *Service) Results(ctx context.Context, categoryID string) (Results, error) {
	c, err := svc.repo.GetCategory(ctx, categoryID)
	if err != nil {
		return Results{}, err
	}
	nominees, err := svc.repo.QueryNominees(ctx, c.ID)
	if err != nil {
		return Results{}, errors.Wrap(err, "querying nominees")
	}

	res := Results{Category: c, Nominees: make([]Result, len(nominees))}
	counts, ok, err := svc.tally.Counts(ctx, c.ID)
	if err != nil {
		svc.log.Warn("reading vote tally", "category", c.ID, "err", err)
	}
	if ok && err == nil {
		res.FromCache = true
	} else {
		if counts, err = svc.loadTally(ctx, c.ID); counts == nil {
			return Results{}, err
		}
		if err != nil {
			svc.log.Warn("loading vote tally", "category", c.ID, "err", err)
		}
	}

	for i, n := range nominees {
		res.Nominees[i] = Result{NomineeID: n.ID, Name: n.Name, Votes: counts[n.ID]}
		res.TotalVotes += counts[n.ID]
	}
	sort.SliceStable(res.Nominees, func(i, j int) bool {
		a, b := res.Nominees[i], res.Nominees[j]
		if a.Votes != b.Votes {
			return a.Votes > b.Votes
		}
		return a.Name < b.Name
	})
	return res, nil
}

// RebuildTally reloads the tally of a category from the database.
func (svc *Service) RebuildTally(ctx context.Context, categoryID string) error {
	if _, err := svc.repo.GetCategory(ctx, categoryID); err != nil {
		return err
	}
	_, err := svc.loadTally(ctx, categoryID)
	return err
}

// loadTally copies the database counts into the tally, re-counting until both agree: a vote
// committed while loading may have its Incr dropped (tally not loaded yet) or applied on top
// of counts that already include it.
// Tally errors are returned along with the database counts; counts is nil on database errors.
func (svc *Service) loadTally(ctx context.Context, categoryID string) (map[string]int64, error) {
	counts, err := svc.repo.CountVotes(ctx, categoryID)
	if err != nil {
		return nil, errors.Wrap(err, "counting votes")
	}
	for i := 0; i < tallyLoadAttempts; i++ {
		if err := svc.tally.Load(ctx, categoryID, counts); err != nil {
			return counts, err
		}
		cached, ok, err := svc.tally.Counts(ctx, categoryID)
		if err != nil {
			return counts, err
		}
		recount, err := svc.repo.CountVotes(ctx, categoryID)
		if err != nil {
			return nil, errors.Wrap(err, "counting votes")
		}
		if ok && sameCounts(cached, recount) {
			return recount, nil
		}
		counts = recount
	}
	svc.log.Warn("vote tally did not settle", "category", categoryID)
	return counts, nil
}

func sameCounts(a, b map[string]int64) bool {
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	for k, v := range b {
		if a[k] != v {
			return false
		}
	}
	return true
}
