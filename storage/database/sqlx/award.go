package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/award"
)

const (
	awardTable         = "award_awards"
	awardCategoryTable = "award_categories"
	awardNomineeTable  = "award_nominees"
	awardVoteTable     = "award_votes"
)

var (
	awardColumns         = []string{"id", "title", "year", "created_at"}
	awardCategoryColumns = []string{"id", "award_id", "name", "opens_at", "closes_at", "created_at"}
	awardNomineeColumns  = []string{"id", "category_id", "name", "catalog_item_id", "created_at"}
)

type (
	awardRow struct {
		ID        string    `db:"id"`
		Title     string    `db:"title"`
		Year      int       `db:"year"`
		CreatedAt time.Time `db:"created_at"`
	}

	awardCategoryRow struct {
		ID        string    `db:"id"`
		AwardID   string    `db:"award_id"`
		Name      string    `db:"name"`
		OpensAt   time.Time `db:"opens_at"`
		ClosesAt  time.Time `db:"closes_at"`
		CreatedAt time.Time `db:"created_at"`
	}

	awardNomineeRow struct {
		ID            string      `db:"id"`
		CategoryID    string      `db:"category_id"`
		Name          string      `db:"name"`
		CatalogItemID null.String `db:"catalog_item_id"`
		CreatedAt     time.Time   `db:"created_at"`
	}
)

func unboilAward(r awardRow) award.Award               { return award.Award(r) }
func unboilCategory(r awardCategoryRow) award.Category { return award.Category(r) }

func (r awardNomineeRow) unboil() award.Nominee {
	return award.Nominee{
		ID:            r.ID,
		CategoryID:    r.CategoryID,
		Name:          r.Name,
		CatalogItemID: r.CatalogItemID.String,
		CreatedAt:     r.CreatedAt,
	}
}

type awardRepository struct {
	db *sqlx.DB
}

var _ award.Repository = (*awardRepository)(nil) // interface compliance check

func NewAwardRepository(db *sqlx.DB) award.Repository {
	return &awardRepository{db: db}
}

func (repo awardRepository) CreateAward(ctx context.Context, a award.Award) (award.Award, error) {
	err := insert(ctx, repo.db, awardTable, map[string]interface{}{
		"id":         a.ID,
		"title":      a.Title,
		"year":       a.Year,
		"created_at": a.CreatedAt.UTC(),
	}, "inserting award")
	return a, err
}

func (repo awardRepository) GetAward(ctx context.Context, id string) (award.Award, error) {
	if !validID(id) {
		return award.Award{}, award.ErrAwardNotFound
	}
	qb := selectByID(awardTable, awardColumns, id, false)
	return getOne(ctx, repo.db, qb, award.ErrAwardNotFound, "selecting award", unboilAward)
}

func (repo awardRepository) QueryAwards(ctx context.Context, page core.Page) ([]award.Award, error) {
	qb := psql.Select(awardColumns...).From(awardTable).OrderBy("year DESC", "title", "id")
	return selectAll(ctx, repo.db, paginate(qb, page), "selecting awards", unboilAward)
}

func (repo awardRepository) CreateCategory(ctx context.Context, c award.Category) (award.Category, error) {
	err := insert(ctx, repo.db, awardCategoryTable, map[string]interface{}{
		"id":         c.ID,
		"award_id":   c.AwardID,
		"name":       c.Name,
		"opens_at":   c.OpensAt.UTC(),
		"closes_at":  c.ClosesAt.UTC(),
		"created_at": c.CreatedAt.UTC(),
	}, "inserting category")
	return c, err
}

func (repo awardRepository) GetCategory(ctx context.Context, id string) (award.Category, error) {
	if !validID(id) {
		return award.Category{}, award.ErrCategoryNotFound
	}
	qb := selectByID(awardCategoryTable, awardCategoryColumns, id, false)
	return getOne(ctx, repo.db, qb, award.ErrCategoryNotFound, "selecting category", unboilCategory)
}

func (repo awardRepository) QueryCategories(ctx context.Context, awardID string) ([]award.Category, error) {
	if !validID(awardID) {
		return nil, nil
	}
	qb := psql.Select(awardCategoryColumns...).From(awardCategoryTable).
		Where(sq.Eq{"award_id": awardID}).
		OrderBy("name", "id")
	return selectAll(ctx, repo.db, qb, "selecting categories", unboilCategory)
}

func (repo awardRepository) CreateNominee(ctx context.Context, n award.Nominee) (award.Nominee, error) {
	err := insert(ctx, repo.db, awardNomineeTable, map[string]interface{}{
		"id":              n.ID,
		"category_id":     n.CategoryID,
		"name":            n.Name,
		"catalog_item_id": nullString(n.CatalogItemID),
		"created_at":      n.CreatedAt.UTC(),
	}, "inserting nominee")
	return n, err
}

func (repo awardRepository) GetNominee(ctx context.Context, id string) (award.Nominee, error) {
	if !validID(id) {
		return award.Nominee{}, award.ErrNomineeNotFound
	}
	qb := selectByID(awardNomineeTable, awardNomineeColumns, id, false)
	return getOne(ctx, repo.db, qb, award.ErrNomineeNotFound, "selecting nominee", awardNomineeRow.unboil)
}

func (repo awardRepository) QueryNominees(ctx context.Context, categoryID string) ([]award.Nominee, error) {
	if !validID(categoryID) {
		return nil, nil
	}
	qb := psql.Select(awardNomineeColumns...).From(awardNomineeTable).
		Where(sq.Eq{"category_id": categoryID}).
		OrderBy("name", "id")
	return selectAll(ctx, repo.db, qb, "selecting nominees", awardNomineeRow.unboil)
}

func (repo awardRepository) CreateVote(ctx context.Context, v award.Vote) (award.Vote, error) {
	err := insert(ctx, repo.db, awardVoteTable, map[string]interface{}{
		"id":          v.ID,
		"category_id": v.CategoryID,
		"nominee_id":  v.NomineeID,
		"user_id":     v.UserID,
		"created_at":  v.CreatedAt.UTC(),
	}, "inserting vote")
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "award_votes_one_per_category" {
			return award.Vote{}, award.ErrAlreadyVoted
		}
		return award.Vote{}, err
	}
	return v, nil
}

func (repo awardRepository) CountVotes(ctx context.Context, categoryID string) (map[string]int64, error) {
	counts := make(map[string]int64)
	if !validID(categoryID) {
		return counts, nil
	}

	var rows []struct {
		NomineeID string `db:"nominee_id"`
		Votes     int64  `db:"votes"`
	}
	qb := psql.Select("nominee_id", "COUNT(*) AS votes").From(awardVoteTable).
		Where(sq.Eq{"category_id": categoryID}).
		GroupBy("nominee_id")
	if err := selectRows(ctx, repo.db, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "counting votes")
	}
	for _, r := range rows {
		counts[r.NomineeID] = r.Votes
	}
	return counts, nil
}
