package inmemdb

import (
	"context"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/award"
)

type awardRepository struct {
	db *DB
}

var _ award.Repository = (*awardRepository)(nil)

func NewAwardRepository(db *DB) award.Repository {
	return &awardRepository{db: db}
}

func awardsTable(st *state) map[string]award.Award        { return st.awards }
func categoriesTable(st *state) map[string]award.Category { return st.categories }
func nomineesTable(st *state) map[string]award.Nominee    { return st.nominees }

func (repo *awardRepository) CreateAward(ctx context.Context, a award.Award) (award.Award, error) {
	return put(ctx, repo.db, awardsTable, a.ID, a, false, nil)
}

func (repo *awardRepository) GetAward(_ context.Context, id string) (award.Award, error) {
	return get(repo.db, awardsTable, id, award.ErrAwardNotFound)
}

func (repo *awardRepository) QueryAwards(_ context.Context, page core.Page) (res []award.Award, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.awards, nil)
	})
	orderBy(res, []core.DBOrdering{{Field: "year"}, {Field: "title", Ascending: true}},
		func(a award.Award, field string) interface{} {
			if field == "year" {
				return a.Year
			}
			return a.Title
		},
		func(a award.Award) string { return a.ID })
	return paginate(res, page), nil
}

func (repo *awardRepository) CreateCategory(ctx context.Context, c award.Category) (award.Category, error) {
	return put(ctx, repo.db, categoriesTable, c.ID, c, false, nil)
}

func (repo *awardRepository) GetCategory(_ context.Context, id string) (award.Category, error) {
	return get(repo.db, categoriesTable, id, award.ErrCategoryNotFound)
}

func (repo *awardRepository) QueryCategories(_ context.Context, awardID string) (res []award.Category, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.categories, func(c award.Category) bool { return c.AwardID == awardID })
	})
	orderBy(res, []core.DBOrdering{{Field: "name", Ascending: true}},
		func(c award.Category, _ string) interface{} { return c.Name },
		func(c award.Category) string { return c.ID })
	return res, nil
}

func (repo *awardRepository) CreateNominee(ctx context.Context, n award.Nominee) (award.Nominee, error) {
	return put(ctx, repo.db, nomineesTable, n.ID, n, false, nil)
}

func (repo *awardRepository) GetNominee(_ context.Context, id string) (award.Nominee, error) {
	return get(repo.db, nomineesTable, id, award.ErrNomineeNotFound)
}

func (repo *awardRepository) QueryNominees(_ context.Context, categoryID string) (res []award.Nominee, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.nominees, func(n award.Nominee) bool { return n.CategoryID == categoryID })
	})
	orderBy(res, []core.DBOrdering{{Field: "name", Ascending: true}},
		func(n award.Nominee, _ string) interface{} { return n.Name },
		func(n award.Nominee) string { return n.ID })
	return res, nil
}

func (repo *awardRepository) CreateVote(ctx context.Context, v award.Vote) (award.Vote, error) {
	err := repo.db.write(ctx, func(st *state) error {
		for _, other := range st.votes {
			if other.CategoryID == v.CategoryID && other.UserID == v.UserID {
				return award.ErrAlreadyVoted
			}
		}
		st.votes[v.ID] = v
		return nil
	})
	return v, err
}

func (repo *awardRepository) CountVotes(_ context.Context, categoryID string) (map[string]int64, error) {
	counts := make(map[string]int64)
	repo.db.read(func(st *state) {
		for _, v := range st.votes {
			if v.CategoryID == categoryID {
				counts[v.NomineeID]++
			}
		}
	})
	return counts, nil
}
