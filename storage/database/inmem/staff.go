package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/staff"
)

type staffRepository struct {
	db *DB
}

var _ staff.Repository = (*staffRepository)(nil)

func NewStaffRepository(db *DB) staff.Repository {
	return &staffRepository{db: db}
}

func (repo *staffRepository) CheckUniqueness(_ context.Context, username, email string, excludedIDs ...string) (err error) {
	excluded := make(map[string]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}

	repo.db.read(func(st *state) {
		for _, s := range st.staff {
			if excluded[s.ID] {
				continue
			}
			if username != "" && s.Username == username {
				err = staff.ErrUsernameExists
				return
			}
			if email != "" && s.Email == email {
				err = staff.ErrEmailExists
				return
			}
		}
	})
	return err
}

func (repo *staffRepository) CreateStaff(ctx context.Context, s staff.Staff) (staff.Staff, error) {
	err := repo.db.write(ctx, func(st *state) error {
		for _, other := range st.staff {
			if other.Username == s.Username {
				return staff.ErrUsernameExists
			}
			if other.Email == s.Email {
				return staff.ErrEmailExists
			}
		}
		s.ID = uuid.NewString()
		st.staff[s.ID] = s
		return nil
	})
	if err != nil {
		return staff.Staff{}, err
	}
	return s, nil
}

func (repo *staffRepository) QueryStaff(_ context.Context, filter staff.QueryFilter, ordering []core.DBOrdering) (res []staff.Staff, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.staff, func(s staff.Staff) bool {
			if filter.Search != "" &&
				!containsFold(s.Name, filter.Search) &&
				!containsFold(s.Username, filter.Search) &&
				!containsFold(s.Email, filter.Search) {
				return false
			}
			if len(filter.Roles) > 0 && !hasAnyOf(s.Roles, filter.Roles) {
				return false
			}
			return filter.IsActive == nil || s.IsActive == *filter.IsActive
		})
	})
	orderBy(res, ordering, staffField, func(s staff.Staff) string { return s.ID })
	return res, nil
}

func staffField(s staff.Staff, field string) interface{} {
	switch field {
	case "username":
		return s.Username
	case "email":
		return s.Email
	case "created_at":
		return s.CreatedAt
	case "last_login":
		return s.LastLogin
	}
	return s.Name
}

func hasAnyOf(granted, wanted []string) bool {
	for _, g := range granted {
		for _, w := range wanted {
			if g == w {
				return true
			}
		}
	}
	return false
}

func (repo *staffRepository) GetStaff(_ context.Context, filter staff.GetFilter) (s staff.Staff, err error) {
	err = staff.ErrNotFound
	repo.db.read(func(st *state) {
		if filter.ID != "" {
			if found, ok := st.staff[filter.ID]; ok {
				s, err = found, nil
			}
			return
		}
		for _, found := range st.staff {
			if (filter.Username != "" && found.Username == filter.Username) ||
				(filter.Email != "" && found.Email == filter.Email) ||
				(filter.UsernameOrEmail != "" && (found.Username == filter.UsernameOrEmail || found.Email == filter.UsernameOrEmail)) {
				s, err = found, nil
				return
			}
		}
	})
	return s, err
}

func (repo *staffRepository) UpdateStaff(ctx context.Context, s staff.Staff) (staff.Staff, error) {
	err := repo.db.write(ctx, func(st *state) error {
		if _, ok := st.staff[s.ID]; !ok {
			return staff.ErrNotFound
		}
		st.staff[s.ID] = s
		return nil
	})
	if err != nil {
		return staff.Staff{}, err
	}
	return s, nil
}

func (repo *staffRepository) DeleteStaff(ctx context.Context, ids ...string) (n int, err error) {
	err = repo.db.write(ctx, func(st *state) error {
		for _, id := range ids {
			if _, ok := st.staff[id]; ok {
				delete(st.staff, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
