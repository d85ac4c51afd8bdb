package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/staff"
)

const staffTable = "staff"

var staffColumns = []string{
	"id", "name", "username", "email", "is_active", "roles", "password_hash", "created_at", "updated_at", "last_login",
}

type staffRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    null.Time      `db:"created_at"`
	UpdatedAt    null.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

type staffRepository struct {
	db *sqlx.DB
}

var _ staff.Repository = (*staffRepository)(nil) // interface compliance check

func NewStaffRepository(db *sqlx.DB) staff.Repository {
	return &staffRepository{db: db}
}

func (repo staffRepository) boil(s staff.Staff) staffRow {
	return staffRow{
		ID:           s.ID,
		Name:         s.Name,
		Username:     s.Username,
		Email:        s.Email,
		IsActive:     s.IsActive,
		Roles:        s.Roles,
		PasswordHash: s.PasswordHash,
		CreatedAt:    nullTime(s.CreatedAt),
		UpdatedAt:    nullTime(s.UpdatedAt),
		LastLogin:    nullTime(s.LastLogin),
	}
}

func (repo staffRepository) unboil(r staffRow) staff.Staff {
	return staff.Staff{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		IsActive:     r.IsActive,
		Roles:        []string(r.Roles),
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.Time,
		UpdatedAt:    r.UpdatedAt.Time,
		LastLogin:    r.LastLogin.Time,
	}
}

// trapUniqueErr maps unique violations on username/email to their domain errors.
func (repo staffRepository) trapUniqueErr(err error, msg string) error {
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case "staff_username_key":
			return staff.ErrUsernameExists
		case "staff_email_key":
			return staff.ErrEmailExists
		}
	}
	return errors.Wrap(err, msg)
}

func (repo staffRepository) CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	qb := psql.Select("username", "email").From(staffTable).
		Where(sq.Or{sq.Eq{"username": username}, sq.Eq{"email": email}}).
		Limit(2)
	if len(excludedIDs) > 0 {
		qb = qb.Where(sq.NotEq{"id": excludedIDs})
	}

	var taken []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	if err := selectRows(ctx, repo.db, &taken, qb); err != nil {
		return errors.Wrap(err, "checking staff uniqueness")
	}
	for _, t := range taken {
		if username != "" && t.Username == username {
			return staff.ErrUsernameExists
		}
	}
	for _, t := range taken {
		if email != "" && t.Email == email {
			return staff.ErrEmailExists
		}
	}
	return nil
}

func (repo staffRepository) CreateStaff(ctx context.Context, s staff.Staff) (staff.Staff, error) {
	s.ID = uuid.NewString()
	r := repo.boil(s)
	qb := psql.Insert(staffTable).Columns(staffColumns...).
		Values(r.ID, r.Name, r.Username, r.Email, r.IsActive, r.Roles, r.PasswordHash, r.CreatedAt, r.UpdatedAt, r.LastLogin)
	if _, err := exec(ctx, repo.db, qb); err != nil {
		return staff.Staff{}, repo.trapUniqueErr(err, "inserting staff")
	}
	return s, nil
}

func (repo staffRepository) QueryStaff(ctx context.Context, filter staff.QueryFilter, ordering []core.DBOrdering) ([]staff.Staff, error) {
	qb := psql.Select(staffColumns...).From(staffTable)

	if filter.Search != "" {
		val := ilike(filter.Search)
		qb = qb.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"username": val}, sq.ILike{"email": val}})
	}
	if len(filter.Roles) > 0 {
		qb = qb.Where("roles && ?", pq.StringArray(filter.Roles))
	}
	if filter.IsActive != nil {
		qb = qb.Where(sq.Eq{"is_active": *filter.IsActive})
	}
	qb = orderBy(qb, ordering, "id")

	var rows []staffRow
	if err := selectRows(ctx, repo.db, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "selecting staff")
	}
	res := make([]staff.Staff, 0, len(rows))
	for _, r := range rows {
		res = append(res, repo.unboil(r))
	}
	return res, nil
}

func (repo staffRepository) GetStaff(ctx context.Context, filter staff.GetFilter) (staff.Staff, error) {
	qb := psql.Select(staffColumns...).From(staffTable)
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return staff.Staff{}, staff.ErrNotFound
		}
		qb = qb.Where(sq.Eq{"id": filter.ID})
	case filter.Username != "":
		qb = qb.Where(sq.Eq{"username": filter.Username})
	case filter.Email != "":
		qb = qb.Where(sq.Eq{"email": filter.Email})
	case filter.UsernameOrEmail != "":
		qb = qb.Where(sq.Or{sq.Eq{"username": filter.UsernameOrEmail}, sq.Eq{"email": filter.UsernameOrEmail}})
	default:
		return staff.Staff{}, staff.ErrNotFound
	}

	var r staffRow
	if err := get(ctx, repo.db, &r, qb.Limit(1)); err != nil {
		return staff.Staff{}, trapNoRowsErr(err, staff.ErrNotFound, "selecting staff")
	}
	return repo.unboil(r), nil
}

func (repo staffRepository) UpdateStaff(ctx context.Context, s staff.Staff) (staff.Staff, error) {
	r := repo.boil(s)
	qb := psql.Update(staffTable).SetMap(map[string]interface{}{
		"name":          r.Name,
		"username":      r.Username,
		"email":         r.Email,
		"is_active":     r.IsActive,
		"roles":         r.Roles,
		"password_hash": r.PasswordHash,
		"updated_at":    r.UpdatedAt,
		"last_login":    r.LastLogin,
	}).Where(sq.Eq{"id": r.ID})

	n, err := exec(ctx, repo.db, qb)
	if err != nil {
		return staff.Staff{}, repo.trapUniqueErr(err, "updating staff")
	}
	if n == 0 {
		return staff.Staff{}, staff.ErrNotFound
	}
	return s, nil
}

func (repo staffRepository) DeleteStaff(ctx context.Context, ids ...string) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	n, err := exec(ctx, repo.db, psql.Delete(staffTable).Where(sq.Eq{"id": valid}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting staff")
	}
	return int(n), nil
}
