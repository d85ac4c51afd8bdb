// Package sqlxrepos implements the core repositories on PostgreSQL with sqlx and squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sautiplus/backoffice/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type (
	txKey struct{}

	// executor is satisfied by both *sqlx.DB and *sqlx.Tx.
	executor interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	// Transactor runs functions in a transaction carried by the context.
	Transactor struct {
		db *sqlx.DB
	}
)

var _ core.Transactor = (*Transactor)(nil) // interface compliance check

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// getExec returns the transaction carried by ctx, if any, or db.
func getExec(ctx context.Context, db *sqlx.DB) executor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// get runs a single-row select built with squirrel.
func get(ctx context.Context, db *sqlx.DB, dest interface{}, qb sq.Sqlizer) error {
	q, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return getExec(ctx, db).GetContext(ctx, dest, q, args...)
}

func selectRows(ctx context.Context, db *sqlx.DB, dest interface{}, qb sq.Sqlizer) error {
	q, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return getExec(ctx, db).SelectContext(ctx, dest, q, args...)
}

func exec(ctx context.Context, db *sqlx.DB, qb sq.Sqlizer) (int64, error) {
	q, args, err := qb.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := getExec(ctx, db).ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// uniqueViolation returns the name of the violated unique constraint, if err is one.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}

// validID reports whether id may be a primary key. Malformed ids are never found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func orderBy(qb sq.SelectBuilder, ordering []core.DBOrdering, tiebreak string) sq.SelectBuilder {
	for _, ord := range ordering {
		qb = qb.OrderBy(ord.String())
	}
	if tiebreak != "" {
		qb = qb.OrderBy(tiebreak)
	}
	return qb
}

func paginate(qb sq.SelectBuilder, page core.Page) sq.SelectBuilder {
	page.Clean()
	return qb.Limit(uint64(page.Limit)).Offset(uint64(page.Offset))
}

func ilike(val string) string {
	return "%" + val + "%"
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

// getOne selects a single R row and converts it with unboil.
func getOne[R any, T any](ctx context.Context, db *sqlx.DB, qb sq.Sqlizer, notFound error, msg string, unboil func(R) T) (T, error) {
	var r R
	if err := get(ctx, db, &r, qb); err != nil {
		var zero T
		return zero, trapNoRowsErr(err, notFound, msg)
	}
	return unboil(r), nil
}

// selectAll selects R rows and converts each with unboil.
func selectAll[R any, T any](ctx context.Context, db *sqlx.DB, qb sq.Sqlizer, msg string, unboil func(R) T) ([]T, error) {
	var rows []R
	if err := selectRows(ctx, db, &rows, qb); err != nil {
		return nil, errors.Wrap(err, msg)
	}
	res := make([]T, 0, len(rows))
	for _, r := range rows {
		res = append(res, unboil(r))
	}
	return res, nil
}

// updateOne runs an update and returns notFound when no row matched.
func updateOne(ctx context.Context, db *sqlx.DB, qb sq.UpdateBuilder, notFound error, msg string) error {
	n, err := exec(ctx, db, qb)
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func insert(ctx context.Context, db *sqlx.DB, table string, values map[string]interface{}, msg string) error {
	if _, err := exec(ctx, db, psql.Insert(table).SetMap(values)); err != nil {
		return errors.Wrap(err, msg)
	}
	return nil
}
