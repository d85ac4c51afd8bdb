package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core"
)

const (
	orderingParam = "ordering"
	limitParam    = "limit"
	offsetParam   = "offset"
	dateLayout    = "2006-01-02"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses `?ordering=field,-field`; a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPage reads `limit` & `offset`, ignoring values that are not numbers.
func bindPage(ctx echo.Context) core.Page {
	var page core.Page
	if n, err := strconv.Atoi(ctx.QueryParam(limitParam)); err == nil {
		page.Limit = n
	}
	if n, err := strconv.Atoi(ctx.QueryParam(offsetParam)); err == nil {
		page.Offset = n
	}
	page.Clean()
	return page
}

// queryTime parses an RFC 3339 timestamp or a date (midnight UTC).
func queryTime(ctx echo.Context, name string) (time.Time, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, core.NewFieldError(name, errInvalidTime)
	}
	return t, nil
}

// queryTimeRange binds `from` (inclusive) & `to` (exclusive).
func queryTimeRange(ctx echo.Context) (from, to time.Time, err error) {
	if from, err = queryTime(ctx, "from"); err != nil {
		return
	}
	to, err = queryTime(ctx, "to")
	return
}

// queryBool returns nil when the param is missing or not a boolean.
func queryBool(ctx echo.Context, name string) *bool {
	b, err := strconv.ParseBool(ctx.QueryParam(name))
	if err != nil {
		return nil
	}
	return &b
}

// queryList accepts repeated params (`?id=1&id=2`) and comma separated values.
func queryList(ctx echo.Context, name string) []string {
	var out []string
	for _, val := range ctx.QueryParams()[name] {
		for _, s := range strings.Split(val, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// bindBody decodes the request body into dst. Bad payloads are HTTP 400 errors.
func bindBody(ctx echo.Context, dst interface{}) error {
	return errors.Wrapf(ctx.Bind(dst), "binding to %T", dst)
}
