package award

import (
	"time"

	"github.com/sautiplus/backoffice/core"
)

type Award struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Year      int       `json:"year"`
	CreatedAt time.Time `json:"created_at"`
}

type NewAward struct {
	Title string `json:"title" validate:"required,max=256"`
	Year  int    `json:"year" validate:"gte=2000,lte=2100"`
}

// Category is voted on between OpensAt (inclusive) and ClosesAt (exclusive).
type Category struct {
	ID        string    `json:"id"`
	AwardID   string    `json:"award_id"`
	Name      string    `json:"name"`
	OpensAt   time.Time `json:"opens_at"`
	ClosesAt  time.Time `json:"closes_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (c Category) IsOpen(at time.Time) bool {
	return !at.Before(c.OpensAt) && at.Before(c.ClosesAt)
}

type NewCategory struct {
	Name     string    `json:"name" validate:"required,max=256"`
	OpensAt  time.Time `json:"opens_at" validate:"required"`
	ClosesAt time.Time `json:"closes_at" validate:"required,gtfield=OpensAt"`
}

func (nc *NewCategory) clean() {
	nc.Name = core.CleanString(nc.Name)
	nc.OpensAt = nc.OpensAt.UTC()
	nc.ClosesAt = nc.ClosesAt.UTC()
}

type Nominee struct {
	ID            string    `json:"id"`
	CategoryID    string    `json:"category_id"`
	Name          string    `json:"name"`
	CatalogItemID string    `json:"catalog_item_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type NewNominee struct {
	Name          string `json:"name" validate:"required,max=256"`
	CatalogItemID string `json:"catalog_item_id"`
}

type Vote struct {
	ID         string    `json:"id"`
	CategoryID string    `json:"category_id"`
	NomineeID  string    `json:"nominee_id"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type NewVote struct {
	NomineeID string `json:"nominee_id" validate:"required"`
	UserID    string `json:"user_id" validate:"required"`
}

type Result struct {
	NomineeID string `json:"nominee_id"`
	Name      string `json:"name"`
	Votes     int64  `json:"votes"`
}

type Results struct {
	Category   Category `json:"category"`
	TotalVotes int64    `json:"total_votes"`
	Nominees   []Result `json:"nominees"`
	FromCache  bool     `json:"-"`
}
