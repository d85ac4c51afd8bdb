package claim

import (
	"time"

	"github.com/sautiplus/backoffice/core"
)

// Subject kinds
const (
	KindArtist = "artist"
	KindSong   = "song"
	KindAlbum  = "album"
)

var AllKinds = []string{KindArtist, KindSong, KindAlbum}

// CatalogItem is a claimable catalogue entry (an artist profile, a song or an album).
type CatalogItem struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"owner_id,omitempty"` // empty: unclaimed
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ci CatalogItem) IsOwned() bool { return ci.OwnerID != "" }

type NewCatalogItem struct {
	Kind  string `json:"kind" validate:"required,subjecttype"`
	Title string `json:"title" validate:"required,max=256"`
}

type ItemFilter struct {
	Kind   string `query:"kind"`
	Search string `query:"search"`
	Owned  *bool  `query:"owned"`
}

func (f *ItemFilter) Clean() {
	f.Kind = core.CleanString(f.Kind, true /* lower */)
	f.Search = core.CleanString(f.Search)
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// SupersededNote is the review note of the pending claims rejected when a competing claim is approved.
const SupersededNote = "superseded by approved claim"

// Claim is a request by a platform user to be recognised as the owner of a catalog item.
type Claim struct {
	ID            string    `json:"id"`
	ClaimantID    string    `json:"claimant_id"`
	ClaimantEmail string    `json:"claimant_email,omitempty"`
	SubjectKind   string    `json:"subject_kind"`
	SubjectID     string    `json:"subject_id"`
	Evidence      string    `json:"evidence"`
	Status        Status    `json:"status"`
	ReviewerID    string    `json:"reviewer_id,omitempty"`
	ReviewNote    string    `json:"review_note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ReviewedAt    time.Time `json:"reviewed_at"`
}

type NewClaim struct {
	ClaimantID    string `json:"claimant_id" validate:"required"`
	ClaimantEmail string `json:"claimant_email" validate:"omitempty,email"`
	SubjectKind   string `json:"subject_kind" validate:"required,subjecttype"`
	SubjectID     string `json:"subject_id" validate:"required"`
	Evidence      string `json:"evidence" validate:"required,max=4096"`
}

func (nc *NewClaim) clean() {
	nc.ClaimantID = core.CleanString(nc.ClaimantID)
	nc.ClaimantEmail = core.CleanString(nc.ClaimantEmail, true /* lower */)
	nc.SubjectKind = core.CleanString(nc.SubjectKind, true /* lower */)
	nc.SubjectID = core.CleanString(nc.SubjectID)
	nc.Evidence = core.CleanString(nc.Evidence)
}

type Filter struct {
	Status      Status `query:"status"`
	SubjectKind string `query:"subject_kind"`
	SubjectID   string `query:"subject_id"`
	ClaimantID  string `query:"claimant_id"`
}

func (f *Filter) Clean() {
	f.SubjectKind = core.CleanString(f.SubjectKind, true /* lower */)
	f.SubjectID = core.CleanString(f.SubjectID)
	f.ClaimantID = core.CleanString(f.ClaimantID)
	switch f.Status {
	case StatusPending, StatusApproved, StatusRejected:
	default:
		f.Status = ""
	}
}
