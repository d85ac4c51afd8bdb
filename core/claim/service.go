package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("claim not found")
	ErrItemNotFound     = core.NewNotFoundError("catalog item not found")
	ErrSubjectMismatch  = errors.New("subject kind does not match the catalog item")
	ErrAlreadyOwned     = core.NewStateError("this item is already owned")
	ErrNotOwned         = core.NewStateError("this item has no owner")
	ErrDuplicateClaim   = core.NewConflictError("you already have a pending claim on this item")
	ErrNotPending       = core.NewStateError("claim is not pending")
	ErrReviewNoteNeeded = errors.New("a note is required to reject a claim")
)

// Events
const (
	EventSubmitted = "claim.submitted"
	EventApproved  = "claim.approved"
	EventRejected  = "claim.rejected"
	EventReleased  = "claim.item.released"
)

type (
	Repository interface {
		CreateItem(ctx context.Context, item CatalogItem) (CatalogItem, error)
		GetItem(ctx context.Context, id string) (CatalogItem, error)
		LockItem(ctx context.Context, id string) (CatalogItem, error)
		UpdateItem(ctx context.Context, item CatalogItem) (CatalogItem, error)
		QueryItems(ctx context.Context, filter ItemFilter, page core.Page) ([]CatalogItem, error)

		CreateClaim(ctx context.Context, c Claim) (Claim, error)
		GetClaim(ctx context.Context, id string) (Claim, error)
		LockClaim(ctx context.Context, id string) (Claim, error)
		UpdateClaim(ctx context.Context, c Claim) (Claim, error)
		QueryClaims(ctx context.Context, filter Filter, ordering []core.DBOrdering, page core.Page) ([]Claim, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		events   core.EventPublisher
		mail     core.EmailService
		validate *validator.Validate
		appName  string
		NowFunc  func() time.Time // mockable
	}
)

var OrderingFields = []string{"created_at", "reviewed_at"}

func NewService(
	repo Repository,
	tx core.Transactor,
	events core.EventPublisher,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(events, "events"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:     repo,
		tx:       tx,
		events:   events,
		mail:     mailSvc,
		validate: validate,
		appName:  conf.AppName,
		NowFunc:  core.Now,
	}
}

// Catalog

func (svc *Service) AddItem(ctx context.Context, ni NewCatalogItem) (CatalogItem, error) {
	ni.Kind = core.CleanString(ni.Kind, true /* lower */)
	ni.Title = core.CleanString(ni.Title)
	if err := svc.validate.Struct(ni); err != nil {
		return CatalogItem{}, err
	}
	now := svc.NowFunc()
	return svc.repo.CreateItem(ctx, CatalogItem{
		ID:        uuid.NewString(),
		Kind:      ni.Kind,
		Title:     ni.Title,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) GetItem(ctx context.Context, id string) (CatalogItem, error) {
	return svc.repo.GetItem(ctx, id)
}

func (svc *Service) ListItems(ctx context.Context, filter ItemFilter, page core.Page) ([]CatalogItem, error) {
	filter.Clean()
	page.Clean()
	return svc.repo.QueryItems(ctx, filter, page)
}

// Release clears the owner of an item so that it can be claimed again.
func (svc *Service) Release(ctx context.Context, itemID string) (CatalogItem, error) {
	var item CatalogItem
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if item, err = svc.repo.LockItem(ctx, itemID); err != nil {
			return err
		}
		if !item.IsOwned() {
			return ErrNotOwned
		}
		item.OwnerID = ""
		item.UpdatedAt = svc.NowFunc()
		item, err = svc.repo.UpdateItem(ctx, item)
		return errors.Wrap(err, "updating item")
	})
	if err != nil {
		return CatalogItem{}, err
	}
	svc.events.Publish(ctx, core.NewEvent(EventReleased, item.ID, item))
	return item, nil
}

// Claims

// Submit files a claim on an unowned catalog item.
func (svc *Service) Submit(ctx context.Context, nc NewClaim) (Claim, error) {
	nc.clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Claim{}, err
	}

	var c Claim
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		// the item lock serialises claims on the same subject
		item, err := svc.repo.LockItem(ctx, nc.SubjectID)
		if err != nil {
			if core.IsNotFound(err) {
				return core.NewFieldError("subject_id", err)
			}
			return err
		}
		if item.Kind != nc.SubjectKind {
			return core.NewFieldError("subject_kind", ErrSubjectMismatch)
		}
		if item.IsOwned() {
			return ErrAlreadyOwned
		}
		pending, err := svc.repo.QueryClaims(ctx, Filter{
			Status:     StatusPending,
			SubjectID:  item.ID,
			ClaimantID: nc.ClaimantID,
		}, nil, core.Page{Limit: 1})
		if err != nil {
			return errors.Wrap(err, "querying claims")
		}
		if len(pending) > 0 {
			return ErrDuplicateClaim
		}

		c, err = svc.repo.CreateClaim(ctx, Claim{
			ID:            uuid.NewString(),
			ClaimantID:    nc.ClaimantID,
			ClaimantEmail: nc.ClaimantEmail,
			SubjectKind:   item.Kind,
			SubjectID:     item.ID,
			Evidence:      nc.Evidence,
			Status:        StatusPending,
			CreatedAt:     svc.NowFunc(),
		})
		return errors.Wrap(err, "creating claim")
	})
	if err != nil {
		return Claim{}, err
	}
	svc.events.Publish(ctx, core.NewEvent(EventSubmitted, c.SubjectID, c))
	return c, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Claim, error) {
	return svc.repo.GetClaim(ctx, id)
}

func (svc *Service) List(ctx context.Context, filter Filter, page core.Page, ordering ...core.DBOrdering) ([]Claim, error) {
	filter.Clean()
	page.Clean()
	ordering = core.FilterOrderings(ordering, OrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryClaims(ctx, filter, ordering, page)
}

// Approve grants the subject to the claimant; the other pending claims on the subject are rejected.
func (svc *Service) Approve(ctx context.Context, id, reviewerID, note string) (Claim, error) {
	var (
		c          Claim
		superseded []Claim
	)
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = svc.repo.GetClaim(ctx, id); err != nil {
			return err
		}
		// lock order: item, then claims
		item, err := svc.repo.LockItem(ctx, c.SubjectID)
		if err != nil {
			return errors.Wrap(err, "locking item")
		}
		if c, err = svc.repo.LockClaim(ctx, id); err != nil {
			return err
		}
		if c.Status != StatusPending {
			return ErrNotPending
		}
		if item.IsOwned() {
			return ErrAlreadyOwned
		}

		now := svc.NowFunc()
		item.OwnerID = c.ClaimantID
		item.UpdatedAt = now
		if _, err = svc.repo.UpdateItem(ctx, item); err != nil {
			return errors.Wrap(err, "updating item")
		}
		if c, err = svc.review(ctx, c, StatusApproved, reviewerID, note, now); err != nil {
			return err
		}

		others, err := svc.pendingClaims(ctx, item.ID)
		if err != nil {
			return err
		}
		for _, o := range others {
			if o.ID == c.ID {
				continue
			}
			rejected, err := svc.review(ctx, o, StatusRejected, reviewerID, SupersededNote, now)
			if err != nil {
				return err
			}
			superseded = append(superseded, rejected)
		}
		return nil
	})
	if err != nil {
		return Claim{}, err
	}

	evts := []core.Event{core.NewEvent(EventApproved, c.SubjectID, c)}
	for _, o := range superseded {
		evts = append(evts, core.NewEvent(EventRejected, o.SubjectID, o))
	}
	svc.events.Publish(ctx, evts...)
	svc.notify(c)
	for _, o := range superseded {
		svc.notify(o)
	}
	return c, nil
}

// pendingClaims reads every pending claim on an item, page by page, before any is reviewed.
func (svc *Service) pendingClaims(ctx context.Context, itemID string) ([]Claim, error) {
	var (
		claims []Claim
		page   = core.Page{Limit: core.MaxPageLimit}
	)
	for {
		batch, err := svc.repo.QueryClaims(ctx, Filter{Status: StatusPending, SubjectID: itemID},
			[]core.DBOrdering{{Field: "created_at", Ascending: true}}, page)
		if err != nil {
			return nil, errors.Wrap(err, "querying claims")
		}
		claims = append(claims, batch...)
		if len(batch) < page.Limit {
			return claims, nil
		}
		page.Offset += page.Limit
	}
}

// Reject declines a pending claim; `note` is required.
func (svc *Service) Reject(ctx context.Context, id, reviewerID, note string) (Claim, error) {
	if note = core.CleanString(note); note == "" {
		return Claim{}, core.NewFieldError("note", ErrReviewNoteNeeded)
	}

	var c Claim
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = svc.repo.LockClaim(ctx, id); err != nil {
			return err
		}
		if c.Status != StatusPending {
			return ErrNotPending
		}
		c, err = svc.review(ctx, c, StatusRejected, reviewerID, note, svc.NowFunc())
		return err
	})
	if err != nil {
		return Claim{}, err
	}
	svc.events.Publish(ctx, core.NewEvent(EventRejected, c.SubjectID, c))
	svc.notify(c)
	return c, nil
}

func (svc *Service) review(ctx context.Context, c Claim, status Status, reviewerID, note string, at time.Time) (Claim, error) {
	c.Status = status
	c.ReviewerID = reviewerID
	c.ReviewNote = core.CleanString(note)
	c.ReviewedAt = at
	c, err := svc.repo.UpdateClaim(ctx, c)
	return c, errors.Wrap(err, "updating claim")
}

func (svc *Service) notify(c Claim) {
	lines := []string{fmt.Sprintf("Your claim on %s %s was %s.", c.SubjectKind, c.SubjectID, c.Status)}
	if c.ReviewNote != "" {
		lines = append(lines, "Note: "+c.ReviewNote)
	}
	msg := core.NewEmailMessage("", c.ClaimantEmail, svc.appName+" - Claim "+string(c.Status), lines...)
	if msg.HasRecipients() {
		svc.mail.SendMessages(msg)
	}
}
