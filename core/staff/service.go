package staff

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core"
)

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("staff member not found")
	ErrEmailExists          = errors.New("a staff member with this email already exists")
	ErrUsernameExists       = errors.New("a staff member with this username already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountDeactivated   = core.NewStateError("this account is deactivated")
	ErrCannotDeleteSelf     = core.NewStateError("you cannot delete your own account")
	ErrRolePriorityTooHigh  = errors.New("you cannot grant a role higher than your own")
	ErrPasswordPolicyFailed = errors.New("password does not satisfy the password policy")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists when taken by someone not in excludedIDs.
		CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error
		CreateStaff(ctx context.Context, s Staff) (Staff, error)
		// QueryStaff applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Staff.Name, Staff.Username or Staff.Email.
		QueryStaff(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Staff, error)
		GetStaff(ctx context.Context, filter GetFilter) (Staff, error)
		UpdateStaff(ctx context.Context, s Staff) (Staff, error)
		DeleteStaff(ctx context.Context, ids ...string) (int, error)
	}

	Service struct {
		repo     Repository
		mail     core.EmailService
		validate *validator.Validate
		tokens   resetTokens
		appName  string
		frontend string
		NowFunc  func() time.Time // mockable
	}
)

func NewService(repo Repository, mailSvc core.EmailService, validate *validator.Validate, conf *core.Config) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:     repo,
		mail:     mailSvc,
		validate: validate,
		tokens:   resetTokens{secretKey: conf.SecretKey, timeout: conf.PasswordResetTimeoutDelta},
		appName:  conf.AppName,
		frontend: strings.TrimRight(conf.FrontendBaseURL, "/"),
		NowFunc:  core.Now,
	}
}

// OrderingFields lists the fields staff lists can be ordered by.
var OrderingFields = []string{"name", "username", "email", "created_at", "last_login"}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, excluded ...Staff) error {
	ids := make([]string, len(excluded))
	for i, s := range excluded {
		ids[i] = s.ID
	}

	if err := svc.repo.CheckUniqueness(ctx, uname, email, ids...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// CheckGrant makes sure `granter` does not hand out roles above their own priority.
func CheckGrant(granter Staff, roles []string) error {
	if granter.IsSuper() {
		return nil
	}
	if MaxRolePriority(roles) > MaxRolePriority(granter.Roles) {
		return core.NewFieldError("roles", ErrRolePriorityTooHigh)
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewStaff) (Staff, error) {
	if err := ns.Validate(ctx, svc.validate, svc); err != nil {
		return Staff{}, err
	}

	now := svc.NowFunc()
	s := Staff{
		Name:      ns.Name,
		Username:  ns.Username,
		Email:     ns.Email,
		IsActive:  true,
		Roles:     ns.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.Username == "" {
		s.Username = usernameFromEmail(s.Email)
	}
	if err := s.SetPassword(ns.Password); err != nil {
		return Staff{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateStaff(ctx, s)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Staff, error) {
	filter.Clean()
	ordering = core.FilterOrderings(ordering, OrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	return svc.repo.QueryStaff(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Staff, error) {
	return svc.repo.GetStaff(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (Staff, error) {
	return svc.repo.GetStaff(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) Update(ctx context.Context, orig Staff, us UpdateStaff) (Staff, error) {
	if err := us.Validate(ctx, orig, svc.validate, svc); err != nil {
		return Staff{}, err
	}

	s := orig
	s.Name = us.Name
	s.Username = us.Username
	s.Email = us.Email
	s.UpdatedAt = svc.NowFunc()
	if us.Roles != nil {
		s.Roles = us.Roles
	}
	if us.IsActive != nil {
		s.IsActive = *us.IsActive
	}
	if us.Password != "" {
		if err := s.SetPassword(us.Password); err != nil {
			return Staff{}, errors.Wrap(err, "hashing password")
		}
	}
	return svc.repo.UpdateStaff(ctx, s)
}

// Delete removes staff members by ID. `by` cannot delete their own account.
func (svc *Service) Delete(ctx context.Context, by Staff, ids ...string) (int, error) {
	for _, id := range ids {
		if id == by.ID {
			return 0, ErrCannotDeleteSelf
		}
	}
	return svc.repo.DeleteStaff(ctx, ids...)
}

func (svc *Service) SetLastLogin(ctx context.Context, s Staff) (Staff, error) {
	s.LastLogin = svc.NowFunc()
	return svc.repo.UpdateStaff(ctx, s)
}

// Authenticate checks the credentials of a staff member and records the login.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (Staff, error) {
	s, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if core.IsNotFound(err) {
			return Staff{}, ErrInvalidCredentials
		}
		return Staff{}, err
	}
	if err := s.CheckPassword(pwd); err != nil {
		return Staff{}, ErrInvalidCredentials
	}
	if !s.IsActive {
		return Staff{}, ErrAccountDeactivated
	}
	return svc.SetLastLogin(ctx, s)
}

// ResetPassword sets a new password after checking it against the password policy.
func (svc *Service) ResetPassword(ctx context.Context, s Staff, pwd string) (Staff, error) {
	if msg := CheckPasswordPolicy(pwd, s.Name, s.Username, s.Email); msg != "" {
		return Staff{}, core.NewFieldError("password", errors.Wrap(ErrPasswordPolicyFailed, msg))
	}
	if err := s.SetPassword(pwd); err != nil {
		return Staff{}, errors.Wrap(err, "hashing password")
	}
	s.UpdatedAt = svc.NowFunc()
	return svc.repo.UpdateStaff(ctx, s)
}

func usernameFromEmail(email string) string {
	local := strings.SplitN(email, "@", 2)[0]
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return '_'
	}, local)
}
