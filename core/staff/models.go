package staff

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/sautiplus/backoffice/core"
)

// Roles
const (
	RoleSuper     = "admin:super"
	RoleFinance   = "admin:finance"   // SACCO & credits
	RoleEvents    = "admin:events"    // events, tickets & awards
	RoleModerator = "admin:moderator" // claims
)

var (
	AllRoles = []string{RoleSuper, RoleFinance, RoleEvents, RoleModerator}

	rolePriorities = map[string]int{
		RoleSuper:     30,
		RoleFinance:   20,
		RoleEvents:    20,
		RoleModerator: 10,
	}

	Roles = []Role{
		{Name: "Moderator", Value: RoleModerator},
		{Name: "Events Manager", Value: RoleEvents},
		{Name: "Finance Officer", Value: RoleFinance},
		{Name: "Super Admin", Value: RoleSuper},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Staff struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (s *Staff) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.PasswordHash = hash
	return nil
}

func (s *Staff) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(s.PasswordHash, []byte(pwd))
}

// HasAnyRole reports whether s holds one of roles. Super admins hold every role.
func (s *Staff) HasAnyRole(roles ...string) bool {
	return HasAnyRole(s.Roles, roles...)
}

func (s *Staff) IsSuper() bool {
	return HasAnyRole(s.Roles, RoleSuper)
}

// HasAnyRole reports whether granted contains one of wanted. RoleSuper grants everything.
func HasAnyRole(granted []string, wanted ...string) bool {
	for _, g := range granted {
		if g == RoleSuper {
			return true
		}
		for _, w := range wanted {
			if g == w {
				return true
			}
		}
	}
	return len(wanted) == 0 && len(granted) > 0
}

// NewStaff contains information needed to create a new Staff member.
type NewStaff struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"required,min=1,allroles"`
}

func (ns *NewStaff) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Username = core.CleanString(ns.Username, true /* lower */)
	ns.Email = core.CleanString(ns.Email, true /* lower */)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, ns.Username, ns.Email)
}

// UpdateStaff defines what information may be provided to modify an existing Staff member.
type UpdateStaff struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (us *UpdateStaff) Validate(ctx context.Context, orig Staff, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = orig.Name
	}
	if uname := core.CleanString(us.Username, true /* lower */); uname != "" {
		us.Username = uname
	} else {
		us.Username = orig.Username
	}
	if email := core.CleanString(us.Email, true /* lower */); email != "" {
		us.Email = email
	} else {
		us.Email = orig.Email
	}

	if err := validate.Struct(us); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, us.Username, us.Email, orig)
}

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	IsActive *bool    `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	roles := qf.Roles[:0]
	for _, r := range qf.Roles {
		if r = core.CleanString(r, true); r != "" {
			roles = append(roles, r)
		}
	}
	qf.Roles = roles
}

// GetFilter selects a single Staff member; the first non-empty field wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}

func (gf GetFilter) isEmpty() bool {
	return strings.TrimSpace(gf.ID+gf.Username+gf.Email+gf.UsernameOrEmail) == ""
}
