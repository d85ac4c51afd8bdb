package staff

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core"
)

var (
	ErrInvalidResetToken = errors.New("the password reset link is invalid")
	ErrResetTokenExpired = errors.New("the password reset link has expired")

	resetSalt  = []byte("sautiplus.backoffice.staff.reset")
	base32NoPd = base32.StdEncoding.WithPadding(base32.NoPadding)
	dayZero    = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// resetTokens makes single-use password reset tokens: "<base32 day number>-<signature>".
// The signature covers the password hash & last login, so a token stops working once either changes.
type resetTokens struct {
	secretKey string
	timeout   time.Duration
}

func (rt resetTokens) make(s Staff, now time.Time) string {
	return rt.makeWithDay(s, daysSinceZero(now))
}

func (rt resetTokens) verify(s Staff, token string, now time.Time) error {
	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return ErrInvalidResetToken
	}
	data, err := base32NoPd.DecodeString(parts[0])
	if err != nil {
		return ErrInvalidResetToken
	}
	day, err := strconv.Atoi(string(data))
	if err != nil {
		return ErrInvalidResetToken
	}

	if subtle.ConstantTimeCompare([]byte(rt.makeWithDay(s, day)), []byte(token)) == 0 {
		return ErrInvalidResetToken
	}
	if daysSinceZero(now)-day > int(rt.timeout/(24*time.Hour)) {
		return ErrResetTokenExpired
	}
	return nil
}

func (rt resetTokens) makeWithDay(s Staff, day int) string {
	var val bytes.Buffer
	val.WriteString(s.ID)
	val.Write(s.PasswordHash)
	if !s.LastLogin.IsZero() {
		val.WriteString(s.LastLogin.UTC().Format(time.RFC3339Nano))
	}
	val.WriteString(strconv.Itoa(day))

	key := sha256.Sum256(append(append([]byte(nil), resetSalt...), rt.secretKey...))
	h := hmac.New(sha256.New, key[:])
	h.Write(val.Bytes())
	return base32NoPd.EncodeToString([]byte(strconv.Itoa(day))) + "-" + base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func daysSinceZero(t time.Time) int {
	return int(t.Sub(dayZero) / (24 * time.Hour))
}

// EncodeUID encodes a staff ID for use in a password reset link.
func EncodeUID(s Staff) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s.ID))
}

// RequestPasswordReset emails a reset link to the active staff member owning `email`.
// Unknown or deactivated accounts are silently ignored.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	s, err := svc.repo.GetStaff(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		if core.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "getting staff by email")
	}
	if !s.IsActive {
		return nil
	}

	link := fmt.Sprintf("%s/password-reset/%s/%s", svc.frontend, EncodeUID(s), svc.tokens.make(s, svc.NowFunc()))
	svc.mail.SendMessages(core.NewEmailMessage(s.Name, s.Email, svc.appName+" - Password reset",
		fmt.Sprintf("Hello %s,", s.Name),
		"Follow this link to choose a new password:",
		link,
		fmt.Sprintf("The link works once and expires in %d day(s).", int(svc.tokens.timeout/(24*time.Hour))),
	))
	return nil
}

// ConfirmPasswordReset sets a new password for the staff member identified by `uid` when `token` is valid.
func (svc *Service) ConfirmPasswordReset(ctx context.Context, uid, token, pwd string) (Staff, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return Staff{}, core.NewFieldError("token", ErrInvalidResetToken)
	}
	s, err := svc.repo.GetStaff(ctx, GetFilter{ID: string(id)})
	if err != nil {
		if core.IsNotFound(err) {
			return Staff{}, core.NewFieldError("token", ErrInvalidResetToken)
		}
		return Staff{}, errors.Wrap(err, "getting staff by ID")
	}
	if !s.IsActive {
		return Staff{}, ErrAccountDeactivated
	}
	if err := svc.tokens.verify(s, token, svc.NowFunc()); err != nil {
		return Staff{}, core.NewFieldError("token", err)
	}
	return svc.ResetPassword(ctx, s, pwd)
}
