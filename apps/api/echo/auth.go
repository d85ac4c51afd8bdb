package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/staff"
)

const (
	tokenContextKey = "staffToken"
	staffContextKey = "staff"
	tokenAudience   = "Back-office"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	Roles        []string `json:"roles,omitempty"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

// NewClaims returns the claims of a staff member token.
// origIat is the issue time of the first token of the session (refreshes keep it).
func NewClaims(s staff.Staff, conf *core.Config, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   s.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     s.Username,
		Email:        s.Email,
		Roles:        s.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the staff Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextStaff loads the authenticated staff member, once per request.
func getContextStaff(ctx echo.Context, svc *staff.Service) (staff.Staff, error) {
	if s, ok := ctx.Get(staffContextKey).(staff.Staff); ok {
		return s, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return staff.Staff{}, err
	}
	s, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if core.IsNotFound(err) {
			return staff.Staff{}, errUnauthorized
		}
		return staff.Staff{}, errors.Wrap(err, "finding staff by ID")
	}
	if !s.IsActive {
		return staff.Staff{}, errAccountDeactivated
	}
	ctx.Set(staffContextKey, s)
	return s, nil
}

func authenticate(ctx echo.Context, svc *staff.Service, conf *core.Config, uname, pwd string) (string, error) {
	s, err := svc.Authenticate(ctx.Request().Context(), uname, pwd)
	if err != nil {
		switch errors.Cause(err) {
		case staff.ErrInvalidCredentials:
			return "", errAuthenticationFailed
		case staff.ErrAccountDeactivated:
			return "", errAccountDeactivated
		}
		return "", errors.Wrap(err, "authenticating")
	}
	return GenerateToken(NewClaims(s, conf), conf.SecretKey)
}

func refreshToken(ctx echo.Context, svc *staff.Service, conf *core.Config) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}

	// fails when the staff member is gone or deactivated
	s, err := getContextStaff(ctx, svc)
	if err != nil {
		return "", err
	}

	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := GenerateToken(NewClaims(s, conf, claims.OrigIssuedAt), conf.SecretKey)
	return token, errors.Wrap(err, "generating token")
}
