package echoapi_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/sautiplus/backoffice/apps/api/echo"
	"github.com/sautiplus/backoffice/core/staff"
	"github.com/sautiplus/backoffice/core/testutil"
)

func TestLogin(t *testing.T) {
	api := setup(t)
	testutil.CreateStaff(t, api.StaffRepo, "Inactive", "inactive", "inactive@sauti.test", testPassword, []string{staff.RoleEvents}, false)

	tests := []httpTest{
		{
			name:     "missing credentials",
			body:     marchallObj(t, echoapi.LoginRequest{}),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username": "this field is required", "password": "this field is required"}`),
		},
		{
			name:     "wrong password",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "amani", Password: "wrong"}),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name:     "unknown user",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "nobody", Password: testPassword}),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name:     "deactivated",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "inactive", Password: testPassword}),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name:     "username",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "Amani", Password: testPassword}),
			wantCode: http.StatusOK,
		},
		{
			name:     "email",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "baraka@sauti.test", Password: testPassword}),
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/staff/login", tt.body)
			api.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp echoapi.TokenResponse
				decode(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
			}
		})
	}

	s, err := api.StaffSvc.GetByID(context.Background(), api.super.ID)
	if assert.NoError(t, err) {
		assert.False(t, s.LastLogin.IsZero(), "last login should be recorded")
	}
}

func TestAuthentication(t *testing.T) {
	api := setup(t)

	tests := []httpTest{
		{
			name:     "no token",
			method:   http.MethodGet,
			path:     "/v1/staff/me",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "bad token",
			method:   http.MethodGet,
			path:     "/v1/staff/me",
			token:    "not-a-token",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "me",
			method:   http.MethodGet,
			path:     "/v1/staff/me",
			token:    api.token(t, api.events),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, api.events),
		},
		{
			name:     "roles",
			method:   http.MethodGet,
			path:     "/v1/staff/roles",
			token:    api.token(t, api.moderator),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, staff.Roles),
		},
		{
			name:     "token refresh",
			method:   http.MethodPost,
			path:     "/v1/staff/token-refresh",
			token:    api.token(t, api.finance),
			wantCode: http.StatusOK,
		},
		{
			name:     "list requires super",
			method:   http.MethodGet,
			path:     "/v1/staff",
			token:    api.token(t, api.finance),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "credits require finance",
			method:   http.MethodGet,
			path:     "/v1/credits/rules",
			token:    api.token(t, api.events),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "super holds every role",
			method:   http.MethodGet,
			path:     "/v1/credits/rules",
			token:    api.token(t, api.super),
			wantCode: http.StatusOK,
		},
		{
			name:     "other staff is hidden",
			method:   http.MethodGet,
			path:     "/v1/staff/" + api.finance.ID,
			token:    api.token(t, api.events),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "own account",
			method:   http.MethodGet,
			path:     "/v1/staff/" + api.events.ID,
			token:    api.token(t, api.events),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, api.events),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			api.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestStaffCRUD(t *testing.T) {
	api := setup(t)

	newStaff := staff.NewStaff{
		Name:            "Eshe Wanjiru",
		Email:           "Eshe@Sauti.test",
		Password:        testPassword,
		PasswordConfirm: testPassword,
		Roles:           []string{staff.RoleEvents},
	}

	rec := api.do(t, http.MethodPost, "/v1/staff", &api.finance, newStaff)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/v1/staff", &api.super, newStaff)
	if !assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String()) {
		return
	}
	var created staff.Staff
	decode(t, rec, &created)
	assert.Equal(t, "eshe", created.Username)
	assert.Equal(t, "eshe@sauti.test", created.Email)
	assert.True(t, created.IsActive)

	t.Run("duplicate email", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/staff", &api.super, newStaff)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `"email"`)
	})

	t.Run("query", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/v1/staff?role="+staff.RoleEvents+"&ordering=-name", &api.super, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		var members []staff.Staff
		decode(t, rec, &members)
		if assert.Len(t, members, 2) {
			assert.Equal(t, "Eshe Wanjiru", members[0].Name)
			assert.Equal(t, api.events.ID, members[1].ID)
		}
	})

	t.Run("non super cannot change roles", func(t *testing.T) {
		tok := api.token(t, created)
		body := marchallObj(t, staff.UpdateStaff{Roles: []string{staff.RoleSuper}})
		req, rec := newAuthRequest(http.MethodPut, "/v1/staff/"+created.ID, tok, body)
		api.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("update own name", func(t *testing.T) {
		tok := api.token(t, created)
		body := marchallObj(t, staff.UpdateStaff{Name: "Eshe W."})
		req, rec := newAuthRequest(http.MethodPut, "/v1/staff/"+created.ID, tok, body)
		api.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var s staff.Staff
		decode(t, rec, &s)
		assert.Equal(t, "Eshe W.", s.Name)
		assert.Equal(t, created.Roles, s.Roles)
	})

	t.Run("password mismatch", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/staff/"+created.ID+"/password", &api.super,
			echoapi.PasswordRequest{Password: "N3w#Passw0rd!", PasswordConfirm: "other"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reset password", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/staff/"+created.ID+"/password", &api.super,
			echoapi.PasswordRequest{Password: "N3w#Passw0rd!", PasswordConfirm: "N3w#Passw0rd!"})
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec2 := newRequest(http.MethodPost, "/v1/staff/login",
			marchallObj(t, echoapi.LoginRequest{Username: "eshe", Password: "N3w#Passw0rd!"}))
		api.app.ServeHTTP(rec2, req)
		assert.Equal(t, http.StatusOK, rec2.Code)
	})

	t.Run("cannot delete self", func(t *testing.T) {
		rec := api.do(t, http.MethodDelete, "/v1/staff/"+api.super.ID, &api.super, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := api.do(t, http.MethodDelete, "/v1/staff/"+created.ID, &api.super, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = api.do(t, http.MethodDelete, "/v1/staff/"+created.ID, &api.super, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("deleted staff token is rejected", func(t *testing.T) {
		tok := api.token(t, created)
		req, rec := newAuthRequest(http.MethodGet, "/v1/staff/me", tok)
		api.app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestPasswordReset(t *testing.T) {
	api := setup(t)
	const newPassword = "Pq7&zR4!wN"

	tests := []httpTest{
		{
			name:     "missing email",
			path:     "/v1/staff/password-reset",
			body:     marchallObj(t, echoapi.PasswordResetRequest{}),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email": "this field is required"}`),
		},
		{
			name:     "unknown email",
			path:     "/v1/staff/password-reset",
			body:     marchallObj(t, echoapi.PasswordResetRequest{Email: "nobody@sauti.test"}),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password reset e-mail has been sent."}),
		},
		{
			name:     "missing uid and token",
			path:     "/v1/staff/password-reset/confirm",
			body:     marchallObj(t, echoapi.PasswordResetConfirm{}),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"uid": "this field is required", "token": "this field is required"}`),
		},
		{
			name: "password mismatch",
			path: "/v1/staff/password-reset/confirm",
			body: marchallObj(t, echoapi.PasswordResetConfirm{
				UID: "uid", Token: "token",
				PasswordRequest: echoapi.PasswordRequest{Password: newPassword, PasswordConfirm: "other"},
			}),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"password_confirm": "passwords do not match"}`),
		},
		{
			name: "invalid token",
			path: "/v1/staff/password-reset/confirm",
			body: marchallObj(t, echoapi.PasswordResetConfirm{
				UID: staff.EncodeUID(api.finance), Token: "MQ-bogus",
				PasswordRequest: echoapi.PasswordRequest{Password: newPassword, PasswordConfirm: newPassword},
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"token": staff.ErrInvalidResetToken.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, tt.path, tt.body)
			api.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
	assert.Empty(t, api.Mail.SentMessages())

	rec := api.do(t, http.MethodPost, "/v1/staff/password-reset", nil, echoapi.PasswordResetRequest{Email: "Baraka@Sauti.test"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sent := api.Mail.SentMessages()
	require.Len(t, sent, 1)

	var uid, token string
	for _, field := range strings.Fields(sent[0].Body) {
		if i := strings.Index(field, "/password-reset/"); i >= 0 {
			parts := strings.Split(field[i+len("/password-reset/"):], "/")
			require.Len(t, parts, 2)
			uid, token = parts[0], parts[1]
		}
	}
	require.NotEmpty(t, token, sent[0].Body)

	confirm := echoapi.PasswordResetConfirm{
		UID: uid, Token: token,
		PasswordRequest: echoapi.PasswordRequest{Password: newPassword, PasswordConfirm: newPassword},
	}
	rec = api.do(t, http.MethodPost, "/v1/staff/password-reset/confirm", nil, confirm)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/v1/staff/login", nil, echoapi.LoginRequest{Username: "baraka", Password: newPassword})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the link works once
	rec = api.do(t, http.MethodPost, "/v1/staff/password-reset/confirm", nil, confirm)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}
