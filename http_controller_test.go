package accounts_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/interaction"
	"github.com/goliatone/go-accounts/session"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFrontend = "https://app.example.com"

type httpEnv struct {
	*env
	app          *fiber.App
	interactions *interaction.RedisStore
	cookieName   string
}

func newHTTPEnv(t *testing.T) *httpEnv {
	t.Helper()

	e := newEnv(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cookies := accounts.DefaultCookieConfig()
	cookies.Secure = false

	tokens := accounts.NewSessionTokenService([]byte("test-signing-key-with-enough-bytes!!"), "accounts-test", nil)
	sessions := accounts.NewCookieSessions(tokens, session.NewRedisStore(client), cookies, nil)
	interactions := interaction.NewRedisStore(client)
	assembler := accounts.NewClaimsAssembler(e.repo.Claims())

	controller := accounts.NewAccountsController(accounts.AccountsController{
		Authenticator:  e.authenticator(),
		Sessions:       sessions,
		Interactions:   accounts.NewInteractionService(interactions),
		Profiles:       accounts.NewProfileService(e.repo.Credentials(), assembler),
		Accounts:       accounts.NewAccountService(e.repo, e.dispatcher),
		Register:       e.register,
		ChangePassword: accounts.NewChangePasswordHandler(e.repo).WithPasswordAuthenticator(plainHasher{}),
		ResetPassword:  accounts.NewInitializePasswordResetHandler(e.repo, e.dispatcher),
		FinalizeReset:  accounts.NewFinalizePasswordResetHandler(e.repo).WithPasswordAuthenticator(plainHasher{}),
		Confirmations:  accounts.NewConfirmContactHandler(e.repo),
	}, accounts.WithLockoutThreshold(3), accounts.WithFrontendAddress(testFrontend))

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		return fiber.New()
	})
	accounts.RegisterAccountsRoutes(srv.Router(), controller)

	return &httpEnv{
		env:          e,
		app:          srv.WrappedRouter(),
		interactions: interactions,
		cookieName:   cookies.Name,
	}
}

func (h *httpEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	out := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func (h *httpEnv) signIn(t *testing.T, identifier, password string) *http.Cookie {
	t.Helper()

	resp, _ := h.do(t, http.MethodPost, "/api/auth/signin", map[string]any{
		"identifier": identifier,
		"password":   password,
	}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	for _, c := range resp.Cookies() {
		if c.Name == h.cookieName && c.Value != "" {
			return &http.Cookie{Name: c.Name, Value: c.Value}
		}
	}
	t.Fatalf("no session cookie in sign in response")
	return nil
}

func TestHTTPSignInSetsSessionCookie(t *testing.T) {
	h := newHTTPEnv(t)
	h.registerAlice(t)

	cookie := h.signIn(t, "alice", "S3cret!")
	assert.NotEmpty(t, cookie.Value)
}

func TestHTTPSignInFailuresShareOneResponse(t *testing.T) {
	h := newHTTPEnv(t)
	h.registerAlice(t)

	wrong, wrongBody := h.do(t, http.MethodPost, "/api/auth/signin", map[string]any{
		"identifier": "alice",
		"password":   "nope",
	}, nil)
	unknown, unknownBody := h.do(t, http.MethodPost, "/api/auth/signin", map[string]any{
		"identifier": "mallory",
		"password":   "nope",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, unknown.StatusCode)
	assert.Equal(t, wrongBody, unknownBody)
	assert.Empty(t, wrong.Cookies())
}

func TestHTTPSignInLockedOutLooksLikeBadPassword(t *testing.T) {
	h := newHTTPEnv(t)
	h.registerAlice(t)

	var last map[string]any
	for i := 0; i < 4; i++ {
		resp, body := h.do(t, http.MethodPost, "/api/auth/signin", map[string]any{
			"identifier": "alice",
			"password":   "nope",
		}, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		last = body
	}

	resp, body := h.do(t, http.MethodPost, "/api/auth/signin", map[string]any{
		"identifier": "alice",
		"password":   "S3cret!",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, last, body)
}

func TestHTTPSignInRejectsEmptyPayload(t *testing.T) {
	h := newHTTPEnv(t)

	resp, body := h.do(t, http.MethodPost, "/api/auth/signin", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", body["error"])
	assert.Contains(t, body, "fields")
}

func TestHTTPRegister(t *testing.T) {
	h := newHTTPEnv(t)

	payload := map[string]any{
		"username":         "alice",
		"email":            "alice@example.com",
		"password":         "S3cret!",
		"confirm_password": "S3cret!",
	}

	resp, _ := h.do(t, http.MethodPost, "/api/auth/register", payload, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := h.do(t, http.MethodPost, "/api/auth/register", payload, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "duplicate_identifier", body["error"])
}

func TestHTTPRegisterWeakPassword(t *testing.T) {
	h := newHTTPEnv(t)

	resp, body := h.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    "bob@example.com",
		"password": "abc",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "weak_credential", body["error"])
	assert.NotEmpty(t, body["problems"])
}

func TestHTTPRegisterPasswordMismatch(t *testing.T) {
	h := newHTTPEnv(t)

	resp, body := h.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email":            "bob@example.com",
		"password":         "S3cret!",
		"confirm_password": "S3cret?",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "confirm_password")
}

func TestHTTPProfile(t *testing.T) {
	h := newHTTPEnv(t)
	user := h.registerAlice(t)

	resp, _ := h.do(t, http.MethodGet, "/api/auth/profile", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cookie := h.signIn(t, "alice", "S3cret!")
	resp, body := h.do(t, http.MethodGet, "/api/auth/profile?claims=name", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, user.ID.String(), body["sub"])

	claims, ok := body["claims"].([]any)
	require.True(t, ok)
	found := false
	for _, c := range claims {
		claim := c.(map[string]any)
		if claim["type"] == accounts.ClaimName {
			found = true
			assert.Equal(t, "Alice Liddell", claim["value"])
		}
	}
	assert.True(t, found)
}

func TestHTTPProfileRejectsTamperedCookie(t *testing.T) {
	h := newHTTPEnv(t)
	h.registerAlice(t)

	cookie := h.signIn(t, "alice", "S3cret!")
	cookie.Value += "x"

	resp, _ := h.do(t, http.MethodGet, "/api/auth/profile", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTPAuthenticationFailuresShareOneBody(t *testing.T) {
	h := newHTTPEnv(t)
	h.registerAlice(t)

	_, badPassword := h.do(t, http.MethodPost, "/api/auth/signin", map[string]any{
		"identifier": "alice",
		"password":   "nope",
	}, nil)

	resp, noSession := h.do(t, http.MethodGet, "/api/auth/profile", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cookie := h.signIn(t, "alice", "S3cret!")
	cookie.Value += "x"
	resp, tampered := h.do(t, http.MethodGet, "/api/auth/profile", nil, cookie)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(t, badPassword, noSession)
	assert.Equal(t, badPassword, tampered)
	assert.Equal(t, "unauthorized", badPassword["error"])
	assert.Equal(t, accounts.ErrBadCredentials.Message, badPassword["message"])
}

func TestHTTPStoreFailureIsInternal(t *testing.T) {
	h := newHTTPEnv(t)
	h.registerAlice(t)
	cookie := h.signIn(t, "alice", "S3cret!")

	require.NoError(t, h.closeDB())

	resp, body := h.do(t, http.MethodGet, "/api/auth/profile", nil, cookie)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal", body["error"])
	assert.NotContains(t, body["message"], "sql")
}

func TestHTTPAccountOwnership(t *testing.T) {
	h := newHTTPEnv(t)
	alice := h.registerAlice(t)

	_, err := h.register.Register(context.Background(), accounts.RegisterUserMessage{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "S3cret!",
	})
	require.NoError(t, err)
	bob, err := h.repo.Credentials().FindByNormalizedIdentifier(context.Background(), accounts.FieldUsername, "BOB")
	require.NoError(t, err)

	cookie := h.signIn(t, "alice", "S3cret!")

	resp, body := h.do(t, http.MethodGet, "/api/accounts/"+alice.ID.String(), nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "Alice Liddell", body["name"])

	resp, body = h.do(t, http.MethodGet, "/api/accounts/"+bob.ID.String(), nil, cookie)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", body["error"])

	resp, _ = h.do(t, http.MethodPut, "/api/accounts/"+bob.ID.String(), map[string]any{
		"email": "stolen@example.com",
	}, cookie)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/api/accounts/not-a-uuid", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPUpdateAccount(t *testing.T) {
	h := newHTTPEnv(t)
	alice := h.registerAlice(t)
	cookie := h.signIn(t, "alice", "S3cret!")

	resp, body := h.do(t, http.MethodPut, "/api/accounts/"+alice.ID.String(), map[string]any{
		"name":  "Alice Kingsleigh",
		"email": "Alice@Example.com",
	}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Alice Kingsleigh", body["name"])
	assert.Equal(t, "", body["phone_number"])
}

func TestHTTPSignOut(t *testing.T) {
	h := newHTTPEnv(t)
	alice := h.registerAlice(t)
	cookie := h.signIn(t, "alice", "S3cret!")

	id, err := h.interactions.SaveLogoutContext(context.Background(), accounts.LogoutContext{
		SubjectID:             alice.ID.String(),
		PostLogoutRedirectURI: "https://client.example.com/bye",
	})
	require.NoError(t, err)

	resp, body := h.do(t, http.MethodPost, "/api/auth/signout", map[string]any{"logout_id": id}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://client.example.com/bye", body["post_logout_redirect_uri"])

	resp, _ = h.do(t, http.MethodGet, "/api/auth/profile", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTPSignOutFallsBackToFrontend(t *testing.T) {
	h := newHTTPEnv(t)

	resp, body := h.do(t, http.MethodPost, "/api/auth/signout", map[string]any{"logout_id": "unknown"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testFrontend, body["post_logout_redirect_uri"])

	resp, _ = h.do(t, http.MethodPost, "/api/auth/signout", map[string]any{"logout_id": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPErrorContext(t *testing.T) {
	h := newHTTPEnv(t)

	id, err := h.interactions.SaveErrorContext(context.Background(), accounts.ErrorContext{
		Error:            "access_denied",
		ErrorDescription: "consent withheld",
	})
	require.NoError(t, err)

	resp, body := h.do(t, http.MethodGet, "/api/auth/error/"+id, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "access_denied", body["error"])
	assert.Equal(t, "consent withheld", body["error_description"])

	resp, _ = h.do(t, http.MethodGet, "/api/auth/error/missing", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPPasswordResetIsSilentForUnknownEmail(t *testing.T) {
	h := newHTTPEnv(t)

	resp, _ := h.do(t, http.MethodPost, "/api/passwords/reset", map[string]any{"email": "nobody@example.com"}, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	h.dispatcher.Wait()
	assert.Empty(t, h.notifier.Emails())
}

func TestHTTPPasswordResetFlow(t *testing.T) {
	h := newHTTPEnv(t)
	h.registerAlice(t)

	resp, _ := h.do(t, http.MethodPost, "/api/passwords/reset", map[string]any{"email": "alice@example.com"}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	h.dispatcher.Wait()

	var token string
	for _, m := range h.notifier.Emails() {
		if m.Subject == accounts.SubjectPasswordReset {
			token = m.Token
		}
	}
	require.NotEmpty(t, token)

	resp, _ = h.do(t, http.MethodPost, "/api/passwords/confirm-reset", map[string]any{
		"token":    token,
		"password": "N3wSecret!",
	}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	h.signIn(t, "alice", "N3wSecret!")

	resp, body := h.do(t, http.MethodPost, "/api/passwords/confirm-reset", map[string]any{
		"token":    token,
		"password": "An0therOne!",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", body["error"])
}

func TestHTTPConfirmations(t *testing.T) {
	h := newHTTPEnv(t)
	h.registerAlice(t)

	resp, _ := h.do(t, http.MethodPost, "/api/confirmations/email", map[string]any{"token": "bogus"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	emails := h.notifier.Emails()
	require.Len(t, emails, 1)
	resp, _ = h.do(t, http.MethodPost, "/api/confirmations/email", map[string]any{"token": emails[0].Token}, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	sms := h.notifier.SMS()
	require.Len(t, sms, 1)

	resp, _ = h.do(t, http.MethodPost, "/api/confirmations/phone", map[string]any{"code": sms[0].Token}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cookie := h.signIn(t, "alice", "S3cret!")
	resp, _ = h.do(t, http.MethodPost, "/api/confirmations/phone", map[string]any{"code": sms[0].Token}, cookie)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	user, err := h.repo.Credentials().FindByNormalizedIdentifier(context.Background(), accounts.FieldUsername, "ALICE")
	require.NoError(t, err)
	assert.True(t, user.EmailConfirmed)
	assert.True(t, user.PhoneNumberConfirmed)
}

func TestHTTPPasswordChangeRequiresSession(t *testing.T) {
	h := newHTTPEnv(t)
	h.registerAlice(t)

	resp, _ := h.do(t, http.MethodPost, "/api/passwords/change", map[string]any{
		"current_password": "S3cret!",
		"new_password":     "N3wSecret!",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cookie := h.signIn(t, "alice", "S3cret!")
	resp, _ = h.do(t, http.MethodPost, "/api/passwords/change", map[string]any{
		"current_password": "S3cret!",
		"new_password":     "N3wSecret!",
	}, cookie)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	h.signIn(t, "alice", "N3wSecret!")
}
