package grant

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/cache"
	"github.com/dropDatabas3/snsoauth/internal/csrf"
	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/dropDatabas3/snsoauth/internal/oauth/binder"
	"github.com/dropDatabas3/snsoauth/internal/oauth/scope"
	"github.com/dropDatabas3/snsoauth/internal/oauth/userinfo"
	"github.com/dropDatabas3/snsoauth/internal/security/password"
	"github.com/dropDatabas3/snsoauth/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	redirectURI = "https://app.example.com/cb"
	sessionID   = "sess-1"
)

type recorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *recorder) GrantOutcome(flow, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[flow+"/"+result]++
}

func (r *recorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

type env struct {
	d     *Dispatcher
	store repository.CredentialStore
	rec   *recorder
	user  *repository.User
	now   time.Time
}

func (e *env) advance(dur time.Duration) { e.now = e.now.Add(dur) }

type option func(*Deps)

func withPolicy(p scope.Policy) option { return func(d *Deps) { d.Config.ConsentPolicy = p } }

func withRefreshPolicy(rp binder.RefreshPolicy) option {
	return func(d *Deps) { d.Binders.Refresh = rp }
}

func withStore(st repository.CredentialStore) option {
	return func(d *Deps) { d.Binders.Store = st }
}

func newEnv(t *testing.T, opts ...option) *env {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	_, err := st.Clients().Create(ctx, repository.ClientInput{
		ID: "app", Secret: "s3cret", Title: "Demo App", IconURL: "https://example.com/i.png", Domain: "example.com",
	})
	require.NoError(t, err)
	_, err = st.Clients().Create(ctx, repository.ClientInput{ID: "other", Secret: "other-secret"})
	require.NoError(t, err)
	hash, err := password.Hash(password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}, "hunter2")
	require.NoError(t, err)
	u, err := st.Users().Create(ctx, repository.CreateUserInput{Username: "alice", PasswordHash: hash, Nickname: "Alice"})
	require.NoError(t, err)

	forgery, err := csrf.NewManager(cache.NewMemory("test"), "0123456789abcdef0123456789abcdef", time.Minute)
	require.NoError(t, err)

	e := &env{store: st, rec: &recorder{}, user: u, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := binder.New(st,
		binder.TTLs{Access: 2 * time.Hour, Refresh: 30 * 24 * time.Hour, Code: 10 * time.Minute},
		binder.RefreshPolicy{RotateRefreshToken: true, RevokePrevious: true})
	b.Now = func() time.Time { return e.now }

	deps := Deps{
		Binders:  b,
		Forgery:  forgery,
		UserInfo: userinfo.NewRepositoryAdapter(st.Users()),
		Recorder: e.rec,
		Config:   Config{ConsentPolicy: scope.ScopeOrPrior, EnforceRedirectDomain: true},
	}
	for _, o := range opts {
		o(&deps)
	}
	e.d = New(deps)
	return e
}

func authorizeReq(method, s string) AuthorizeRequest {
	return AuthorizeRequest{
		Method:       method,
		ResponseType: ResponseCode,
		ClientID:     "app",
		RedirectURI:  redirectURI,
		Scope:        s,
		State:        "xyz",
		SessionID:    sessionID,
		RequestURL:   "/oauth2/sns/authorize?client_id=app",
	}
}

func (e *env) subject(r AuthorizeRequest) AuthorizeRequest {
	r.SubjectID = e.user.ID
	return r
}

func (e *env) code(t *testing.T) string {
	t.Helper()
	out, err := e.d.Authorize(context.Background(), e.subject(authorizeReq(http.MethodGet, scope.Base)))
	require.NoError(t, err)
	require.Equal(t, KindRedirect, out.Kind)
	code := out.Redirect.Params.Get("code")
	require.NotEmpty(t, code)
	return code
}

func (e *env) exchange(code, redirect string) (Outcome, error) {
	return e.d.AccessToken(context.Background(), TokenRequest{
		GrantType: GrantAuthorizationCode, ClientID: "app", ClientSecret: "s3cret",
		Code: code, RedirectURI: redirect,
	})
}

func (e *env) passwordGrant(t *testing.T, s string) *binder.Issued {
	t.Helper()
	out, err := e.d.AccessToken(context.Background(), TokenRequest{
		GrantType: GrantPassword, ClientID: "app", ClientSecret: "s3cret",
		Username: "alice", Password: "hunter2", Scope: s,
	})
	require.NoError(t, err)
	require.Equal(t, KindToken, out.Kind, "%+v", out.Problem)
	return out.Token
}

func requireProblem(t *testing.T, out Outcome, status int, code string) {
	t.Helper()
	require.Equal(t, KindProblem, out.Kind)
	require.NotNil(t, out.Problem)
	assert.Equal(t, code, out.Problem.Code)
	assert.Equal(t, status, out.Status)
}

// ====================================================================================
// Parse stage
// ====================================================================================

func TestParseTokenRequest(t *testing.T) {
	_, p := ParseTokenRequest(url.Values{"client_id": {"app"}}, "", "")
	require.NotNil(t, p)
	assert.Equal(t, ErrInvalidRequest, p.Code)

	_, p = ParseTokenRequest(url.Values{"grant_type": {"implicit"}, "client_id": {"app"}}, "", "")
	require.NotNil(t, p)
	assert.Equal(t, ErrInvalidGrant, p.Code)
	assert.Equal(t, http.StatusBadRequest, p.Status)

	_, p = ParseTokenRequest(url.Values{"grant_type": {"client_credentials"}}, "", "")
	require.NotNil(t, p)
	assert.Equal(t, ErrInvalidRequest, p.Code)

	req, p := ParseTokenRequest(url.Values{"grant_type": {"client_credentials"}}, "app", "s3cret")
	require.Nil(t, p)
	assert.Equal(t, "app", req.ClientID)
	assert.Equal(t, "s3cret", req.ClientSecret)

	req, p = ParseTokenRequest(url.Values{"grant_type": {"password"}, "client_id": {"form"}}, "basic", "x")
	require.Nil(t, p)
	assert.Equal(t, "form", req.ClientID)
}

func TestParseAuthorizeRequest(t *testing.T) {
	_, p := ParseAuthorizeRequest(http.MethodGet, url.Values{"client_id": {"app"}})
	require.NotNil(t, p)
	assert.Equal(t, ErrInvalidRequest, p.Code)

	_, p = ParseAuthorizeRequest(http.MethodGet, url.Values{"response_type": {"code"}})
	require.NotNil(t, p)
	assert.Equal(t, ErrInvalidRequest, p.Code)

	_, p = ParseAuthorizeRequest(http.MethodGet, url.Values{"response_type": {"id_token"}, "client_id": {"app"}})
	require.NotNil(t, p)
	assert.Equal(t, ErrUnsupportedResponseType, p.Code)

	req, p := ParseAuthorizeRequest(http.MethodPost, url.Values{
		"response_type": {"CODE"}, "client_id": {"app"}, "authorized": {"true"}, "csrf_token": {"t"},
	})
	require.Nil(t, p)
	assert.Equal(t, ResponseCode, req.ResponseType)
	assert.True(t, req.Authorized)
	assert.True(t, req.IsConfirmation())
	assert.Equal(t, "t", req.CSRFToken)
}

// ====================================================================================
// A. Client credentials
// ====================================================================================

func TestClientCredentials(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		req    TokenRequest
		status int
		code   string
	}{
		{"unknown client", TokenRequest{GrantType: GrantClientCredentials, ClientID: "nope", ClientSecret: "s3cret"}, 400, ErrInvalidClient},
		{"bad secret", TokenRequest{GrantType: GrantClientCredentials, ClientID: "app", ClientSecret: "wrong"}, 401, ErrUnauthorizedClient},
		{"empty secret", TokenRequest{GrantType: GrantClientCredentials, ClientID: "app"}, 401, ErrUnauthorizedClient},
		{"wrong grant", TokenRequest{GrantType: GrantPassword, ClientID: "app", ClientSecret: "s3cret"}, 400, ErrUnsupportedGrantType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := e.d.ClientCredentials(ctx, tc.req)
			require.NoError(t, err)
			requireProblem(t, out, tc.status, tc.code)
		})
	}

	out, err := e.d.ClientCredentials(ctx, TokenRequest{GrantType: GrantClientCredentials, ClientID: "app", ClientSecret: "s3cret"})
	require.NoError(t, err)
	require.Equal(t, KindToken, out.Kind)
	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, int64(7200), out.Token.ExpiresIn)
	assert.Empty(t, out.Token.RefreshToken)
	assert.Equal(t, 1, e.rec.get("client_credentials/token"))
	assert.Equal(t, 2, e.rec.get("client_credentials/unauthorized_client"))
	assert.Equal(t, 1, e.rec.get("client_credentials/invalid_client"))

	auth, err := e.d.Auth(ctx, ResourceRequest{Kind: ResourceClient, AccessToken: out.Token.AccessToken})
	require.NoError(t, err)
	assert.Equal(t, KindOK, auth.Kind)

	// un token de client no sirve en rutas de usuario
	auth, err = e.d.Auth(ctx, ResourceRequest{Kind: ResourceSubject, AccessToken: out.Token.AccessToken, OpenID: "x"})
	require.NoError(t, err)
	requireProblem(t, auth, 401, ErrInvalidToken)
}

// ====================================================================================
// B. Authorize
// ====================================================================================

func TestAuthorize_Guards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	r := e.subject(authorizeReq(http.MethodGet, scope.Base))
	r.RedirectURI = ""
	out, err := e.d.Authorize(ctx, r)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidRedirectURI)
	assert.True(t, out.Interactive)

	r = e.subject(authorizeReq(http.MethodGet, scope.Base))
	r.ClientID = "nope"
	out, err = e.d.Authorize(ctx, r)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidClient)

	r = e.subject(authorizeReq(http.MethodGet, scope.Base))
	r.RedirectURI = "https://evil.io/cb"
	out, err = e.d.Authorize(ctx, r)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidRedirectURI)

	out, err = e.d.Authorize(ctx, e.subject(authorizeReq(http.MethodGet, "snsapi_all")))
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidScope)

	r = e.subject(authorizeReq(http.MethodGet, scope.Base))
	r.ResponseType = ResponseToken
	out, err = e.d.Authorize(ctx, r)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrUnsupportedResponseType)
}

func TestAuthorize_LoginRequired(t *testing.T) {
	e := newEnv(t)
	out, err := e.d.Authorize(context.Background(), authorizeReq(http.MethodGet, scope.Base))
	require.NoError(t, err)
	requireProblem(t, out, 401, ErrLoginRequired)

	e = newEnv(t, func(d *Deps) { d.Config.LoginURL = "/login" })
	out, err = e.d.Authorize(context.Background(), authorizeReq(http.MethodGet, scope.Base))
	require.NoError(t, err)
	require.Equal(t, KindRedirect, out.Kind)
	assert.Equal(t, "/login", out.Redirect.Target)
	assert.Equal(t, "/oauth2/sns/authorize?client_id=app", out.Redirect.Params.Get("return_to"))
}

func TestAuthorize_SilentBase(t *testing.T) {
	e := newEnv(t)
	out, err := e.d.Authorize(context.Background(), e.subject(authorizeReq(http.MethodGet, scope.Base)))
	require.NoError(t, err)
	require.Equal(t, KindRedirect, out.Kind)
	assert.Equal(t, http.StatusFound, out.Status)
	assert.Equal(t, redirectURI, out.Redirect.Target)
	assert.NotEmpty(t, out.Redirect.Params.Get("code"))
	assert.Equal(t, "xyz", out.Redirect.Params.Get("state"))
}

func TestAuthorize_ConsentConversation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	out, err := e.d.Authorize(ctx, e.subject(authorizeReq(http.MethodGet, scope.UserInfo)))
	require.NoError(t, err)
	require.Equal(t, KindConsent, out.Kind)
	assert.Equal(t, http.StatusOK, out.Status)
	c := out.Consent
	assert.Equal(t, "Demo App", c.ClientTitle)
	assert.Equal(t, "https://example.com/i.png", c.ClientIcon)
	assert.Equal(t, "example.com", c.ClientDomain)
	assert.Equal(t, scope.UserInfo, c.Scope)
	require.NotEmpty(t, c.CSRFToken)

	// token anti-forgery ausente o de otra sesión: rechazo terminal en JSON
	post := e.subject(authorizeReq(http.MethodPost, scope.UserInfo))
	post.Authorized = true
	post.CSRFToken = "forged"
	out, err = e.d.Authorize(ctx, post)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidRequest)
	assert.False(t, out.Interactive)

	post.CSRFToken = c.CSRFToken
	out, err = e.d.Authorize(ctx, post)
	require.NoError(t, err)
	require.Equal(t, KindRedirect, out.Kind)
	assert.NotEmpty(t, out.Redirect.Params.Get("code"))
	assert.Equal(t, "xyz", out.Redirect.Params.Get("state"))

	// el token es de un solo uso
	out, err = e.d.Authorize(ctx, post)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidRequest)

	// con consentimiento registrado, el GET ya no muestra la vista
	out, err = e.d.Authorize(ctx, e.subject(authorizeReq(http.MethodGet, scope.UserInfo)))
	require.NoError(t, err)
	assert.Equal(t, KindRedirect, out.Kind)
}

func TestAuthorize_Denied(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	out, err := e.d.Authorize(ctx, e.subject(authorizeReq(http.MethodGet, scope.UserInfo)))
	require.NoError(t, err)
	require.Equal(t, KindConsent, out.Kind)

	post := e.subject(authorizeReq(http.MethodPost, scope.UserInfo))
	post.CSRFToken = out.Consent.CSRFToken
	out, err = e.d.Authorize(ctx, post)
	require.NoError(t, err)
	require.Equal(t, KindRedirect, out.Kind)
	assert.Equal(t, url.Values{"state": {"xyz"}}, out.Redirect.Params)

	// la negativa no registra consentimiento
	out, err = e.d.Authorize(ctx, e.subject(authorizeReq(http.MethodGet, scope.UserInfo)))
	require.NoError(t, err)
	assert.Equal(t, KindConsent, out.Kind)
}

func TestAuthorize_ConsentPolicies(t *testing.T) {
	ctx := context.Background()

	// scope_only: la vista aparece siempre para snsapi_userinfo
	e := newEnv(t, withPolicy(scope.ScopeOnly))
	ab, err := e.d.binders.BindAuthz(ctx, "app", e.user.ID)
	require.NoError(t, err)
	require.NoError(t, ab.Consent(ctx, scope.UserInfo))
	out, err := e.d.Authorize(ctx, e.subject(authorizeReq(http.MethodGet, scope.UserInfo)))
	require.NoError(t, err)
	assert.Equal(t, KindConsent, out.Kind)

	// prior_only: incluso snsapi_base pide consentimiento la primera vez
	e = newEnv(t, withPolicy(scope.PriorOnly))
	out, err = e.d.Authorize(ctx, e.subject(authorizeReq(http.MethodGet, scope.Base)))
	require.NoError(t, err)
	assert.Equal(t, KindConsent, out.Kind)
}

func TestScopeRejection_SameOnAuthorizeAndPassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for _, bad := range []string{"", "snsapi_all", "snsapi_base snsapi_userinfo"} {
		authz, err := e.d.Authorize(ctx, e.subject(authorizeReq(http.MethodGet, bad)))
		require.NoError(t, err)
		pw, err := e.d.AccessToken(ctx, TokenRequest{
			GrantType: GrantPassword, ClientID: "app", ClientSecret: "s3cret",
			Username: "alice", Password: "hunter2", Scope: bad,
		})
		require.NoError(t, err)

		requireProblem(t, authz, 400, ErrInvalidScope)
		requireProblem(t, pw, 400, ErrInvalidScope)
		assert.Equal(t, authz.Problem.Code, pw.Problem.Code)
	}
}

// ====================================================================================
// C. Code / password exchange
// ====================================================================================

func TestAccessToken_UnsupportedGrantBeforeClient(t *testing.T) {
	e := newEnv(t)
	for _, g := range []string{GrantClientCredentials, GrantRefreshToken} {
		out, err := e.d.AccessToken(context.Background(), TokenRequest{GrantType: g, ClientID: "nope"})
		require.NoError(t, err)
		requireProblem(t, out, 400, ErrUnsupportedGrantType)
	}
}

func TestExchangeCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	code := e.code(t)

	out, err := e.d.AccessToken(ctx, TokenRequest{GrantType: GrantAuthorizationCode, ClientID: "app", ClientSecret: "s3cret", Code: code})
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidRequest)

	out, err = e.d.AccessToken(ctx, TokenRequest{GrantType: GrantAuthorizationCode, ClientID: "nope", ClientSecret: "s3cret", Code: code, RedirectURI: redirectURI})
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidClient)

	out, err = e.d.AccessToken(ctx, TokenRequest{GrantType: GrantAuthorizationCode, ClientID: "app", ClientSecret: "bad", Code: code, RedirectURI: redirectURI})
	require.NoError(t, err)
	requireProblem(t, out, 401, ErrUnauthorizedClient)

	out, err = e.d.AccessToken(ctx, TokenRequest{GrantType: GrantAuthorizationCode, ClientID: "other", ClientSecret: "other-secret", Code: code, RedirectURI: redirectURI})
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidGrant)

	out, err = e.exchange("not-a-code", redirectURI)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidGrant)

	out, err = e.exchange(code, redirectURI+"/other")
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrRedirectURIMismatch)

	out, err = e.exchange(code, redirectURI)
	require.NoError(t, err)
	require.Equal(t, KindToken, out.Kind)
	assert.NotEmpty(t, out.Token.AccessToken)
	assert.NotEmpty(t, out.Token.RefreshToken)
	assert.NotEmpty(t, out.Token.OpenID)
	assert.Equal(t, scope.Base, out.Token.Scope)
	assert.Equal(t, int64(7200), out.Token.ExpiresIn)

	// segundo canje del mismo code
	out, err = e.exchange(code, redirectURI)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidGrant)
}

func TestExchangeCode_Expired(t *testing.T) {
	e := newEnv(t)
	code := e.code(t)
	e.advance(11 * time.Minute)
	out, err := e.exchange(code, redirectURI)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidGrant)
}

func TestExchangeCode_ReissueInvalidatesPrevious(t *testing.T) {
	e := newEnv(t)
	first := e.code(t)
	second := e.code(t)

	out, err := e.exchange(first, redirectURI)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidGrant)

	out, err = e.exchange(second, redirectURI)
	require.NoError(t, err)
	assert.Equal(t, KindToken, out.Kind)
}

func TestExchangeCode_ConcurrentSingleUse(t *testing.T) {
	e := newEnv(t)
	code := e.code(t)

	const n = 20
	results := make(chan Outcome, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out, err := e.exchange(code, redirectURI)
			if err == nil {
				results <- out
			}
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var ok, rejected int
	for out := range results {
		switch {
		case out.Kind == KindToken:
			ok++
		case out.Problem != nil && out.Problem.Code == ErrInvalidGrant:
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, rejected)
}

func TestExchangePassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	base := TokenRequest{GrantType: GrantPassword, ClientID: "app", ClientSecret: "s3cret", Username: "alice", Password: "hunter2", Scope: scope.Base}

	r := base
	r.Password = ""
	out, err := e.d.AccessToken(ctx, r)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidRequest)

	r = base
	r.ClientID = "nope"
	out, err = e.d.AccessToken(ctx, r)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidClient)

	r = base
	r.ClientSecret = "bad"
	out, err = e.d.AccessToken(ctx, r)
	require.NoError(t, err)
	requireProblem(t, out, 401, ErrUnauthorizedClient)

	r = base
	r.Password = "wrong"
	out, err = e.d.AccessToken(ctx, r)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidUser)

	iss := e.passwordGrant(t, scope.UserInfo)
	assert.Equal(t, scope.UserInfo, iss.Scope)
	assert.Equal(t, 1, e.rec.get("password/token"))
}

// ====================================================================================
// D. Refresh
// ====================================================================================

func (e *env) refresh(clientID, grantType, token string) (Outcome, error) {
	return e.d.RefreshToken(context.Background(), TokenRequest{GrantType: grantType, ClientID: clientID, RefreshToken: token})
}

func TestRefresh_Guards(t *testing.T) {
	e := newEnv(t)
	iss := e.passwordGrant(t, scope.Base)

	out, err := e.refresh("nope", GrantRefreshToken, iss.RefreshToken)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidClient)

	out, err = e.refresh("app", GrantPassword, iss.RefreshToken)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrUnsupportedGrantType)

	out, err = e.refresh("app", GrantRefreshToken, "")
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidRequest)

	out, err = e.refresh("app", GrantRefreshToken, "unknown")
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidToken)

	out, err = e.refresh("other", GrantRefreshToken, iss.RefreshToken)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidToken)

	e.advance(31 * 24 * time.Hour)
	out, err = e.refresh("app", GrantRefreshToken, iss.RefreshToken)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrExpiredToken)
}

func TestRefresh_RevokePrevious(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := e.passwordGrant(t, scope.UserInfo)

	out, err := e.refresh("app", GrantRefreshToken, first.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, KindToken, out.Kind)
	second := out.Token
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, scope.UserInfo, second.Scope)

	old, err := e.d.Auth(ctx, ResourceRequest{AccessToken: first.AccessToken, OpenID: first.OpenID})
	require.NoError(t, err)
	requireProblem(t, old, 401, ErrInvalidToken)

	cur, err := e.d.Auth(ctx, ResourceRequest{AccessToken: second.AccessToken, OpenID: second.OpenID})
	require.NoError(t, err)
	assert.Equal(t, KindOK, cur.Kind)

	// el refresh token anterior quedó retirado
	out, err = e.refresh("app", GrantRefreshToken, first.RefreshToken)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidToken)
}

func TestRefresh_KeepPrevious(t *testing.T) {
	e := newEnv(t, withRefreshPolicy(binder.RefreshPolicy{RotateRefreshToken: true, RevokePrevious: false}))
	ctx := context.Background()
	first := e.passwordGrant(t, scope.Base)

	out, err := e.refresh("app", GrantRefreshToken, first.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, KindToken, out.Kind)
	assert.NotEqual(t, first.AccessToken, out.Token.AccessToken)

	old, err := e.d.Auth(ctx, ResourceRequest{AccessToken: first.AccessToken, OpenID: first.OpenID})
	require.NoError(t, err)
	assert.Equal(t, KindOK, old.Kind)

	e.advance(2 * time.Hour)
	old, err = e.d.Auth(ctx, ResourceRequest{AccessToken: first.AccessToken, OpenID: first.OpenID})
	require.NoError(t, err)
	requireProblem(t, old, 401, ErrExpiredToken)

	out, err = e.refresh("app", GrantRefreshToken, first.RefreshToken)
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidToken)
}

func TestRefresh_ConcurrentRotation(t *testing.T) {
	e := newEnv(t)
	first := e.passwordGrant(t, scope.Base)

	const n = 12
	results := make(chan Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.refresh("app", GrantRefreshToken, first.RefreshToken)
			if err == nil {
				results <- out
			}
		}()
	}
	wg.Wait()
	close(results)

	var ok, rejected int
	for out := range results {
		if out.Kind == KindToken {
			ok++
		} else if out.Problem != nil && out.Problem.Code == ErrInvalidToken {
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, rejected)
}

// ====================================================================================
// E. Resource access
// ====================================================================================

func TestResource(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	base := e.passwordGrant(t, scope.Base)

	out, err := e.d.Auth(ctx, ResourceRequest{OpenID: base.OpenID})
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidRequest)

	out, err = e.d.Auth(ctx, ResourceRequest{AccessToken: base.AccessToken})
	require.NoError(t, err)
	requireProblem(t, out, 401, ErrInvalidUser)

	out, err = e.d.Auth(ctx, ResourceRequest{AccessToken: "unknown", OpenID: base.OpenID})
	require.NoError(t, err)
	requireProblem(t, out, 401, ErrInvalidToken)

	out, err = e.d.Auth(ctx, ResourceRequest{AccessToken: base.AccessToken, OpenID: "someone-else"})
	require.NoError(t, err)
	requireProblem(t, out, 401, ErrInvalidToken)

	out, err = e.d.Auth(ctx, ResourceRequest{AccessToken: base.AccessToken, OpenID: base.OpenID})
	require.NoError(t, err)
	assert.Equal(t, KindOK, out.Kind)
	assert.Equal(t, http.StatusOK, out.Status)

	// un client token no pasa por /oauth2/auth si tiene subject
	out, err = e.d.Auth(ctx, ResourceRequest{Kind: ResourceClient, AccessToken: base.AccessToken})
	require.NoError(t, err)
	requireProblem(t, out, 401, ErrInvalidToken)

	out, err = e.d.UserInfo(ctx, ResourceRequest{AccessToken: base.AccessToken, OpenID: base.OpenID, RequiredScope: scope.UserInfo})
	require.NoError(t, err)
	requireProblem(t, out, 401, ErrInsufficientScope)
}

func TestUserInfo(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	iss := e.passwordGrant(t, scope.UserInfo)
	req := ResourceRequest{AccessToken: iss.AccessToken, OpenID: iss.OpenID, RequiredScope: scope.UserInfo}

	out, err := e.d.UserInfo(ctx, req)
	require.NoError(t, err)
	require.Equal(t, KindProfile, out.Kind)
	assert.Equal(t, iss.OpenID, out.Profile.OpenID)
	assert.Equal(t, "Alice", out.Profile.Nickname)

	e.advance(2 * time.Hour)
	out, err = e.d.UserInfo(ctx, req)
	require.NoError(t, err)
	requireProblem(t, out, 401, ErrExpiredToken)
}

type failingAdapter struct{}

func (failingAdapter) UserInfo(context.Context, string) (*userinfo.Profile, error) {
	return nil, repository.ErrNotFound
}

func TestUserInfo_AdapterFailure(t *testing.T) {
	e := newEnv(t, func(d *Deps) { d.UserInfo = failingAdapter{} })
	iss := e.passwordGrant(t, scope.UserInfo)
	out, err := e.d.UserInfo(context.Background(), ResourceRequest{AccessToken: iss.AccessToken, OpenID: iss.OpenID, RequiredScope: scope.UserInfo})
	require.NoError(t, err)
	requireProblem(t, out, 400, ErrInvalidUser)
}

// ====================================================================================
// Internal faults
// ====================================================================================

type downStore struct{ *memory.Store }

func (downStore) Clients() repository.ClientRepository { return downClients{} }

type downClients struct{}

func (downClients) Get(context.Context, string) (*repository.Client, error) {
	return nil, repository.ErrUnavailable
}
func (downClients) Create(context.Context, repository.ClientInput) (*repository.Client, error) {
	return nil, repository.ErrUnavailable
}
func (downClients) UpdateSecret(context.Context, string, string) error { return repository.ErrUnavailable }

func TestInternalFault(t *testing.T) {
	e := newEnv(t, withStore(downStore{memory.New()}))
	out, err := e.d.ClientCredentials(context.Background(), TokenRequest{GrantType: GrantClientCredentials, ClientID: "app", ClientSecret: "s3cret"})
	require.ErrorIs(t, err, repository.ErrUnavailable)
	requireProblem(t, out, 500, ErrServerError)
	assert.Empty(t, out.Problem.Description)
	assert.Equal(t, 1, e.rec.get("client_credentials/server_error"))
}
