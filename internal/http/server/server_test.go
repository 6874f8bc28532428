package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/cache"
	"github.com/dropDatabas3/snsoauth/internal/config"
	"github.com/dropDatabas3/snsoauth/internal/domain/repository"
	"github.com/dropDatabas3/snsoauth/internal/security/password"
	"github.com/dropDatabas3/snsoauth/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const redirectURI = "https://app.example.com/cb"

var csrfFieldRE = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

type harness struct {
	srv    *httptest.Server
	client *http.Client
	jar    *cookiejar.Jar
	app    *App
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	ctx := context.Background()

	st := memory.New()
	_, err := st.Clients().Create(ctx, repository.ClientInput{
		ID: "app", Secret: "s3cret", Title: "App", Domain: "example.com",
	})
	require.NoError(t, err)
	hash, err := password.Hash(password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}, "hunter2")
	require.NoError(t, err)
	_, err = st.Users().Create(ctx, repository.CreateUserInput{
		Username: "alice", PasswordHash: hash, Nickname: "Alice", AvatarURL: "https://img.example.com/a.png",
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.OAuth.EnforceRedirectDomain = true
	cfg.CSRF.Secret = "test-secret-test-secret-test-secret"
	if mutate != nil {
		mutate(cfg)
	}

	app, err := Build(ctx, cfg, Options{Store: st, Cache: cache.NewMemory("t")})
	require.NoError(t, err)
	srv := httptest.NewServer(app.Handler)
	t.Cleanup(func() {
		srv.Close()
		_ = app.Close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &harness{
		srv: srv,
		jar: jar,
		app: app,
		client: &http.Client{
			Jar:     jar,
			Timeout: 5 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (h *harness) get(t *testing.T, path string, q url.Values) *http.Response {
	t.Helper()
	u := h.srv.URL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	resp, err := h.client.Get(u)
	require.NoError(t, err)
	return resp
}

func (h *harness) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := h.client.PostForm(h.srv.URL+path, form)
	require.NoError(t, err)
	return resp
}

func readJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	resp := h.postForm(t, "/oauth2/sns/login", url.Values{"username": {"alice"}, "password": {"hunter2"}})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func codeFrom(t *testing.T, resp *http.Response) url.Values {
	t.Helper()
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "app.example.com", loc.Host)
	return loc.Query()
}

func authorizeQuery(scope string) url.Values {
	return url.Values{
		"response_type": {"code"},
		"client_id":     {"app"},
		"redirect_uri":  {redirectURI},
		"scope":         {scope},
		"state":         {"xyz"},
	}
}

func TestFullConsentFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	// GET: snsapi_userinfo sin consentimiento previo => vista
	resp := h.get(t, "/oauth2/sns/authorize", authorizeQuery("snsapi_userinfo"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "form-action 'self' https://app.example.com;")
	page := readBody(t, resp)
	m := csrfFieldRE.FindStringSubmatch(page)
	require.Len(t, m, 2)

	// POST con un csrf_token inválido => JSON terminal
	form := authorizeQuery("snsapi_userinfo")
	form.Set("authorized", "true")
	form.Set("csrf_token", "forged")
	resp = h.postForm(t, "/oauth2/sns/authorize", form)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", readJSON(t, resp)["error"])

	// POST confirmando
	form.Set("csrf_token", m[1])
	q := codeFrom(t, h.postForm(t, "/oauth2/sns/authorize", form))
	assert.Equal(t, "xyz", q.Get("state"))
	code := q.Get("code")
	require.NotEmpty(t, code)

	// el consentimiento queda registrado: GET siguiente emite code directo
	again := codeFrom(t, h.get(t, "/oauth2/sns/authorize", authorizeQuery("snsapi_userinfo")))
	reissued := again.Get("code")
	require.NotEmpty(t, reissued)
	require.NotEqual(t, code, reissued)

	// el code nuevo reemplaza al anterior para el mismo client y usuario
	resp = h.postForm(t, "/oauth2/sns/access_token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"app"},
		"client_secret": {"s3cret"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_grant", readJSON(t, resp)["error"])
	code = reissued

	// canje del code
	resp = h.postForm(t, "/oauth2/sns/access_token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"app"},
		"client_secret": {"s3cret"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	tok := readJSON(t, resp)
	assert.Equal(t, "bearer", tok["token_type"])
	assert.Equal(t, "snsapi_userinfo", tok["scope"])
	accessToken, _ := tok["access_token"].(string)
	refreshToken, _ := tok["refresh_token"].(string)
	openID, _ := tok["openid"].(string)
	require.NotEmpty(t, accessToken)
	require.NotEmpty(t, refreshToken)
	require.NotEmpty(t, openID)

	// el code es de un solo uso
	resp = h.postForm(t, "/oauth2/sns/access_token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"app"},
		"client_secret": {"s3cret"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_grant", readJSON(t, resp)["error"])

	// userinfo
	resp = h.get(t, "/oauth2/sns/userinfo", url.Values{"access_token": {accessToken}, "openid": {openID}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := readJSON(t, resp)
	assert.Equal(t, openID, profile["openid"])
	assert.Equal(t, "Alice", profile["nickname"])

	// openid de otro subject
	resp = h.get(t, "/oauth2/sns/auth", url.Values{"access_token": {accessToken}, "openid": {"someone-else"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_token", readJSON(t, resp)["error"])

	// refresh: el access token anterior se revoca
	resp = h.postForm(t, "/oauth2/sns/refresh_token", url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"app"},
		"refresh_token": {refreshToken},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := readJSON(t, resp)
	assert.NotEqual(t, accessToken, rotated["access_token"])
	assert.NotEqual(t, refreshToken, rotated["refresh_token"])

	resp = h.get(t, "/oauth2/sns/auth", url.Values{"access_token": {accessToken}, "openid": {openID}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_token", readJSON(t, resp)["error"])

	resp = h.get(t, "/oauth2/sns/auth", url.Values{"access_token": {rotated["access_token"].(string)}, "openid": {openID}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"error": "ok"}, readJSON(t, resp))
}

func TestSilentBaseScopeAndDenial(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	q := codeFrom(t, h.get(t, "/oauth2/sns/authorize", authorizeQuery("snsapi_base")))
	assert.NotEmpty(t, q.Get("code"))

	resp := h.get(t, "/oauth2/sns/authorize", authorizeQuery("snsapi_userinfo"))
	page := readBody(t, resp)
	m := csrfFieldRE.FindStringSubmatch(page)
	require.Len(t, m, 2)

	form := authorizeQuery("snsapi_userinfo")
	form.Set("authorized", "false")
	form.Set("csrf_token", m[1])
	denied := codeFrom(t, h.postForm(t, "/oauth2/sns/authorize", form))
	assert.Empty(t, denied.Get("code"))
	assert.Equal(t, "xyz", denied.Get("state"))
}

func TestAuthorizeWithoutSession(t *testing.T) {
	h := newHarness(t, nil)
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/oauth2/sns/authorize?"+authorizeQuery("snsapi_base").Encode(), nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "login_required", readJSON(t, resp)["error"])

	h = newHarness(t, func(c *config.Config) { c.OAuth.LoginURL = "/login" })
	resp = h.get(t, "/oauth2/sns/authorize", authorizeQuery("snsapi_base"))
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.True(t, strings.HasPrefix(loc.Query().Get("return_to"), "/oauth2/sns/authorize?"))

	// la confirmación sin sesión vuelve al GET equivalente con sus parámetros
	form := authorizeQuery("snsapi_userinfo")
	form.Set("authorized", "true")
	form.Set("csrf_token", "tok")
	resp = h.postForm(t, "/oauth2/sns/authorize", form)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err = url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	back, err := url.Parse(loc.Query().Get("return_to"))
	require.NoError(t, err)
	assert.Equal(t, "/oauth2/sns/authorize", back.Path)
	assert.Equal(t, authorizeQuery("snsapi_userinfo"), back.Query())
}

func TestAuthorizeRejectsForeignRedirect(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	q := authorizeQuery("snsapi_base")
	q.Set("redirect_uri", "https://evil.test/cb")
	resp := h.get(t, "/oauth2/sns/authorize", q)
	body := readBody(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Location"))
	assert.Contains(t, body, "invalid_redirect_uri")
}

func TestClientCredentials(t *testing.T) {
	h := newHarness(t, nil)

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/oauth2/token",
		strings.NewReader(url.Values{"grant_type": {"client_credentials"}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("app", "s3cret")
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok := readJSON(t, resp)
	assert.Nil(t, tok["refresh_token"])
	access, _ := tok["access_token"].(string)
	require.NotEmpty(t, access)

	resp = h.get(t, "/oauth2/auth", url.Values{"access_token": {access}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", readJSON(t, resp)["error"])

	resp = h.postForm(t, "/oauth2/token", url.Values{
		"grant_type": {"client_credentials"}, "client_id": {"app"}, "client_secret": {"wrong"},
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized_client", readJSON(t, resp)["error"])

	resp = h.postForm(t, "/oauth2/token", url.Values{"client_id": {"app"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", readJSON(t, resp)["error"])

	resp = h.get(t, "/oauth2/token", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPasswordGrantAndBearerStyles(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.OAuth.TokenParamStyle = "header" })

	resp := h.postForm(t, "/oauth2/sns/access_token", url.Values{
		"grant_type":    {"password"},
		"client_id":     {"app"},
		"client_secret": {"s3cret"},
		"username":      {"alice"},
		"password":      {"hunter2"},
		"scope":         {"snsapi_userinfo"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok := readJSON(t, resp)
	access, _ := tok["access_token"].(string)
	openID, _ := tok["openid"].(string)

	// con style=header la query no cuenta
	resp = h.get(t, "/oauth2/sns/auth", url.Values{"access_token": {access}, "openid": {openID}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", readJSON(t, resp)["error"])

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/oauth2/sns/userinfo?openid="+url.QueryEscape(openID), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err = h.client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, openID, readJSON(t, resp)["openid"])
}

func TestLogout(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	u, err := url.Parse(h.srv.URL)
	require.NoError(t, err)
	var csrfValue string
	for _, c := range h.jar.Cookies(u) {
		if c.Name == "csrf_token" {
			csrfValue = c.Value
		}
	}
	require.NotEmpty(t, csrfValue)

	// sin header CSRF
	resp := h.postForm(t, "/oauth2/sns/logout", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/oauth2/sns/logout", nil)
	require.NoError(t, err)
	req.Header.Set("X-CSRF-Token", csrfValue)
	resp, err = h.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// sin sesión vuelve a pedir login
	req, err = http.NewRequest(http.MethodGet, h.srv.URL+"/oauth2/sns/authorize?"+authorizeQuery("snsapi_base").Encode(), nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	resp, err = h.client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.postForm(t, "/oauth2/sns/login", url.Values{"username": {"alice"}, "password": {"nope"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", readJSON(t, resp)["code"])
}

func TestReadyzAndMetrics(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.get(t, "/readyz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", readJSON(t, resp)["status"])

	// genera al menos un outcome
	resp = h.postForm(t, "/oauth2/token", url.Values{"grant_type": {"client_credentials"}, "client_id": {"ghost"}})
	resp.Body.Close()

	resp = h.get(t, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "oauth_grant_outcomes_total")
	assert.Contains(t, body, "http_requests_total")
}

func TestRateLimitedTokenEndpoint(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Rate.Enabled = true
		c.Rate.MaxRequests = 1
		c.Rate.Window = config.Duration(time.Hour)
	})
	form := url.Values{"grant_type": {"client_credentials"}, "client_id": {"app"}, "client_secret": {"s3cret"}}
	resp := h.postForm(t, "/oauth2/token", form)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.postForm(t, "/oauth2/token", form)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
