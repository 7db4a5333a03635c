package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jrsteele09/go-forward-auth/cookiesync"
	"github.com/jrsteele09/go-forward-auth/internal/config"
	"github.com/stretchr/testify/require"
)

func TestRootRedirectsUnauthenticatedToLogin(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = testAuthHost
	req.Header.Set("X-Forwarded-Host", testAppHost)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Uri", "/dashboard")

	loc := location(t, f.do(req))
	require.Equal(t, testAuthHost, loc.Host)
	require.Equal(t, "/login", loc.Path)
	require.Equal(t, "https://app.example.org/dashboard", loc.Query().Get("redirect_url"))
}

func TestRootPrefersRefreshOverLogin(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = testAuthHost
	req.AddCookie(f.refreshCookie(t, "alice", ""))

	loc := location(t, f.do(req))
	require.Equal(t, "/refresh", loc.Path)
}

func TestRootAuthenticatedStatus(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = testAuthHost
	req.AddCookie(f.accessCookie(t, "alice", ""))

	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["authenticated"])
	require.Equal(t, "alice", body["user"])
	require.Equal(t, "local_main", body["strategy"])
}

func TestRootAuthenticatedHonorsRedirect(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/?redirect_url=https%3A%2F%2Fapp.example.org%2Fdeep", nil)
	req.Host = testAuthHost
	req.AddCookie(f.accessCookie(t, "alice", ""))

	loc := location(t, f.do(req))
	require.Equal(t, "https://app.example.org/deep", loc.String())
	// The authenticated root never mutates cookies
	require.Empty(t, f.do(req).Result().Cookies())
}

func TestLoginListsProviders(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/login?redirect_url=https%3A%2F%2Fapp.example.org%2Fdeep", nil)
	req.Host = testAuthHost
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Title     string `json:"title"`
		Providers []struct {
			DisplayName string `json:"displayName"`
			LoginURL    string `json:"loginUrl"`
			Kind        string `json:"kind"`
		} `json:"providers"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Login", body.Title)
	require.Len(t, body.Providers, 1)
	require.Equal(t, "local", body.Providers[0].Kind)
	require.Equal(t, "/_local/main", body.Providers[0].LoginURL)

	// redirect_url gets stashed behind a session cookie
	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "_login_session" {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	require.NotEmpty(t, sessionCookie.Value)
}

func TestLoginBouncesToAuthHost(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.Host = testAppHost
	req.Header.Set("X-Forwarded-Proto", "https")

	loc := location(t, f.do(req))
	require.Equal(t, testAuthHost, loc.Host)
	require.Equal(t, "/login", loc.Path)
}

func TestLoginErrorEchoedToClient(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/login?error=Invalid+credentials", nil)
	req.Host = testAuthHost
	rec := f.do(req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Invalid credentials", body["error"])
}

// walkChain follows a cookie sync chain hop by hop through the same server,
// collecting the cookies each hop sets per host, and returns the final
// redirect target.
func walkChain(t *testing.T, f *fixture, first *url.URL) (cookiesByHost map[string][]*http.Cookie, final *url.URL) {
	t.Helper()
	cookiesByHost = make(map[string][]*http.Cookie)

	current := first
	for hops := 0; ; hops++ {
		require.Less(t, hops, 10, "cookie chain does not terminate")

		req := httptest.NewRequest(http.MethodGet, current.RequestURI(), nil)
		req.Host = current.Host
		req.Header.Set("X-Forwarded-Proto", current.Scheme)
		rec := f.do(req)

		cookiesByHost[current.Host] = append(cookiesByHost[current.Host], rec.Result().Cookies()...)

		next := location(t, rec)
		if next.Path != cookiesync.EndpointSet && next.Path != cookiesync.EndpointRemove {
			return cookiesByHost, next
		}
		current = next
	}
}

func TestLocalLoginSyncsCookiesAcrossHosts(t *testing.T) {
	f := newFixture(t, nil)

	// Step 1: the login page stashes the pending redirect_url
	loginReq := httptest.NewRequest(http.MethodGet, "/login?redirect_url=https%3A%2F%2Fapp.example.org%2Fdashboard", nil)
	loginReq.Host = testAuthHost
	loginRec := f.do(loginReq)
	require.Equal(t, http.StatusOK, loginRec.Code)
	sessionCookies := loginRec.Result().Cookies()
	require.NotEmpty(t, sessionCookies)

	// Step 2: post credentials to the local provider callback
	form := url.Values{}
	form.Set("username", testUsername)
	form.Set("password", testPassword)
	cbReq := postForm(testAuthHost, "/_local/main", form)
	cbReq.Header.Set("X-Forwarded-Proto", "https")
	for _, c := range sessionCookies {
		cbReq.AddCookie(c)
	}

	first := location(t, f.do(cbReq))
	require.Equal(t, testAuthHost, first.Host)
	require.Equal(t, cookiesync.EndpointSet, first.Path)
	require.NotEmpty(t, first.Query().Get(cookiesync.QueryParam))

	// Step 3: walk the chain across both cookie hosts
	cookiesByHost, final := walkChain(t, f, first)
	require.Equal(t, "https://app.example.org/dashboard", final.String())

	for _, host := range f.cfg.CookieHosts {
		byName := make(map[string]*http.Cookie)
		for _, c := range cookiesByHost[host] {
			byName[c.Name] = c
		}
		access := byName[f.cfg.AccessTokenName]
		refresh := byName[f.cfg.RefreshTokenName]
		require.NotNil(t, access, "host %s missing access cookie", host)
		require.NotNil(t, refresh, "host %s missing refresh cookie", host)
		require.Equal(t, host, access.Domain)
		require.True(t, access.HttpOnly)

		claims, err := f.codec.VerifyAccess(access.Value)
		require.NoError(t, err)
		require.Equal(t, testUsername, claims.User)
		require.Equal(t, "local_main", claims.Strategy)

		_, err = f.codec.VerifyRefresh(refresh.Value)
		require.NoError(t, err)
	}
}

func TestLocalLoginRejectionBouncesToLoginWithReason(t *testing.T) {
	f := newFixture(t, nil)

	form := url.Values{}
	form.Set("username", testUsername)
	form.Set("password", "wrong")
	req := postForm(testAuthHost, "/_local/main", form)

	loc := location(t, f.do(req))
	require.Equal(t, "/login", loc.Path)
	require.Equal(t, "Invalid credentials", loc.Query().Get("error"))
	// No cookie is ever issued on a failed login
	require.Empty(t, loc.Query().Get(cookiesync.QueryParam))
}

func TestRefreshReissuesAccessOnly(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/refresh?redirect_url=https%3A%2F%2Fapp.example.org%2Fback", nil)
	req.Host = testAuthHost
	req.AddCookie(f.refreshCookie(t, "alice", ""))

	first := location(t, f.do(req))
	require.Equal(t, cookiesync.EndpointSet, first.Path)

	job, err := f.chains.Verify(first.Query().Get(cookiesync.QueryParam))
	require.NoError(t, err)
	require.Len(t, job.Operations, 1)
	require.Equal(t, f.cfg.AccessTokenName, job.Operations[0].Name)
	require.False(t, job.Operations[0].Remove)

	claims, err := f.codec.VerifyAccess(job.Operations[0].Value)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.User)

	// The chain lands straight on the caller's destination
	require.Equal(t, "https://app.example.org/back", job.RedirectURL)
}

func TestRefreshWithoutRedirectLandsOnRoot(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/refresh", nil)
	req.Host = testAuthHost
	req.AddCookie(f.refreshCookie(t, "alice", ""))

	first := location(t, f.do(req))
	job, err := f.chains.Verify(first.Query().Get(cookiesync.QueryParam))
	require.NoError(t, err)

	landing, err := url.Parse(job.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, testAuthHost, landing.Host)
	require.Equal(t, "/", landing.Path)
}

func TestRefreshFailureClearsRefreshCookieOnly(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/refresh", nil)
	req.Host = testAuthHost
	req.AddCookie(&http.Cookie{Name: f.cfg.RefreshTokenName, Value: "expired-or-garbage"})

	first := location(t, f.do(req))
	require.Equal(t, cookiesync.EndpointRemove, first.Path)

	job, err := f.chains.Verify(first.Query().Get(cookiesync.QueryParam))
	require.NoError(t, err)
	require.Len(t, job.Operations, 1)
	require.Equal(t, f.cfg.RefreshTokenName, job.Operations[0].Name)
	require.True(t, job.Operations[0].Remove)

	landing, err := url.Parse(job.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "/login", landing.Path)
}

func TestLogoutRemovesBothCookiesEverywhere(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.Host = testAuthHost
	req.AddCookie(f.accessCookie(t, "alice", ""))
	req.AddCookie(f.refreshCookie(t, "alice", ""))

	first := location(t, f.do(req))
	require.Equal(t, cookiesync.EndpointRemove, first.Path)

	cookiesByHost, final := walkChain(t, f, first)
	require.Equal(t, testAuthHost, final.Host)

	for _, host := range f.cfg.CookieHosts {
		removed := make(map[string]bool)
		for _, c := range cookiesByHost[host] {
			if c.MaxAge < 0 && c.Value == "" {
				removed[c.Name] = true
			}
		}
		require.True(t, removed[f.cfg.AccessTokenName], "host %s keeps access cookie", host)
		require.True(t, removed[f.cfg.RefreshTokenName], "host %s keeps refresh cookie", host)
	}
}

func TestXHRLoginReceivesEveryCookieURL(t *testing.T) {
	f := newFixture(t, nil)

	form := url.Values{}
	form.Set("username", testUsername)
	form.Set("password", testPassword)
	req := postForm(testAuthHost, "/_local/main", form)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		CookieURLs []string `json:"cookieUrls"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.CookieURLs, len(f.cfg.CookieHosts))

	// One independently signed URL per host, each with its own hop index
	for i, raw := range body.CookieURLs {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, f.cfg.CookieHosts[i], u.Host)
		require.Equal(t, cookiesync.EndpointSet, u.Path)

		job, err := f.chains.Verify(u.Query().Get(cookiesync.QueryParam))
		require.NoError(t, err)
		require.Equal(t, i, job.Hop)
		require.Len(t, job.Operations, 2)
	}
}

func TestXHRLogoutReceivesEveryCookieURL(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.Host = testAuthHost
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.AddCookie(f.accessCookie(t, "alice", ""))
	req.AddCookie(f.refreshCookie(t, "alice", ""))

	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		CookieURLs []string `json:"cookieUrls"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.CookieURLs, len(f.cfg.CookieHosts))
	for _, raw := range body.CookieURLs {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, cookiesync.EndpointRemove, u.Path)
	}
}

func TestCookieSyncRejectsTamperedToken(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/set-cookies?t=forged-token", nil)
	req.Host = testAuthHost
	rec := f.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid token")
	require.Empty(t, rec.Result().Cookies())
	require.Empty(t, rec.Header().Get("Location"))
}

func TestCookieSyncRootDomainScoping(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.CookieHosts = []string{"auth.corp.example", "app.corp.example"}
		cfg.CookieHostsUseRoot = true
	})

	form := url.Values{}
	form.Set("username", testUsername)
	form.Set("password", testPassword)
	req := postForm(testAuthHost, "/_local/main", form)
	req.Header.Set("X-Forwarded-Proto", "https")

	cookiesByHost, _ := walkChain(t, f, location(t, f.do(req)))
	for host, cookies := range cookiesByHost {
		require.NotEmpty(t, cookies, "host %s set no cookies", host)
		for _, c := range cookies {
			require.Equal(t, ".corp.example", c.Domain)
		}
	}
}
