// Package cookiesync implements the multi-host cookie synchronization
// protocol. A single response can only set cookies scoped to its own domain,
// so a cookie mutation is carried across every configured cookie host by a
// client-driven chain of redirects. Each hop is authenticated purely by a
// short-lived signed token; nothing is stored server-side.
package cookiesync

import (
	"net/url"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-forward-auth/internal/errors"
	"github.com/jrsteele09/go-forward-auth/token"
)

const (
	// EndpointSet applies cookie values on the receiving host
	EndpointSet = "/set-cookies"
	// EndpointRemove deletes cookies on the receiving host
	EndpointRemove = "/remove-cookies"

	// QueryParam carries the signed job token
	QueryParam = "t"

	// DefaultJobTTL bounds how long a hop token stays usable
	DefaultJobTTL = 5 * time.Minute
)

// Operation is a single cookie mutation applied on every cookie host.
// Remove deletes the cookie; attributes must match the ones used to set it.
type Operation struct {
	Name   string `json:"name"`
	Value  string `json:"value,omitempty"`
	Remove bool   `json:"remove,omitempty"`
	MaxAge int    `json:"max_age,omitempty"`
}

// Job is the signed envelope driving one hop of the chain. Hop is only ever
// trusted because it sits inside the signed payload; a hop receiving a
// tampered job rejects it outright.
type Job struct {
	Operations  []Operation `json:"cookies"`
	RedirectURL string      `json:"redirect_url"`
	Hop         int         `json:"hop"`
	jwtlib.RegisteredClaims
}

// Protocol builds and verifies hop tokens for a fixed set of cookie hosts
type Protocol struct {
	hosts   []string
	prefix  string
	signer  token.Signer
	useRoot bool
	ttl     time.Duration
	nowFunc func() time.Time
}

// ProtocolOption configures a Protocol
type ProtocolOption func(*Protocol)

// WithJobTTL overrides the hop token lifetime
func WithJobTTL(ttl time.Duration) ProtocolOption {
	return func(p *Protocol) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithRootDomainCookies scopes applied cookies to the registrable root
// domain of each host instead of the exact host
func WithRootDomainCookies(useRoot bool) ProtocolOption {
	return func(p *Protocol) {
		p.useRoot = useRoot
	}
}

// WithNowFunc overrides the time source, for tests
func WithNowFunc(now func() time.Time) ProtocolOption {
	return func(p *Protocol) {
		p.nowFunc = now
	}
}

// New creates a Protocol for the given cookie hosts. The secret is the sole
// trust anchor of the chain and must be shared by every instance.
func New(hosts []string, prefix, secret string, options ...ProtocolOption) *Protocol {
	p := &Protocol{
		hosts:   hosts,
		prefix:  prefix,
		signer:  token.NewHMACSigner(secret),
		ttl:     DefaultJobTTL,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Hosts returns the configured cookie hosts in chain order
func (p *Protocol) Hosts() []string {
	return p.hosts
}

// FirstHop builds the URL starting a chain on hosts[0]. endpoint is
// EndpointSet or EndpointRemove.
func (p *Protocol) FirstHop(scheme, endpoint, redirectURL string, ops []Operation) (string, error) {
	return p.hopURL(scheme, endpoint, Job{
		Operations:  ops,
		RedirectURL: redirectURL,
		Hop:         0,
	})
}

// AllHops signs one URL per configured host, each carrying its own hop
// index. Clients that cannot follow a redirect chain fetch every URL
// themselves instead.
func (p *Protocol) AllHops(scheme, endpoint, redirectURL string, ops []Operation) ([]string, error) {
	urls := make([]string, 0, len(p.hosts))
	for i := range p.hosts {
		u, err := p.hopURL(scheme, endpoint, Job{
			Operations:  ops,
			RedirectURL: redirectURL,
			Hop:         i,
		})
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// NextHop re-signs a verified job for the following host. final reports that
// the received hop was the last one and the chain must end with a redirect
// to the job's final URL instead.
func (p *Protocol) NextHop(scheme, endpoint string, job *Job) (nextURL string, final bool, err error) {
	if job.Hop >= len(p.hosts)-1 {
		return "", true, nil
	}
	next := Job{
		Operations:  job.Operations,
		RedirectURL: job.RedirectURL,
		Hop:         job.Hop + 1,
	}
	u, err := p.hopURL(scheme, endpoint, next)
	if err != nil {
		return "", false, err
	}
	return u, false, nil
}

// Verify validates a hop token. Every failure mode answers with
// ErrTamperedPayload; an unsigned or altered payload is never processed.
func (p *Protocol) Verify(raw string) (*Job, error) {
	job := &Job{}
	parsed, err := jwtlib.ParseWithClaims(raw, job, p.signer.GetVerificationKey,
		jwtlib.WithValidMethods([]string{p.signer.GetSigningMethod().Alg()}),
		jwtlib.WithTimeFunc(p.nowFunc),
	)
	if err != nil || !parsed.Valid {
		return nil, errors.ErrTamperedPayload
	}
	if job.Hop < 0 || job.Hop >= len(p.hosts) {
		return nil, errors.ErrTamperedPayload
	}
	return job, nil
}

// CookieDomain returns the domain attribute for cookies applied on host:
// the bare hostname, or its registrable root when root scoping is enabled.
func (p *Protocol) CookieDomain(host string) string {
	hostname := host
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i:], "]") {
		hostname = host[:i]
	}
	if !p.useRoot {
		return hostname
	}
	parts := strings.Split(hostname, ".")
	if len(parts) < 2 {
		return hostname
	}
	return "." + strings.Join(parts[len(parts)-2:], ".")
}

func (p *Protocol) hopURL(scheme, endpoint string, job Job) (string, error) {
	now := p.nowFunc()
	job.RegisteredClaims = jwtlib.RegisteredClaims{
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(p.ttl)),
	}

	signed, err := p.signer.Sign(job)
	if err != nil {
		return "", errors.Wrapf(err, "cookiesync sign hop %d", job.Hop)
	}

	if scheme == "" {
		scheme = "http"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   p.hosts[job.Hop],
		Path:   p.prefix + endpoint,
	}
	q := url.Values{}
	q.Set(QueryParam, signed)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
