// Package kratos adapts an Ory Kratos deployment to the identity provider port.
// The public API serves native login, session lookup and logout; the admin API
// serves account creation, lookup and deletion.
package kratos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	kratosclient "github.com/ory/kratos-client-go"

	"signbridge/internal/identity"
	"signbridge/internal/platform/config"
	"signbridge/pkg/platform/sentinel"
)

const passwordMethod = "password"

type Provider struct {
	public   *kratosclient.APIClient
	admin    *kratosclient.APIClient
	schemaID string
	logger   *slog.Logger
	hub      *identity.Hub

	mu    sync.RWMutex
	token string
}

type Option func(*Provider)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHTTPClient replaces the client used for both APIs.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.public.GetConfig().HTTPClient = c
		p.admin.GetConfig().HTTPClient = c
	}
}

func New(cfg config.KratosConfig, opts ...Option) (*Provider, error) {
	if !isValidURL(cfg.PublicURL) {
		return nil, fmt.Errorf("invalid kratos public url: %q", cfg.PublicURL)
	}
	if !isValidURL(cfg.AdminURL) {
		return nil, fmt.Errorf("invalid kratos admin url: %q", cfg.AdminURL)
	}
	schemaID := cfg.SchemaID
	if schemaID == "" {
		schemaID = "default"
	}
	p := &Provider{
		public:   newAPIClient(cfg.PublicURL),
		admin:    newAPIClient(cfg.AdminURL),
		schemaID: schemaID,
		logger:   slog.Default(),
		hub:      identity.NewHub(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func newAPIClient(serverURL string) *kratosclient.APIClient {
	c := kratosclient.NewConfiguration()
	c.Servers = []kratosclient.ServerConfiguration{{URL: serverURL}}
	c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	if c.DefaultHeader == nil {
		c.DefaultHeader = make(map[string]string)
	}
	c.DefaultHeader["Accept"] = "application/json"
	return kratosclient.NewAPIClient(c)
}

func (p *Provider) CreateAccount(ctx context.Context, email, password string, meta identity.Metadata) (*identity.Identity, error) {
	body := kratosclient.CreateIdentityBody{
		SchemaId: p.schemaID,
		Traits: map[string]interface{}{
			"email": strings.ToLower(strings.TrimSpace(email)),
			"name":  meta.Name,
			"role":  meta.Role,
		},
		Credentials: &kratosclient.IdentityWithCredentials{
			Password: &kratosclient.IdentityWithCredentialsPassword{
				Config: &kratosclient.IdentityWithCredentialsPasswordConfig{Password: &password},
			},
		},
	}
	created, httpResp, err := p.admin.IdentityAPI.CreateIdentity(ctx).CreateIdentityBody(body).Execute()
	if err != nil {
		return nil, p.translate(err, httpResp, "create_identity")
	}
	p.logger.InfoContext(ctx, "kratos identity created", "identity_id", created.GetId())
	return toIdentity(created), nil
}

func (p *Provider) Authenticate(ctx context.Context, email, password string) (*identity.Session, error) {
	flow, httpResp, err := p.public.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return nil, p.translate(err, httpResp, "create_login_flow")
	}

	method := kratosclient.UpdateLoginFlowWithPasswordMethod{
		Identifier: strings.ToLower(strings.TrimSpace(email)),
		Method:     passwordMethod,
		Password:   password,
	}
	login, httpResp, err := p.public.FrontendAPI.
		UpdateLoginFlow(ctx).
		Flow(flow.GetId()).
		UpdateLoginFlowBody(kratosclient.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&method)).
		Execute()
	if err != nil {
		if code := statusOf(httpResp); code == http.StatusBadRequest || code == http.StatusUnauthorized {
			return nil, identity.ErrInvalidCredentials
		}
		return nil, p.translate(err, httpResp, "update_login_flow")
	}

	ks := login.GetSession()
	sess := toSession(&ks, login.GetSessionToken())

	p.mu.Lock()
	p.token = sess.Token
	p.mu.Unlock()

	p.hub.Publish(ctx, identity.Event{Type: identity.EventSignedIn, Identity: sess.Identity, Session: sess, At: time.Now()})
	return sess, nil
}

// CurrentSession resolves the held session token. A token the provider no
// longer accepts is dropped and reported as no session.
func (p *Provider) CurrentSession(ctx context.Context) (*identity.Session, error) {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()
	if token == "" {
		return nil, nil
	}

	ks, httpResp, err := p.public.FrontendAPI.ToSession(ctx).XSessionToken(token).Execute()
	if err != nil {
		if statusOf(httpResp) == http.StatusUnauthorized {
			p.clearToken(token)
			return nil, nil
		}
		return nil, p.translate(err, httpResp, "to_session")
	}
	return toSession(ks, token), nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()
	if token == "" {
		return nil
	}

	httpResp, err := p.public.FrontendAPI.
		PerformNativeLogout(ctx).
		PerformNativeLogoutBody(*kratosclient.NewPerformNativeLogoutBody(token)).
		Execute()
	if err != nil && statusOf(httpResp) != http.StatusUnauthorized {
		return p.translate(err, httpResp, "native_logout")
	}
	p.clearToken(token)
	p.hub.Publish(ctx, identity.Event{Type: identity.EventSignedOut, At: time.Now()})
	return nil
}

func (p *Provider) GetIdentity(ctx context.Context, id string) (*identity.Identity, error) {
	ki, httpResp, err := p.admin.IdentityAPI.GetIdentity(ctx, id).Execute()
	if err != nil {
		return nil, p.translate(err, httpResp, "get_identity")
	}
	return toIdentity(ki), nil
}

func (p *Provider) DeleteIdentity(ctx context.Context, id string) error {
	httpResp, err := p.admin.IdentityAPI.DeleteIdentity(ctx, id).Execute()
	if err != nil {
		return p.translate(err, httpResp, "delete_identity")
	}
	p.logger.InfoContext(ctx, "kratos identity deleted", "identity_id", id)
	return nil
}

func (p *Provider) Subscribe(handler identity.Handler) func() {
	return p.hub.Subscribe(handler)
}

func (p *Provider) clearToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == token {
		p.token = ""
	}
}

func (p *Provider) translate(err error, httpResp *http.Response, operation string) error {
	code := statusOf(httpResp)
	p.logger.Warn("kratos request failed", "operation", operation, "http_status", code, "error", err)

	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("kratos %s: %w", operation, sentinel.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("kratos %s: %w", operation, sentinel.ErrConflict)
	case http.StatusGone:
		return fmt.Errorf("kratos %s: %w", operation, sentinel.ErrExpired)
	case 0, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("kratos %s: %w", operation, errors.Join(sentinel.ErrUnavailable, err))
	default:
		return fmt.Errorf("kratos %s: status %d: %w", operation, code, err)
	}
}

func toIdentity(ki *kratosclient.Identity) *identity.Identity {
	if ki == nil {
		return nil
	}
	out := &identity.Identity{
		ID:        ki.GetId(),
		CreatedAt: ki.GetCreatedAt(),
	}
	if traits, ok := ki.GetTraits().(map[string]interface{}); ok {
		out.Email, _ = traits["email"].(string)
		out.Metadata.Name, _ = traits["name"].(string)
		out.Metadata.Role, _ = traits["role"].(string)
	}
	for _, addr := range ki.GetVerifiableAddresses() {
		if addr.GetVerified() && strings.EqualFold(addr.GetValue(), out.Email) {
			out.EmailVerified = true
		}
	}
	return out
}

func toSession(ks *kratosclient.Session, token string) *identity.Session {
	ki := ks.GetIdentity()
	ident := toIdentity(&ki)
	sess := &identity.Session{
		Token:     token,
		Identity:  ident,
		ExpiresAt: ks.GetExpiresAt(),
	}
	if ident != nil {
		sess.IdentityID = ident.ID
	}
	return sess
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func isValidURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}
