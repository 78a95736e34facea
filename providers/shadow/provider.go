package shadow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	shadowclient "github.com/vatsimnerd/shadow-client"
)

const (
	DefaultSSOURL       = "https://sso.api-web.shadow.tech/api/v2"
	DefaultDiscoveryURL = "https://tinag.shadow.tech/gap"
	DefaultUserAgent    = "shadow-client/0.1"

	HeaderShadowUUID = "X-Shadow-Uuid"

	routeLogin        = "sso/auth/login"
	routeDiscovery    = "discovery"
	routeGatewayLogin = "shadow/auth_login"
	routeAuthUUID     = "shadow/auth_uuid"
	routeApproval     = "shadow/client/approval"
	routeVMIP         = "shadow/vm/ip"
	routeVMStart      = "shadow/vm/start"
)

var (
	log = logrus.WithField("module", "provider.shadow")

	// ErrMalformedResponse wraps every body that could not be decoded
	// into the expected schema.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError is returned by endpoints that only accept 200.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
}

type Provider struct {
	ssoURL       string
	discoveryURL string
	userAgent    string
	httpClient   *http.Client
	metrics      *Metrics
}

var _ shadowclient.Provider = (*Provider)(nil)

type Option func(*Provider)

func WithSSOURL(u string) Option {
	return func(p *Provider) { p.ssoURL = strings.TrimSuffix(u, "/") }
}

func WithDiscoveryURL(u string) Option {
	return func(p *Provider) { p.discoveryURL = u }
}

func WithUserAgent(ua string) Option {
	return func(p *Provider) { p.userAgent = ua }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

func New(httpClient *http.Client, opts ...Option) *Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	p := &Provider{
		ssoURL:       DefaultSSOURL,
		discoveryURL: DefaultDiscoveryURL,
		userAgent:    DefaultUserAgent,
		httpClient:   httpClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Login(ctx context.Context, deviceID, email, password string) (shadowclient.LoginTokens, error) {
	body, err := json.Marshal(LoginRequest{DeviceID: deviceID, Email: email, Password: password})
	if err != nil {
		return shadowclient.LoginTokens{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ssoURL+"/"+routeLogin, bytes.NewReader(body))
	if err != nil {
		log.WithError(err).Debug("error creating request")
		return shadowclient.LoginTokens{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var lr LoginResponse
	if err := p.doJSON(req, routeLogin, &lr); err != nil {
		return shadowclient.LoginTokens{}, err
	}
	if err := lr.validate(); err != nil {
		return shadowclient.LoginTokens{}, err
	}
	return shadowclient.LoginTokens{AccessToken: lr.Token, RefreshToken: lr.Refresh}, nil
}

func (p *Provider) DiscoverGateway(ctx context.Context, email string) (*url.URL, error) {
	u, err := url.Parse(p.discoveryURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("email", email)
	q.Set("fmt", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		log.WithError(err).Debug("error creating request")
		return nil, err
	}

	var dr DiscoveryResponse
	if err := p.doJSON(req, routeDiscovery, &dr); err != nil {
		return nil, err
	}
	return dr.gatewayURL()
}

func (p *Provider) GatewayLogin(ctx context.Context, gateway *url.URL, deviceID, accessToken string) (string, error) {
	body, err := json.Marshal(GatewayLoginRequest{Token: accessToken})
	if err != nil {
		return "", err
	}
	u := gatewayEndpoint(gateway, routeGatewayLogin, nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		log.WithError(err).Debug("error creating request")
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderShadowUUID, deviceID)

	var gr GatewayLoginResponse
	if err := p.doJSON(req, routeGatewayLogin, &gr); err != nil {
		return "", err
	}
	if err := gr.validate(); err != nil {
		return "", err
	}
	return gr.Token, nil
}

func (p *Provider) CheckDevice(ctx context.Context, s shadowclient.GatewaySession, deviceID string) (int, error) {
	return p.gatewayStatus(ctx, s, deviceID, routeAuthUUID, nil)
}

func (p *Provider) ApproveDevice(ctx context.Context, s shadowclient.GatewaySession, deviceID, code string) (int, error) {
	return p.gatewayStatus(ctx, s, deviceID, routeApproval, url.Values{"code": {code}})
}

func (p *Provider) StartVM(ctx context.Context, s shadowclient.GatewaySession, deviceID string) (int, error) {
	return p.gatewayStatus(ctx, s, deviceID, routeVMStart, nil)
}

func (p *Provider) VMAddress(ctx context.Context, s shadowclient.GatewaySession, deviceID string) (int, shadowclient.VMAddress, error) {
	resp, err := p.gatewayGet(ctx, s, deviceID, routeVMIP, nil)
	if err != nil {
		return 0, shadowclient.VMAddress{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return resp.StatusCode, shadowclient.VMAddress{}, nil
	}

	var ar VMAddressResponse
	if err := decodeJSON(resp.Body, &ar); err != nil {
		log.WithError(err).Debug("error unmarshaling vm address response")
		return resp.StatusCode, shadowclient.VMAddress{}, err
	}
	addr, err := ar.address()
	if err != nil {
		log.WithError(err).Debug("error decoding vm address")
		return resp.StatusCode, shadowclient.VMAddress{}, err
	}
	return resp.StatusCode, addr, nil
}

func (p *Provider) gatewayStatus(ctx context.Context, s shadowclient.GatewaySession, deviceID, route string, query url.Values) (int, error) {
	resp, err := p.gatewayGet(ctx, s, deviceID, route, query)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	drain(resp.Body)
	return resp.StatusCode, nil
}

func (p *Provider) gatewayGet(ctx context.Context, s shadowclient.GatewaySession, deviceID, route string, query url.Values) (*http.Response, error) {
	if s.URL == nil {
		return nil, shadowclient.ErrNoGatewaySession
	}
	u := gatewayEndpoint(s.URL, route, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		log.WithError(err).Debug("error creating request")
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+s.Token)
	req.Header.Set(HeaderShadowUUID, deviceID)
	return p.do(req, route)
}

func (p *Provider) do(req *http.Request, route string) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.userAgent)

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.metrics.observe(route, 0, time.Since(start))
		log.WithError(err).WithField("route", route).Debug("error sending request")
		return nil, err
	}
	p.metrics.observe(route, resp.StatusCode, time.Since(start))
	log.WithFields(logrus.Fields{"route": route, "status": resp.StatusCode}).Debug("response received")
	return resp, nil
}

// doJSON sends req and decodes a 200 response into v.
func (p *Provider) doJSON(req *http.Request, route string, v interface{}) error {
	resp, err := p.do(req, route)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return &StatusError{Op: route, StatusCode: resp.StatusCode}
	}
	if err := decodeJSON(resp.Body, v); err != nil {
		log.WithError(err).WithField("route", route).Debug("error unmarshaling response")
		return err
	}
	return nil
}

// gatewayEndpoint keeps the gateway scheme and host and replaces the
// path and query.
func gatewayEndpoint(base *url.URL, route string, query url.Values) *url.URL {
	u := *base
	u.Path = "/" + route
	u.RawPath = ""
	u.RawQuery = query.Encode()
	u.Fragment = ""
	return &u
}

func decodeJSON(r io.Reader, v interface{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		log.WithError(err).Debug("error reading response body")
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
}
