// Package shadowclient drives the login journey of a single cloud PC
// account and, once authorized, queries and starts its virtual machine.
//
// The caller owns the loop: call Advance, inspect Phase, supply whatever
// input the phase asks for, and call Advance again until the phase is
// PhaseReady.
package shadowclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vatsimnerd/shadow-client/deviceinfo"
)

var (
	log = logrus.WithField("module", "client")

	// ErrNoGatewaySession is returned when a gateway call is attempted
	// before discovery has completed.
	ErrNoGatewaySession = errors.New("no gateway session")
)

type Client struct {
	p        Provider
	store    CredentialStore
	deviceID func() (string, error)

	// op serializes every operation so only one exchange is in flight.
	op sync.Mutex

	mu      sync.RWMutex
	phase   AuthPhase
	creds   *Credentials
	session *GatewaySession
}

type Option func(*Client)

// WithDeviceIDFunc replaces the machine-derived device identifier used
// on first login.
func WithDeviceIDFunc(f func() (string, error)) Option {
	return func(c *Client) {
		c.deviceID = f
	}
}

// New creates a Client and loads any stored credentials. A store that
// cannot be read leaves the client without credentials.
func New(provider Provider, store CredentialStore, opts ...Option) *Client {
	c := &Client{
		p:        provider,
		store:    store,
		deviceID: deviceinfo.DeviceID,
	}
	for _, opt := range opts {
		opt(c)
	}

	creds, err := store.Load()
	if err != nil {
		log.WithError(err).Warn("stored credentials unreadable, starting empty")
	} else if creds != nil && creds.DeviceID != "" {
		c.creds = creds
	}
	return c
}

// Phase returns the current authentication phase.
func (c *Client) Phase() AuthPhase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Credentials returns a copy of the stored credentials, or nil.
func (c *Client) Credentials() *Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.creds == nil {
		return nil
	}
	creds := *c.creds
	return &creds
}

// DeviceID returns the stored device identifier, or "" before the
// first successful login.
func (c *Client) DeviceID() string {
	if creds := c.Credentials(); creds != nil {
		return creds.DeviceID
	}
	return ""
}

func (c *Client) setPhase(p AuthPhase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != p {
		log.WithFields(logrus.Fields{"from": c.phase, "to": p}).Debug("phase changed")
	}
	c.phase = p
}

func (c *Client) gatewaySession() *GatewaySession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Advance moves the login journey forward as far as it can go without
// more user input. Errors are transport or decode failures; the phase
// is left untouched when one is returned.
func (c *Client) Advance(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()

	creds := c.Credentials()
	if creds == nil {
		c.setPhase(PhaseAwaitingPrimaryCredentials)
		return nil
	}

	if err := c.resolveSession(ctx, *creds); err != nil {
		return err
	}

	// A second uuid check would mail the user another code.
	if c.Phase() == PhaseAwaitingConfirmationCode {
		return nil
	}

	return c.checkDevice(ctx, creds.DeviceID)
}

func (c *Client) checkDevice(ctx context.Context, deviceID string) error {
	s := c.gatewaySession()
	if s == nil {
		return ErrNoGatewaySession
	}

	status, err := c.p.CheckDevice(ctx, *s, deviceID)
	if err != nil {
		log.WithError(err).Debug("error checking device")
		return fmt.Errorf("check device: %w", err)
	}

	switch status {
	case http.StatusOK:
		log.Info("device already approved")
		c.setPhase(PhaseReady)
	case http.StatusPreconditionFailed:
		log.Info("device not approved, confirmation code sent by email")
		c.setPhase(PhaseAwaitingConfirmationCode)
	default:
		log.WithField("status", status).Warn("unexpected status while checking device")
	}
	return nil
}

// SubmitPrimaryCredentials logs in with email and password and persists
// the resulting credentials. It does not change the phase; call Advance
// afterwards.
func (c *Client) SubmitPrimaryCredentials(ctx context.Context, email, password string) error {
	c.op.Lock()
	defer c.op.Unlock()

	deviceID := c.DeviceID()
	if deviceID == "" {
		id, err := c.deviceID()
		if err != nil {
			log.WithError(err).Debug("error deriving device id")
			return fmt.Errorf("derive device id: %w", err)
		}
		deviceID = id
	}

	tokens, err := c.p.Login(ctx, deviceID, email, password)
	if err != nil {
		log.WithError(err).WithField("email", email).Debug("error logging in")
		return fmt.Errorf("login: %w", err)
	}

	creds := Credentials{
		DeviceID:     deviceID,
		Email:        email,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}
	if err := c.store.Save(creds); err != nil {
		log.WithError(err).Debug("error saving credentials")
		return fmt.Errorf("save credentials: %w", err)
	}

	c.mu.Lock()
	c.creds = &creds
	c.mu.Unlock()

	log.WithField("email", email).Info("logged in")
	return nil
}

// SubmitConfirmationCode sends the emailed code that approves this
// device. It does nothing unless the client is waiting for a code. A
// rejected code keeps the client waiting and is not an error.
func (c *Client) SubmitConfirmationCode(ctx context.Context, code string) error {
	c.op.Lock()
	defer c.op.Unlock()

	if c.Phase() != PhaseAwaitingConfirmationCode {
		return nil
	}

	s := c.gatewaySession()
	if s == nil {
		return ErrNoGatewaySession
	}

	status, err := c.p.ApproveDevice(ctx, *s, c.DeviceID(), code)
	if err != nil {
		log.WithError(err).Debug("error sending confirmation code")
		return fmt.Errorf("approve device: %w", err)
	}

	switch status {
	case http.StatusOK:
		log.Info("confirmation code accepted")
		c.setPhase(PhaseReady)
	case http.StatusForbidden:
		log.Info("confirmation code rejected")
	default:
		log.WithField("status", status).Warn("unexpected status while sending confirmation code")
	}
	return nil
}
