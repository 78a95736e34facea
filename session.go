package shadowclient

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// resolveSession discovers the account gateway and trades the access
// token for a gateway token. It runs at most once per Client.
func (c *Client) resolveSession(ctx context.Context, creds Credentials) error {
	if c.gatewaySession() != nil {
		return nil
	}

	gateway, err := c.p.DiscoverGateway(ctx, creds.Email)
	if err != nil {
		log.WithError(err).WithField("email", creds.Email).Debug("error discovering gateway")
		return fmt.Errorf("discover gateway: %w", err)
	}
	log.WithField("gateway", gateway.String()).Info("gateway discovered")

	token, err := c.p.GatewayLogin(ctx, gateway, creds.DeviceID, creds.AccessToken)
	if err != nil {
		log.WithError(err).Debug("error logging in to gateway")
		return fmt.Errorf("gateway login: %w", err)
	}
	log.WithFields(logrus.Fields{"gateway": gateway.Host, "token": redact(token)}).Debug("gateway token acquired")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		c.session = &GatewaySession{URL: gateway, Token: token}
	}
	return nil
}

func redact(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return token[:6] + "***"
}
