package shadowclient

import (
	"context"
	"net/url"
)

// Provider performs the network exchanges the Client sequences. Methods
// that hit a gateway route return the raw HTTP status so the Client can
// map it onto its own state; only transport and decode failures are
// returned as errors.
type Provider interface {
	Login(ctx context.Context, deviceID, email, password string) (LoginTokens, error)
	DiscoverGateway(ctx context.Context, email string) (*url.URL, error)
	GatewayLogin(ctx context.Context, gateway *url.URL, deviceID, accessToken string) (string, error)

	CheckDevice(ctx context.Context, s GatewaySession, deviceID string) (int, error)
	ApproveDevice(ctx context.Context, s GatewaySession, deviceID, code string) (int, error)

	// VMAddress decodes the address body only when the status is 200.
	VMAddress(ctx context.Context, s GatewaySession, deviceID string) (int, VMAddress, error)
	StartVM(ctx context.Context, s GatewaySession, deviceID string) (int, error)
}

// CredentialStore persists the account identity between runs.
// Load returns nil, nil when nothing has been stored yet.
type CredentialStore interface {
	Load() (*Credentials, error)
	Save(c Credentials) error
}

type LoginTokens struct {
	AccessToken  string
	RefreshToken string
}

type VMAddress struct {
	IP   string
	Port uint16
}
