package shadowclient

import (
	"fmt"
	"net/url"
)

// AuthPhase is the position of the Client in the login journey.
type AuthPhase int

const (
	PhaseUnknown AuthPhase = iota
	PhaseAwaitingPrimaryCredentials
	PhaseAwaitingConfirmationCode
	PhaseReady
)

func (p AuthPhase) String() string {
	switch p {
	case PhaseAwaitingPrimaryCredentials:
		return "awaiting_primary_credentials"
	case PhaseAwaitingConfirmationCode:
		return "awaiting_confirmation_code"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Credentials is the durable identity of this installation. DeviceID is
// also sent as the X-Shadow-Uuid header on every gateway call.
type Credentials struct {
	DeviceID     string `json:"device_id"`
	Email        string `json:"email"`
	RefreshToken string `json:"refresh"`
	AccessToken  string `json:"token"`
}

// GatewaySession is the per-account gateway base URL and the token it
// issued. It lives for the whole process.
type GatewaySession struct {
	URL   *url.URL
	Token string
}

type VMStatus int

const (
	VMUnknown VMStatus = iota
	VMDown
	VMStarting
	VMUp
)

func (s VMStatus) String() string {
	switch s {
	case VMDown:
		return "down"
	case VMStarting:
		return "starting"
	case VMUp:
		return "up"
	default:
		return "unknown"
	}
}

// VMState is a point-in-time view of the remote machine. Address and
// Port are only set when Status is VMUp.
type VMState struct {
	Status  VMStatus
	Address string
	Port    uint16
}

func (s VMState) String() string {
	if s.Status == VMUp {
		return fmt.Sprintf("up %s:%d", s.Address, s.Port)
	}
	return s.Status.String()
}
