package shadow

import (
	"fmt"
	"net/url"
	"strconv"

	shadowclient "github.com/vatsimnerd/shadow-client"
)

type LoginRequest struct {
	DeviceID string `json:"device_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token   string `json:"token"`
	Refresh string `json:"refresh"`
}

func (r *LoginResponse) validate() error {
	if r.Token == "" {
		return fmt.Errorf("%w: login response without token", ErrMalformedResponse)
	}
	return nil
}

type DiscoveryResponse struct {
	URI string `json:"uri"`
}

func (r *DiscoveryResponse) gatewayURL() (*url.URL, error) {
	u, err := url.Parse(r.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway uri: %v", ErrMalformedResponse, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: gateway uri %q is not absolute", ErrMalformedResponse, r.URI)
	}
	return u, nil
}

type GatewayLoginRequest struct {
	Token string `json:"token"`
}

type GatewayLoginResponse struct {
	Token string `json:"token"`
}

func (r *GatewayLoginResponse) validate() error {
	if r.Token == "" {
		return fmt.Errorf("%w: gateway login response without token", ErrMalformedResponse)
	}
	return nil
}

// VMAddressResponse carries the port as a decimal string.
type VMAddressResponse struct {
	IP   string `json:"ip"`
	Port string `json:"port"`
}

func (r *VMAddressResponse) address() (shadowclient.VMAddress, error) {
	port, err := strconv.ParseUint(r.Port, 10, 16)
	if err != nil {
		return shadowclient.VMAddress{}, fmt.Errorf("%w: port %q is not a number", ErrMalformedResponse, r.Port)
	}
	return shadowclient.VMAddress{IP: r.IP, Port: uint16(port)}, nil
}
