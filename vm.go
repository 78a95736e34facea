package shadowclient

import (
	"context"
	"fmt"
	"net/http"
)

// VMState asks the gateway where the machine stands. Before the client
// is ready it returns an unknown state without touching the network.
func (c *Client) VMState(ctx context.Context) (VMState, error) {
	c.op.Lock()
	defer c.op.Unlock()

	if c.Phase() != PhaseReady {
		return VMState{Status: VMUnknown}, nil
	}

	s := c.gatewaySession()
	if s == nil {
		return VMState{Status: VMUnknown}, ErrNoGatewaySession
	}

	status, addr, err := c.p.VMAddress(ctx, *s, c.DeviceID())
	if err != nil {
		log.WithError(err).Debug("error fetching vm state")
		return VMState{Status: VMUnknown}, fmt.Errorf("vm state: %w", err)
	}

	state := vmStateFromStatus(status, addr)
	log.WithField("status", status).Debugf("vm is %s", state)
	return state, nil
}

func vmStateFromStatus(status int, addr VMAddress) VMState {
	switch status {
	case http.StatusOK:
		return VMState{Status: VMUp, Address: addr.IP, Port: addr.Port}
	case http.StatusTooManyRequests, 470, 471, 472:
		return VMState{Status: VMDown}
	case 473:
		return VMState{Status: VMStarting}
	default:
		return VMState{Status: VMUnknown}
	}
}

// StartVM asks the gateway to boot the machine. It does not wait for the
// machine to come up; poll VMState for that. It is a no-op before the
// client is ready.
func (c *Client) StartVM(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()

	if c.Phase() != PhaseReady {
		return nil
	}

	s := c.gatewaySession()
	if s == nil {
		return ErrNoGatewaySession
	}

	status, err := c.p.StartVM(ctx, *s, c.DeviceID())
	if err != nil {
		log.WithError(err).Debug("error starting vm")
		return fmt.Errorf("start vm: %w", err)
	}

	if status == http.StatusOK {
		log.Info("vm start requested")
	} else {
		log.WithField("status", status).Warn("unexpected status while starting vm")
	}
	return nil
}
