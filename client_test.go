package shadowclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls map[string]int

	loginTokens LoginTokens
	loginErr    error
	loginArgs   []string

	gateway        *url.URL
	discoverErr    error
	discoverEmails []string
	gatewayToken   string

	checkStatus   int
	approveStatus int
	approveCodes  []string
	vmStatus      int
	vmAddr        VMAddress
	vmErr         error
	startStatus   int

	deviceIDs []string
}

func newFakeProvider() *fakeProvider {
	gw, _ := url.Parse("https://gap.example.com/gap/abc")
	return &fakeProvider{
		calls:         map[string]int{},
		loginTokens:   LoginTokens{AccessToken: "T", RefreshToken: "R"},
		gateway:       gw,
		gatewayToken:  "G",
		checkStatus:   http.StatusOK,
		approveStatus: http.StatusOK,
		vmStatus:      http.StatusOK,
		vmAddr:        VMAddress{IP: "10.0.0.1", Port: 8443},
		startStatus:   http.StatusOK,
	}
}

func (f *fakeProvider) record(name, deviceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if deviceID != "" {
		f.deviceIDs = append(f.deviceIDs, deviceID)
	}
}

func (f *fakeProvider) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeProvider) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeProvider) Login(ctx context.Context, deviceID, email, password string) (LoginTokens, error) {
	f.record("login", deviceID)
	f.loginArgs = []string{deviceID, email, password}
	return f.loginTokens, f.loginErr
}

func (f *fakeProvider) DiscoverGateway(ctx context.Context, email string) (*url.URL, error) {
	f.record("discover", "")
	f.discoverEmails = append(f.discoverEmails, email)
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return f.gateway, nil
}

func (f *fakeProvider) GatewayLogin(ctx context.Context, gateway *url.URL, deviceID, accessToken string) (string, error) {
	f.record("gateway_login", deviceID)
	return f.gatewayToken, nil
}

func (f *fakeProvider) CheckDevice(ctx context.Context, s GatewaySession, deviceID string) (int, error) {
	f.record("check", deviceID)
	return f.checkStatus, nil
}

func (f *fakeProvider) ApproveDevice(ctx context.Context, s GatewaySession, deviceID, code string) (int, error) {
	f.record("approve", deviceID)
	f.approveCodes = append(f.approveCodes, code)
	return f.approveStatus, nil
}

func (f *fakeProvider) VMAddress(ctx context.Context, s GatewaySession, deviceID string) (int, VMAddress, error) {
	f.record("vm_ip", deviceID)
	return f.vmStatus, f.vmAddr, f.vmErr
}

func (f *fakeProvider) StartVM(ctx context.Context, s GatewaySession, deviceID string) (int, error) {
	f.record("vm_start", deviceID)
	return f.startStatus, nil
}

type memStore struct {
	creds   *Credentials
	loadErr error
	saveErr error
	saved   []Credentials
}

func (m *memStore) Load() (*Credentials, error) {
	return m.creds, m.loadErr
}

func (m *memStore) Save(c Credentials) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, c)
	return nil
}

func storedCreds() *memStore {
	return &memStore{creds: &Credentials{DeviceID: "D", Email: "a@b.com", AccessToken: "T", RefreshToken: "R"}}
}

func fixedDeviceID(id string, calls *int) Option {
	return WithDeviceIDFunc(func() (string, error) {
		*calls++
		return id, nil
	})
}

func TestAdvanceWithoutCredentials(t *testing.T) {
	p := newFakeProvider()
	c := New(p, &memStore{})

	require.Equal(t, PhaseUnknown, c.Phase())
	require.NoError(t, c.Advance(context.Background()))
	assert.Equal(t, PhaseAwaitingPrimaryCredentials, c.Phase())
	assert.Zero(t, p.total())
}

func TestPrimaryLoginThenDiscovery(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	store := &memStore{}
	var derived int
	c := New(p, store, fixedDeviceID("D", &derived))

	require.NoError(t, c.Advance(ctx))
	require.NoError(t, c.SubmitPrimaryCredentials(ctx, "a@b.com", "pw"))

	want := Credentials{DeviceID: "D", Email: "a@b.com", AccessToken: "T", RefreshToken: "R"}
	require.Len(t, store.saved, 1)
	assert.Equal(t, want, store.saved[0])
	assert.Equal(t, &want, c.Credentials())
	assert.Equal(t, []string{"D", "a@b.com", "pw"}, p.loginArgs)
	assert.Equal(t, PhaseAwaitingPrimaryCredentials, c.Phase())

	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, []string{"a@b.com"}, p.discoverEmails)
	assert.Equal(t, PhaseReady, c.Phase())
}

func TestPrimaryLoginFailure(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.loginErr = errors.New("bad credentials")
	store := &memStore{}
	var derived int
	c := New(p, store, fixedDeviceID("D", &derived))

	require.NoError(t, c.Advance(ctx))
	err := c.SubmitPrimaryCredentials(ctx, "a@b.com", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, p.loginErr)
	assert.Nil(t, c.Credentials())
	assert.Empty(t, store.saved)
	assert.Equal(t, PhaseAwaitingPrimaryCredentials, c.Phase())
}

func TestPrimaryLoginNotPersisted(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	store := &memStore{saveErr: errors.New("disk full")}
	var derived int
	c := New(p, store, fixedDeviceID("D", &derived))

	err := c.SubmitPrimaryCredentials(ctx, "a@b.com", "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.saveErr)
	assert.Nil(t, c.Credentials())

	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, PhaseAwaitingPrimaryCredentials, c.Phase())
	assert.Zero(t, p.count("discover"))
}

func TestDeviceIDDerivedOnce(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	var derived int
	c := New(p, &memStore{}, fixedDeviceID("D1", &derived))

	require.NoError(t, c.SubmitPrimaryCredentials(ctx, "a@b.com", "pw"))
	require.NoError(t, c.SubmitPrimaryCredentials(ctx, "a@b.com", "pw"))
	require.NoError(t, c.Advance(ctx))
	require.NoError(t, c.Advance(ctx))

	assert.Equal(t, 1, derived)
	for _, id := range p.deviceIDs {
		assert.Equal(t, "D1", id)
	}
}

func TestStoredDeviceIDIsReused(t *testing.T) {
	var derived int
	c := New(newFakeProvider(), storedCreds(), fixedDeviceID("NEW", &derived))

	require.NoError(t, c.SubmitPrimaryCredentials(context.Background(), "a@b.com", "pw"))
	assert.Zero(t, derived)
	assert.Equal(t, "D", c.DeviceID())
}

func TestSessionResolvedOnce(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	c := New(p, storedCreds())

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Advance(ctx))
	}
	assert.Equal(t, 1, p.count("discover"))
	assert.Equal(t, 1, p.count("gateway_login"))
	assert.Equal(t, 3, p.count("check"))
	assert.Equal(t, PhaseReady, c.Phase())
}

func TestDiscoveryFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.discoverErr = errors.New("connection refused")
	c := New(p, storedCreds())

	err := c.Advance(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, p.discoverErr)
	assert.Equal(t, PhaseUnknown, c.Phase())
	assert.Zero(t, p.count("gateway_login"))

	p.discoverErr = nil
	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, 2, p.count("discover"))
	assert.Equal(t, PhaseReady, c.Phase())
}

func TestConfirmationFlow(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.checkStatus = http.StatusPreconditionFailed
	c := New(p, storedCreds())

	require.NoError(t, c.Advance(ctx))
	require.Equal(t, PhaseAwaitingConfirmationCode, c.Phase())

	// Waiting for a code: no further uuid checks.
	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, 1, p.count("check"))
	assert.Equal(t, PhaseAwaitingConfirmationCode, c.Phase())

	p.approveStatus = http.StatusForbidden
	require.NoError(t, c.SubmitConfirmationCode(ctx, "000000"))
	assert.Equal(t, PhaseAwaitingConfirmationCode, c.Phase())

	p.approveStatus = http.StatusOK
	require.NoError(t, c.SubmitConfirmationCode(ctx, "123456"))
	assert.Equal(t, PhaseReady, c.Phase())
	assert.Equal(t, []string{"000000", "123456"}, p.approveCodes)
}

func TestConfirmationCodeUnexpectedStatus(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.checkStatus = http.StatusPreconditionFailed
	p.approveStatus = http.StatusInternalServerError
	c := New(p, storedCreds())

	require.NoError(t, c.Advance(ctx))
	require.NoError(t, c.SubmitConfirmationCode(ctx, "123456"))
	assert.Equal(t, PhaseAwaitingConfirmationCode, c.Phase())
}

func TestConfirmationCodeIgnoredOutsidePhase(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	c := New(p, storedCreds())

	require.NoError(t, c.SubmitConfirmationCode(ctx, "123456"))
	assert.Zero(t, p.count("approve"))

	require.NoError(t, c.Advance(ctx))
	require.Equal(t, PhaseReady, c.Phase())
	require.NoError(t, c.SubmitConfirmationCode(ctx, "123456"))
	assert.Zero(t, p.count("approve"))
}

func TestUnexpectedDeviceCheckStatus(t *testing.T) {
	p := newFakeProvider()
	p.checkStatus = http.StatusBadGateway
	c := New(p, storedCreds())

	require.NoError(t, c.Advance(context.Background()))
	assert.Equal(t, PhaseUnknown, c.Phase())
}

func TestResourceCallsBeforeReady(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.checkStatus = http.StatusPreconditionFailed
	c := New(p, storedCreds())

	state, err := c.VMState(ctx)
	require.NoError(t, err)
	assert.Equal(t, VMState{Status: VMUnknown}, state)
	require.NoError(t, c.StartVM(ctx))
	assert.Zero(t, p.total())

	require.NoError(t, c.Advance(ctx))
	state, err = c.VMState(ctx)
	require.NoError(t, err)
	assert.Equal(t, VMUnknown, state.Status)
	require.NoError(t, c.StartVM(ctx))
	assert.Zero(t, p.count("vm_ip"))
	assert.Zero(t, p.count("vm_start"))
}

func TestVMStateWhenReady(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	c := New(p, storedCreds())
	require.NoError(t, c.Advance(ctx))

	state, err := c.VMState(ctx)
	require.NoError(t, err)
	assert.Equal(t, VMState{Status: VMUp, Address: "10.0.0.1", Port: 8443}, state)

	p.vmStatus = 473
	state, err = c.VMState(ctx)
	require.NoError(t, err)
	assert.Equal(t, VMStarting, state.Status)

	p.vmStatus = http.StatusOK
	p.vmErr = errors.New("malformed response: port \"abc\" is not a number")
	_, err = c.VMState(ctx)
	assert.ErrorIs(t, err, p.vmErr)

	require.NoError(t, c.StartVM(ctx))
	assert.Equal(t, 1, p.count("vm_start"))
}

func TestVMStateFromStatus(t *testing.T) {
	addr := VMAddress{IP: "1.2.3.4", Port: 443}
	tests := []struct {
		status int
		want   VMState
	}{
		{200, VMState{Status: VMUp, Address: "1.2.3.4", Port: 443}},
		{429, VMState{Status: VMDown}},
		{470, VMState{Status: VMDown}},
		{471, VMState{Status: VMDown}},
		{472, VMState{Status: VMDown}},
		{473, VMState{Status: VMStarting}},
		{404, VMState{Status: VMUnknown}},
		{500, VMState{Status: VMUnknown}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, vmStateFromStatus(tt.status, addr), "status %d", tt.status)
	}
}

func TestNewIgnoresUnreadableStore(t *testing.T) {
	p := newFakeProvider()
	c := New(p, &memStore{loadErr: errors.New("corrupt")})

	assert.Nil(t, c.Credentials())
	require.NoError(t, c.Advance(context.Background()))
	assert.Equal(t, PhaseAwaitingPrimaryCredentials, c.Phase())
}
