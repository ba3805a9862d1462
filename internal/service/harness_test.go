package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	oauthadapter "github.com/jackmusick/bifrost-api-sub005/internal/adapter/oauth"
	"github.com/jackmusick/bifrost-api-sub005/internal/config"
	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
	"github.com/jackmusick/bifrost-api-sub005/internal/repository"
)

// ---- Test harness ----

type serviceHarness struct {
	entries  *memoryConfigStore
	conns    repository.ConnectionStore
	vault    *fakeVault
	states   *memoryStateStore
	provider *fakeProviderClient
	tester   *fakeTester
	jobs     *memoryJobStore

	configs     *ConfigService
	connections *ConnectionService
	flow        *FlowService
	refresh     *RefreshService
	credentials *CredentialService
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()

	cfg := config.Config{
		InternalAPIPrefix: "/api/v1",
		SecretNamePrefix:  "bifrost",
		AuthStateTTL:      10 * time.Minute,
		RefreshThreshold:  time.Hour,
	}

	entries := newMemoryConfigStore()
	connStore := repository.NewScopedConnectionStore(entries)
	secretVault := newFakeVault()
	states := newMemoryStateStore()
	provider := newFakeProviderClient()
	tester := &fakeTester{}
	jobs := &memoryJobStore{}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	logger := zap.NewNop()
	configs := NewConfigService(entries, connStore, secretVault, cfg, logger)

	return &serviceHarness{
		entries:     entries,
		conns:       connStore,
		vault:       secretVault,
		states:      states,
		provider:    provider,
		tester:      tester,
		jobs:        jobs,
		configs:     configs,
		connections: NewConnectionService(connStore, logger),
		flow:        NewFlowService(connStore, states, configs, provider, tester, cfg, logger),
		refresh:     NewRefreshService(connStore, configs, provider, jobs, node, cfg, logger),
		credentials: NewCredentialService(connStore, configs, logger),
	}
}

func (h *serviceHarness) seedConnection(t *testing.T, conn domain.OAuthConnection) *domain.OAuthConnection {
	t.Helper()
	if conn.OAuthFlowType == "" {
		conn.OAuthFlowType = domain.FlowAuthorizationCode
	}
	created, err := h.conns.Create(context.Background(), conn)
	require.NoError(t, err)
	return created
}

func (h *serviceHarness) seedTokenSecret(t *testing.T, scope, key string, token domain.TokenResponse) {
	t.Helper()
	payload, err := json.Marshal(token)
	require.NoError(t, err)
	_, err = h.configs.Set(context.Background(), SetConfigInput{
		Scope: scope,
		Key:   key,
		Value: string(payload),
		Type:  domain.ConfigTypeSecretRef,
		Actor: "test",
	})
	require.NoError(t, err)
}

func (h *serviceHarness) connectionStatus(t *testing.T, scope, name string) domain.ConnectionStatus {
	t.Helper()
	conn, err := h.conns.Get(context.Background(), scope, name)
	require.NoError(t, err)
	require.NotNil(t, conn)
	return conn.Status
}

// ---- In-memory config store ----

type memoryConfigStore struct {
	mu   sync.RWMutex
	data map[string]map[string]domain.ConfigEntry
}

func newMemoryConfigStore() *memoryConfigStore {
	return &memoryConfigStore{data: map[string]map[string]domain.ConfigEntry{}}
}

func (m *memoryConfigStore) Get(_ context.Context, scope, key string) (*domain.ConfigEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if entry, ok := m.data[domain.NormalizeScope(scope)][key]; ok {
		copied := entry
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryConfigStore) GetWithFallback(ctx context.Context, scope, key string) (*domain.ConfigEntry, error) {
	entry, err := m.Get(ctx, scope, key)
	if err != nil || entry != nil {
		return entry, err
	}
	if domain.IsGlobalScope(scope) {
		return nil, nil
	}
	return m.Get(ctx, domain.ScopeGlobal, key)
}

func (m *memoryConfigStore) List(_ context.Context, scope, prefix string) ([]domain.ConfigEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []domain.ConfigEntry
	for key, entry := range m.data[domain.NormalizeScope(scope)] {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (m *memoryConfigStore) ListAllScopes(_ context.Context, prefix string) ([]domain.ConfigEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []domain.ConfigEntry
	for _, scoped := range m.data {
		for key, entry := range scoped {
			if strings.HasPrefix(key, prefix) {
				entries = append(entries, entry)
			}
		}
	}
	return entries, nil
}

func (m *memoryConfigStore) Set(_ context.Context, entry domain.ConfigEntry) (*domain.ConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Scope = domain.NormalizeScope(entry.Scope)
	now := time.Now().UTC()
	if existing, ok := m.data[entry.Scope][entry.Key]; ok {
		entry.CreatedAt = existing.CreatedAt
	} else {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	if m.data[entry.Scope] == nil {
		m.data[entry.Scope] = map[string]domain.ConfigEntry{}
	}
	m.data[entry.Scope][entry.Key] = entry
	copied := entry
	return &copied, nil
}

func (m *memoryConfigStore) Delete(_ context.Context, scope, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scoped := m.data[domain.NormalizeScope(scope)]
	if _, ok := scoped[key]; !ok {
		return false, nil
	}
	delete(scoped, key)
	return true, nil
}

// ---- Fake secret vault ----

type fakeVault struct {
	mu      sync.Mutex
	secrets map[string][]string
}

func newFakeVault() *fakeVault {
	return &fakeVault{secrets: map[string][]string{}}
}

func (f *fakeVault) GetSecret(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	versions := f.secrets[name]
	if len(versions) == 0 {
		return "", domain.ErrSecretNotFound
	}
	return versions[len(versions)-1], nil
}

func (f *fakeVault) PutSecret(_ context.Context, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets[name] = append(f.secrets[name], value)
	return nil
}

func (f *fakeVault) versions(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.secrets[name])
}

// ---- In-memory auth state store ----

type memoryStateStore struct {
	mu   sync.RWMutex
	data map[string]domain.AuthState
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{data: map[string]domain.AuthState{}}
}

func (m *memoryStateStore) SaveState(_ context.Context, state domain.AuthState, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[state.State] = state
	return nil
}

func (m *memoryStateStore) GetState(_ context.Context, state string) (*domain.AuthState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if stored, ok := m.data[state]; ok {
		copied := stored
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryStateStore) DeleteState(_ context.Context, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, state)
	return nil
}

// ---- Fake provider client ----

type fakeProviderClient struct {
	mu            sync.Mutex
	exchangeToken *domain.TokenResponse
	exchangeErr   error
	refreshed     *domain.TokenResponse
	refreshErrFor map[string]error
	exchanges     []oauthadapter.ExchangeRequest
	refreshes     []oauthadapter.RefreshRequest
}

func newFakeProviderClient() *fakeProviderClient {
	return &fakeProviderClient{refreshErrFor: map[string]error{}}
}

func (f *fakeProviderClient) ExchangeCode(_ context.Context, req oauthadapter.ExchangeRequest) (*domain.TokenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, req)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	if f.exchangeToken == nil {
		return nil, fmt.Errorf("exchange token not configured")
	}
	copied := *f.exchangeToken
	return &copied, nil
}

func (f *fakeProviderClient) RefreshToken(_ context.Context, req oauthadapter.RefreshRequest) (*domain.TokenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes = append(f.refreshes, req)
	if err := f.refreshErrFor[req.RefreshToken]; err != nil {
		return nil, err
	}
	if f.refreshed == nil {
		return nil, fmt.Errorf("refresh token not configured")
	}
	copied := *f.refreshed
	return &copied, nil
}

func (f *fakeProviderClient) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refreshes)
}

// ---- Fake connectivity tester ----

type fakeTester struct {
	mu       sync.Mutex
	probeErr error
	probes   []string
}

func (f *fakeTester) Probe(_ context.Context, conn *domain.OAuthConnection, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, conn.Name)
	return f.probeErr
}

// ---- In-memory job status store ----

type memoryJobStore struct {
	mu     sync.Mutex
	status *domain.RefreshJobStatus
}

func (m *memoryJobStore) Write(_ context.Context, status domain.RefreshJobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = &status
	return nil
}

func (m *memoryJobStore) Read(_ context.Context) (*domain.RefreshJobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == nil {
		return nil, nil
	}
	copied := *m.status
	return &copied, nil
}
