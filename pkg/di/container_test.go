package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-offline-sync/connectivity"
	"github.com/goliatone/go-offline-sync/model"
	"github.com/goliatone/go-offline-sync/pkg/config"
	"github.com/goliatone/go-offline-sync/pkg/testsupport"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Store.Path = ":memory:"
	return cfg
}

func newTestContainer(t *testing.T) (*Container, *testsupport.FakeGateway, *connectivity.Manual) {
	t.Helper()

	gateway := testsupport.NewFakeGateway("user_1")
	oracle := connectivity.NewManual(true)

	c, err := New(context.Background(), testConfig(),
		WithGateway(gateway),
		WithOracle(oracle),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, gateway, oracle
}

func TestNew_WiresRepositoriesPerEntity(t *testing.T) {
	c, _, _ := newTestContainer(t)

	for _, entity := range []model.EntityType{model.EntityTransaction, model.EntityCalorie} {
		assert.NotNil(t, c.Query(entity), "query repository for %s", entity)
		assert.NotNil(t, c.Command(entity), "command repository for %s", entity)
	}
	assert.NotNil(t, c.Reconciler())
	assert.NotNil(t, c.Cache())
	assert.NotNil(t, c.Store())
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Path = ":memory:"

	c, err := New(context.Background(), cfg, WithGateway(testsupport.NewFakeGateway("user_1")))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.Equal(t, cfg.Sync.WaitTimeout, c.Config().Sync.WaitTimeout)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Gateway.BaseURL = "not a url"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestNew_GatewayRequiresBaseURLUnlessInjected(t *testing.T) {
	// The default HTTP gateway cannot be built without a base url.
	_, err := New(context.Background(), testConfig())
	require.Error(t, err)

	// An injected gateway sidesteps the HTTP client entirely.
	c, err := New(context.Background(), testConfig(), WithGateway(testsupport.NewFakeGateway("user_1")))
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestNew_DefaultsToManualOracleWithoutProbeAddress(t *testing.T) {
	c, _, _ := newTestContainer(t)
	assert.Nil(t, c.probe)
}

func TestClose_Idempotent(t *testing.T) {
	c, _, _ := newTestContainer(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestContainer_SharedCacheAcrossRepositories(t *testing.T) {
	c, gateway, _ := newTestContainer(t)
	ctx := context.Background()

	_, err := c.Query(model.EntityTransaction).ItemsByPeriod(ctx, model.PeriodWeekly)
	require.NoError(t, err)
	_, err = c.Query(model.EntityTransaction).ItemsByPeriod(ctx, model.PeriodWeekly)
	require.NoError(t, err)

	assert.Equal(t, 1, gateway.QueryCalls(), "second read must come from the shared cache")
}
