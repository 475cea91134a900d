package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudseed-io/seedctl/pkg/errors"
)

func TestManager_EnvProvider(t *testing.T) {
	t.Setenv("DB_PASSWORD", "hunter2")

	m := NewManager()
	v, err := m.Get(context.Background(), "db.password")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)
}

func TestManager_MissingSecret(t *testing.T) {
	m := NewManager()
	_, err := m.Get(context.Background(), "definitely.not.set.anywhere")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeSecret))
}

func TestManager_PriorityOrder(t *testing.T) {
	t.Setenv("SHARED_KEY", "from-env")

	m := NewManager()
	m.RegisterProvider(&StaticProvider{
		ProviderName: "vault",
		Values:       map[string]string{"shared.key": "from-vault"},
	})

	// env registered first wins by default
	v, err := m.Get(context.Background(), "shared.key")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	// reordering flips the winner, with a fresh manager to skip the cache
	m2 := NewManager()
	m2.RegisterProvider(&StaticProvider{
		ProviderName: "vault",
		Values:       map[string]string{"shared.key": "from-vault"},
	})
	m2.SetPriority([]string{"vault", "env"})
	v, err = m2.Get(context.Background(), "shared.key")
	require.NoError(t, err)
	assert.Equal(t, "from-vault", v)
}

func TestManager_FallsThroughToNextProvider(t *testing.T) {
	m := NewManager()
	m.RegisterProvider(&StaticProvider{
		ProviderName: "vault",
		Values:       map[string]string{"api.token": "tok-123"},
	})

	v, err := m.Get(context.Background(), "api.token")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", v, "env miss falls through to the next provider")
}

func TestManager_CachesWithinRun(t *testing.T) {
	calls := 0
	m := NewManager()
	m.SetPriority(nil)
	m.RegisterProvider(&countingProvider{value: "v1", calls: &calls})

	for i := 0; i < 3; i++ {
		v, err := m.Get(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, "v1", v)
	}
	assert.Equal(t, 1, calls)
}

func TestManager_GetFromProvider(t *testing.T) {
	m := NewManager()
	m.RegisterProvider(&StaticProvider{
		ProviderName: "vault",
		Values:       map[string]string{"k": "v"},
	})

	v, err := m.GetFromProvider(context.Background(), "vault", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	_, err = m.GetFromProvider(context.Background(), "nope", "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeSecret))
}

func TestManager_Resolver(t *testing.T) {
	t.Setenv("API_KEY", "abc")

	m := NewManager()
	resolve := m.Resolver(context.Background())
	v, err := resolve("api.key")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

type countingProvider struct {
	value string
	calls *int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Get(_ context.Context, _ string) (string, error) {
	*p.calls++
	return p.value, nil
}
