package static

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudseed-io/seedctl/pkg/driver"
	"github.com/cloudseed-io/seedctl/pkg/errors"
)

func TestApply_ProducesDeclaredOutputs(t *testing.T) {
	d := New("storage/account")

	outputs, err := d.Apply(context.Background(), driver.ApplyRequest{
		Resource: "store",
		Kind:     "storage/account",
		Attributes: map[string]interface{}{
			"account_name": "appdata8472910",
		},
		Outputs: []string{"account_name", "host"},
	})
	require.NoError(t, err)

	assert.Equal(t, "appdata8472910", outputs["account_name"], "output mirrors the attribute when one exists")
	assert.Equal(t, "store-host", outputs["host"], "outputs without a matching attribute are synthesized")
}

func TestApply_Idempotent(t *testing.T) {
	d := New("storage/account")
	req := driver.ApplyRequest{
		Resource:   "store",
		Kind:       "storage/account",
		Attributes: map[string]interface{}{"account_name": "appdata"},
		Outputs:    []string{"host"},
	}

	first, err := d.Apply(context.Background(), req)
	require.NoError(t, err)
	second, err := d.Apply(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, d.ApplyCount("store"))
}

func TestApply_TokenWindow(t *testing.T) {
	anchor := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	d := NewWithClock("storage/container", func() time.Time { return anchor })

	outputs, err := d.Apply(context.Background(), driver.ApplyRequest{
		Resource: "container",
		Kind:     "storage/container",
		Attributes: map[string]interface{}{
			"token_validity": "24h",
		},
		Outputs: []string{"name"},
	})
	require.NoError(t, err)

	assert.Equal(t, "2026-03-15T11:55:00Z", outputs["token_start"], "start is backdated by the skew tolerance")
	assert.Equal(t, "2026-03-16T12:00:00Z", outputs["token_expiry"])

	token, ok := outputs["token"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(token, "st="), "token is a query string with bounded validity")
	assert.Contains(t, token, "se=")
}

func TestApply_InvalidTokenValidity(t *testing.T) {
	d := New("storage/container")

	_, err := d.Apply(context.Background(), driver.ApplyRequest{
		Resource:   "container",
		Kind:       "storage/container",
		Attributes: map[string]interface{}{"token_validity": "soon"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDriver))
	assert.False(t, errors.IsRetryable(err))
}

func TestApply_DryRunLeavesNoRecord(t *testing.T) {
	d := New("storage/account")

	_, err := d.Apply(context.Background(), driver.ApplyRequest{
		Resource: "store",
		Kind:     "storage/account",
		DryRun:   true,
		Outputs:  []string{"host"},
	})
	require.NoError(t, err)

	_, err = d.Read(context.Background(), "store")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestReadAndDelete(t *testing.T) {
	d := New("storage/account")
	_, err := d.Apply(context.Background(), driver.ApplyRequest{
		Resource: "store",
		Kind:     "storage/account",
		Outputs:  []string{"host"},
	})
	require.NoError(t, err)

	outputs, err := d.Read(context.Background(), "store")
	require.NoError(t, err)
	assert.Equal(t, "store-host", outputs["host"])

	require.NoError(t, d.Delete(context.Background(), "store"))
	require.NoError(t, d.Delete(context.Background(), "store"), "deleting an absent resource is not an error")

	_, err = d.Read(context.Background(), "store")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestRegistry(t *testing.T) {
	reg := driver.NewRegistry()
	reg.Register(New("storage/account"))
	reg.Register(New("storage/container"))

	d, err := reg.Get("storage/account", "store")
	require.NoError(t, err)
	assert.Equal(t, "storage/account", d.Kind())

	_, err = reg.Get("compute/function", "app")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnknownKind))
	assert.Contains(t, err.Error(), "compute/function")

	assert.Equal(t, []string{"storage/account", "storage/container"}, reg.Kinds())
}

func TestRegistryValidate(t *testing.T) {
	reg := driver.NewRegistry()
	reg.Register(New("storage/account"))

	err := reg.Validate(map[string][]string{
		"storage/account": {"store"},
		"compute/vm":      {"worker"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeUnknownKind))

	assert.NoError(t, reg.Validate(map[string][]string{"storage/account": {"store"}}))
}
