package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MIRROR_SOURCE_API_KEY", "sk")
	t.Setenv("MIRROR_SOURCE_API_SECRET", "ss")
	t.Setenv("MIRROR_MIRROR_API_KEY", "mk")
	t.Setenv("MIRROR_MIRROR_API_SECRET", "ms")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.SourceContract)
	assert.Equal(t, "BTC_USDT", cfg.MirrorContract)
	assert.Equal(t, 1.0, cfg.RatioDefault)
	assert.True(t, cfg.EnabledDefault)
	assert.Equal(t, 200.0, cfg.CloseReachThreshold)
	assert.Equal(t, "console", cfg.StorageMode)
	assert.Empty(t, cfg.HashOffsetFractions)
}

func TestLoadFromEnv_UnknownKeyRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIRROR_RATOI_DEFAULT", "2.0") // typo must fail loudly

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIRROR_RATOI_DEFAULT")
}

func TestLoadFromEnv_RatioOutOfRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIRROR_RATIO_DEFAULT", "11.0")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIRROR_RATIO_DEFAULT")
}

func TestLoadFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("MIRROR_SOURCE_API_KEY", "")
	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnv_HashOffsetFractions(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIRROR_HASH_OFFSET_FRACTIONS", "0.0002, 0.0005,0.001")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.0002, 0.0005, 0.001}, cfg.HashOffsetFractions)
}

func TestLoadFromEnv_BadFraction(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIRROR_HASH_OFFSET_FRACTIONS", "1.5")

	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestValidate_StorageMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIRROR_STORAGE_MODE", "redis")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIRROR_STORAGE_MODE")
}
