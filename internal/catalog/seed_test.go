package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportSeedFile(t *testing.T) {
	cat := New()
	path := writeSeedFile(t, `
sources:
  - id: coingecko
    endpoint: https://api.coingecko.com/api/v3
    categories: [crypto]
    cost_per_call: 0
  - id: openweather
    endpoint: https://api.openweathermap.org/data/2.5
    categories: [weather]
    cost_per_call: 0.001
`)

	n, err := cat.ImportSeedFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, cat.Len())

	src, ok := cat.Get("openweather")
	require.True(t, ok)
	assert.True(t, src.Active)
	assert.False(t, src.Discovered)
	assert.InDelta(t, 0.001, src.CostPerCall, 1e-9)
	assert.Len(t, cat.FindByCategory("crypto"), 1)
}

func TestImportSeedFileInvalidEntryAborts(t *testing.T) {
	cat := New()
	path := writeSeedFile(t, `
sources:
  - id: good
    endpoint: https://good.example/api
    categories: [crypto]
  - id: bad
    categories: [crypto]
`)

	n, err := cat.ImportSeedFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed entry 1")
	assert.Equal(t, 1, n)
}

func TestImportSeedFileMissing(t *testing.T) {
	cat := New()
	_, err := cat.ImportSeedFile(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read seed file")
}

func TestImportSeedFileMalformedYAML(t *testing.T) {
	cat := New()
	path := writeSeedFile(t, "sources: [not: {valid")

	_, err := cat.ImportSeedFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse seed file")
}
