package credit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
)

const samplePricing = `
[features]
blog_post = 10
video_short = 50

[tiers.pro]
video_short = 35
`

func TestParsePricing_Resolve(t *testing.T) {
	p, err := ParsePricing(samplePricing)
	require.NoError(t, err)

	cost, err := p.Resolve("video_short", "")
	require.NoError(t, err)
	assert.Equal(t, int64(50), cost)

	cost, err = p.Resolve("video_short", "pro")
	require.NoError(t, err)
	assert.Equal(t, int64(35), cost)

	cost, err = p.Resolve("blog_post", "pro")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cost)

	cost, err = p.Resolve("blog_post", "enterprise")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cost)

	_, err = p.Resolve("podcast", "")
	assert.ErrorIs(t, err, domain.ErrUnknownFeature)
}

func TestParsePricing_RejectsInvalidTables(t *testing.T) {
	_, err := ParsePricing("[features]\nblog_post = 0\n")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = ParsePricing("[features]\nblog_post = 5\n[tiers.pro]\nvideo = 3\n")
	assert.ErrorIs(t, err, domain.ErrUnknownFeature)

	_, err = ParsePricing("")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = ParsePricing("[features\n")
	assert.Error(t, err)
}

func TestLoadPricing(t *testing.T) {
	p, err := LoadPricing("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPricing(), p)
	require.NoError(t, p.Validate())

	path := filepath.Join(t.TempDir(), "pricing.toml")
	require.NoError(t, os.WriteFile(path, []byte(samplePricing), 0o600))

	p, err = LoadPricing(path)
	require.NoError(t, err)
	assert.Len(t, p.Features, 2)

	_, err = LoadPricing(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
