package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prd = `---
status: active
owner: dana
---
# Checkout PRD

The checkout flow lets returning customers pay
with one click.

## Goals

Ship v2.

### Stretch

Wallet support.

## Non-Goals

Crypto.
`

func TestSplit(t *testing.T) {
	meta, body, err := Split([]byte(prd))
	require.NoError(t, err)
	assert.Equal(t, "active", meta["status"])
	assert.Equal(t, "dana", meta["owner"])
	assert.True(t, len(body) > 0)
	assert.Equal(t, "# Checkout PRD", string(body[:14]))

	t.Run("no front matter", func(t *testing.T) {
		meta, body, err := Split([]byte("# Title\n"))
		require.NoError(t, err)
		assert.Nil(t, meta)
		assert.Equal(t, "# Title\n", string(body))
	})

	t.Run("unterminated fence is body", func(t *testing.T) {
		meta, body, err := Split([]byte("---\nstatus: x\n"))
		require.NoError(t, err)
		assert.Nil(t, meta)
		assert.Equal(t, "---\nstatus: x\n", string(body))
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, _, err := Split([]byte("---\n: [\n---\nbody"))
		assert.Error(t, err)
	})
}

func TestTitleAndExcerpt(t *testing.T) {
	body := Body([]byte(prd))
	assert.Equal(t, "Checkout PRD", Title(body))
	assert.Equal(t, "The checkout flow lets returning customers pay with one click.", Excerpt(body, 0))
	assert.Equal(t, "", Title([]byte("just text")))

	short := Excerpt(body, 20)
	assert.True(t, len([]rune(short)) <= 21)
	assert.Contains(t, short, "…")
}

func TestSection(t *testing.T) {
	body := Body([]byte(prd))

	t.Run("includes nested headings", func(t *testing.T) {
		section, ok := Section(body, "goals")
		require.True(t, ok)
		assert.Equal(t, "## Goals\n\nShip v2.\n\n### Stretch\n\nWallet support.\n", section)
	})

	t.Run("matches by slug", func(t *testing.T) {
		section, ok := Section(body, "non-goals")
		require.True(t, ok)
		assert.Equal(t, "## Non-Goals\n\nCrypto.\n", section)
	})

	t.Run("missing heading", func(t *testing.T) {
		_, ok := Section(body, "Risks")
		assert.False(t, ok)
	})
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "non-goals", Slug("Non-Goals"))
	assert.Equal(t, "api-v2-design", Slug("  API v2: Design! "))
	assert.Equal(t, "", Slug("!!!"))
}
