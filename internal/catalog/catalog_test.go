package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewHolder_EmptyPathUsesDefaults(t *testing.T) {
	holder, err := NewHolder("", zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	require.NotEmpty(t, cfg.Styles)
	require.NotEmpty(t, cfg.Rooms)
	require.NotEmpty(t, cfg.Packs)
	require.Equal(t, int64(1), cfg.HDUnlock.CreditCost)
}

func TestNewHolder_LoadsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := []byte(`
styles:
  - slug: Minimal Chic
    name: Minimal
    prompt: "a {room} in minimal style"
    cost: 2
rooms:
  - slug: salon
    name: Salon
packs:
  - slug: starter
    name: Starter
    credits: 10
    amount_cents: 900
hd_unlock:
  credit_cost: 1
  amount_cents: 199
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	holder, err := NewHolder(path, zap.NewNop())
	require.NoError(t, err)

	style, err := holder.StyleBySlug("Minimal Chic")
	require.NoError(t, err)
	require.Equal(t, "minimal-chic", style.Slug)
	require.Equal(t, int64(2), style.Cost)

	_, err = holder.StyleBySlug("nope")
	require.ErrorIs(t, err, ErrUnknownStyle)
}

func TestNewHolder_RejectsEmptyStyles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rooms:\n  - slug: salon\n    name: Salon\n"), 0o600))

	_, err := NewHolder(path, zap.NewNop())
	require.Error(t, err)
}
