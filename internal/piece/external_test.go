package piece

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pieces/internal/logging"
	"pieces/internal/store"
)

const fakePlugin = `#!/bin/sh
if [ "$1" = "--describe" ]; then
  cat <<'JSON'
{"name":"counter","display_name":"Counter","triggers":[{"name":"tick","display_name":"Tick","strategy":"POLLING","props":[{"name":"step","type":"NUMBER","required":true}],"store_keys":["cursor","stale"]}]}
JSON
  exit 0
fi
cat > /dev/null
echo '{"status":"success","items":[{"n":1}],"state":{"cursor":5,"stale":null,"undeclared":1}}'
`

func writePlugin(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

func TestExternalPieceRun(t *testing.T) {
	dir := t.TempDir()
	path := writePlugin(t, dir, "counter.sh", fakePlugin)

	p, err := LoadExternalPiece(path)
	require.NoError(t, err)
	assert.Equal(t, "counter", p.Name())
	require.Len(t, p.Triggers(), 1)

	trig := p.Triggers()[0]
	meta := trig.Meta()
	assert.Equal(t, StrategyPolling, meta.Strategy)
	require.Len(t, meta.Props, 1)
	assert.Equal(t, PropNumber, meta.Props[0].Type)

	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Put(ctx, "stale", []byte(`"old"`)))

	items, err := trig.Run(ctx, &Context{Props: Props{"step": 1}, Store: mem})
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"n": float64(1)}}, items)

	v, ok, err := mem.Get(ctx, "cursor")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "5", string(v))

	_, ok, _ = mem.Get(ctx, "stale")
	assert.False(t, ok, "null state must clear the key")
	_, ok, _ = mem.Get(ctx, "undeclared")
	assert.False(t, ok, "undeclared keys are ignored")
}

func TestExternalPieceFailure(t *testing.T) {
	dir := t.TempDir()
	path := writePlugin(t, dir, "broken.sh", `#!/bin/sh
if [ "$1" = "--describe" ]; then
  echo '{"triggers":[{"name":"hook","strategy":"WEBHOOK"}]}'
  exit 0
fi
cat > /dev/null
echo '{"status":"failed","error":"vendor down"}'
`)

	p, err := LoadExternalPiece(path)
	require.NoError(t, err)
	assert.Equal(t, "broken", p.Name(), "name falls back to the file name")

	err = p.Triggers()[0].OnEnable(context.Background(), &Context{Store: store.NewMemory()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vendor down")
}

func TestLoadExternalPiecesSkipsNonExecutables(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "counter.sh", fakePlugin)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0644))

	pieces, err := LoadExternalPieces(dir, logging.Discard())
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, "counter", pieces[0].Name())

	none, err := LoadExternalPieces(filepath.Join(dir, "missing"), logging.Discard())
	require.NoError(t, err)
	assert.Empty(t, none)
}
