package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServerScript is a minimal JSON-RPC-over-stdio server implemented as
// a shell one-liner: it answers every request with a canned response
// matching the request's id, exercising the real wire protocol without
// depending on an external binary being installed.
const fakeServerScript = `
while IFS= read -r line; do
  id=$(echo "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  method=$(echo "$line" | sed -n 's/.*"method":"\([^"]*\)".*/\1/p')
  if [ "$method" = "initialize" ]; then
    printf '{"jsonrpc":"2.0","id":%s,"result":{}}\n' "$id"
  elif [ "$method" = "tools/list" ]; then
    printf '{"jsonrpc":"2.0","id":%s,"result":{"tools":[{"name":"echo","description":"echoes input"}]}}\n' "$id"
  elif [ "$method" = "tools/call" ]; then
    printf '{"jsonrpc":"2.0","id":%s,"result":{"content":[{"type":"text","text":"ok"}],"isError":false}}\n' "$id"
  fi
done
`

func TestClient_HandshakeAndCallTool(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := Start(ctx, "sh", "-c", fakeServerScript)
	require.NoError(t, err)
	defer c.Close()

	require.Len(t, c.Tools, 1)
	assert.Equal(t, "echo", c.Tools[0].Name)

	result, err := c.CallTool(ctx, "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "ok", result.Content[0].Text)
}
