package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"
)

type configTestCLI struct {
	Listen      string        `default:":8080"`
	Debug       bool          `default:"false"`
	Timeout     time.Duration `default:"1m"`
	CORSOrigins []string
	Postgres    configTestPostgres `embed:"" prefix:"postgres-"`
}

type configTestPostgres struct {
	ConnString string
	MaxConns   int32 `default:"10"`
}

func TestYAMLLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
debug: true
timeout: 90s
cors_origins:
  - https://a.example.com
  - https://b.example.com
postgres:
  conn_string: postgres://localhost/portal
  max_conns: 4
`), 0o600))

	var cli configTestCLI
	parser, err := kong.New(&cli, kong.Configuration(YAMLLoader, path))
	require.NoError(t, err)

	_, err = parser.Parse(nil)
	require.NoError(t, err)

	require.Equal(t, ":9000", cli.Listen)
	require.True(t, cli.Debug)
	require.Equal(t, 90*time.Second, cli.Timeout)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cli.CORSOrigins)
	require.Equal(t, "postgres://localhost/portal", cli.Postgres.ConnString)
	require.Equal(t, int32(4), cli.Postgres.MaxConns)
}

func TestYAMLLoaderFlagsWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9000\"\n"), 0o600))

	var cli configTestCLI
	parser, err := kong.New(&cli, kong.Configuration(YAMLLoader, path))
	require.NoError(t, err)

	_, err = parser.Parse([]string{"--listen", ":7000"})
	require.NoError(t, err)
	require.Equal(t, ":7000", cli.Listen)
	require.Equal(t, int32(10), cli.Postgres.MaxConns)
}

func TestYAMLLoaderEmpty(t *testing.T) {
	resolver, err := YAMLLoader(strings.NewReader(""))
	require.NoError(t, err)
	require.NotNil(t, resolver)
}

func TestYAMLLoaderInvalid(t *testing.T) {
	_, err := YAMLLoader(strings.NewReader("listen: [unterminated"))
	require.Error(t, err)
}

func TestFlatten(t *testing.T) {
	out := make(map[string]string)
	flatten("", map[string]any{
		"auth": map[string]any{
			"url":    "https://auth.example.com",
			"memory": false,
		},
		"chat_max_requests": 20,
		"unset":             nil,
	}, out)

	require.Equal(t, map[string]string{
		"auth-url":          "https://auth.example.com",
		"auth-memory":       "false",
		"chat-max-requests": "20",
	}, out)
}
