package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunkchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseServerConfig_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := parseServerConfigWithFlagSet(newFlagSet(), []string{})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "./uploads", cfg.DataDir)
	assert.Equal(t, DefaultUploadTTL, cfg.UploadTTL)
	assert.False(t, cfg.HTTP3())
}

func TestParseServerConfig_Flags(t *testing.T) {
	os.Clearenv()

	cfg, err := parseServerConfigWithFlagSet(newFlagSet(), []string{
		"-addr", ":9090", "-log-level", "debug", "-data-dir", "/tmp/up",
		"-tls-cert", "cert.pem", "-tls-key", "key.pem",
	})
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/up", cfg.DataDir)
	assert.True(t, cfg.HTTP3())
}

func TestParseServerConfig_EnvFallback(t *testing.T) {
	os.Clearenv()
	t.Setenv("CHUNKCHAT_ADDR", ":7070")
	t.Setenv("CHUNKCHAT_LOG_LEVEL", "warn")
	t.Setenv("CHUNKCHAT_UPLOAD_TTL", "15m")

	cfg, err := parseServerConfigWithFlagSet(newFlagSet(), []string{})
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 15*time.Minute, cfg.UploadTTL)
}

func TestParseServerConfig_FlagsOverrideEnv(t *testing.T) {
	os.Clearenv()
	t.Setenv("CHUNKCHAT_ADDR", ":7070")
	t.Setenv("CHUNKCHAT_LOG_LEVEL", "warn")

	cfg, err := parseServerConfigWithFlagSet(newFlagSet(), []string{"-addr", ":9090"})
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestParseServerConfig_File(t *testing.T) {
	os.Clearenv()
	path := writeYAML(t, "addr: \":6060\"\ndata-dir: /srv/uploads\npublic-url: https://files.example.com\n")
	t.Setenv("CHUNKCHAT_DATA_DIR", "/env/uploads")

	cfg, err := parseServerConfigWithFlagSet(newFlagSet(), []string{"-config", path})
	require.NoError(t, err)

	assert.Equal(t, ":6060", cfg.Addr)
	assert.Equal(t, "/env/uploads", cfg.DataDir, "env overrides file")
	assert.Equal(t, "https://files.example.com", cfg.PublicURL)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestParseServerConfig_MissingFile(t *testing.T) {
	os.Clearenv()

	_, err := parseServerConfigWithFlagSet(newFlagSet(), []string{"--config=/nonexistent/chunkchat.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config file")
}

func TestParseClientConfig_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := parseClientConfigWithFlagSet(newFlagSet(), []string{})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, cfg.ServerURL, cfg.PublicURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, "md5", cfg.Checksum)
	assert.Equal(t, "sse", cfg.StreamTransport)
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.False(t, cfg.HTTP3)
	assert.Empty(t, cfg.Args)
}

func TestParseClientConfig_Flags(t *testing.T) {
	os.Clearenv()

	cfg, err := parseClientConfigWithFlagSet(newFlagSet(), []string{
		"-server-url", "http://example.com:9090",
		"-chunk-size", "1048576",
		"-concurrency", "5",
		"-checksum", "xxhash64",
		"-stream-transport", "WS",
		"-http3",
		"-file", "cat.png",
		"upload", "report.pdf",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://example.com:9090", cfg.ServerURL)
	assert.Equal(t, int64(1<<20), cfg.ChunkSize)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, "xxhash64", cfg.Checksum)
	assert.Equal(t, "ws", cfg.StreamTransport)
	assert.True(t, cfg.HTTP3)
	assert.Equal(t, "cat.png", cfg.File)
	assert.Equal(t, []string{"upload", "report.pdf"}, cfg.Args)
}

func TestParseClientConfig_EnvFallback(t *testing.T) {
	os.Clearenv()
	t.Setenv("CHUNKCHAT_SERVER_URL", "http://env.example.com:7070")
	t.Setenv("CHUNKCHAT_MAX_ATTEMPTS", "5")
	t.Setenv("CHUNKCHAT_HTTP3", "true")
	t.Setenv("CHUNKCHAT_CONVERSATION", "conv-1")

	cfg, err := parseClientConfigWithFlagSet(newFlagSet(), []string{})
	require.NoError(t, err)

	assert.Equal(t, "http://env.example.com:7070", cfg.ServerURL)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.True(t, cfg.HTTP3)
	assert.Equal(t, "conv-1", cfg.Conversation)
}

func TestParseClientConfig_FlagsOverrideEnv(t *testing.T) {
	os.Clearenv()
	t.Setenv("CHUNKCHAT_SERVER_URL", "http://env.example.com:7070")
	t.Setenv("CHUNKCHAT_CHECKSUM", "crc32c")

	cfg, err := parseClientConfigWithFlagSet(newFlagSet(), []string{"-server-url", "http://flag.example.com:9090"})
	require.NoError(t, err)

	assert.Equal(t, "http://flag.example.com:9090", cfg.ServerURL)
	assert.Equal(t, "crc32c", cfg.Checksum)
}

func TestParseClientConfig_FileFromEnv(t *testing.T) {
	os.Clearenv()
	path := writeYAML(t, "server-url: http://file.example.com\nconcurrency: 8\nretry-delay: 1s\n")
	t.Setenv("CHUNKCHAT_CONFIG", path)

	cfg, err := parseClientConfigWithFlagSet(newFlagSet(), []string{"-concurrency", "2"})
	require.NoError(t, err)

	assert.Equal(t, "http://file.example.com", cfg.ServerURL)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, time.Second, cfg.RetryDelay)
}

func TestParseClientConfig_Clamp(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		concurrency int
		attempts    int
	}{
		{"low", []string{"-concurrency", "0", "-max-attempts", "0"}, 1, 1},
		{"high", []string{"-concurrency", "99", "-max-attempts", "50"}, 16, 10},
		{"in range", []string{"-concurrency", "4", "-max-attempts", "2"}, 4, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			cfg, err := parseClientConfigWithFlagSet(newFlagSet(), tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.concurrency, cfg.Concurrency)
			assert.Equal(t, tt.attempts, cfg.MaxAttempts)
		})
	}
}

func TestParseClientConfig_NonPositiveChunkSize(t *testing.T) {
	os.Clearenv()

	cfg, err := parseClientConfigWithFlagSet(newFlagSet(), []string{"-chunk-size", "-1"})
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
}

func TestParseClientConfig_BadFlag(t *testing.T) {
	os.Clearenv()

	_, err := parseClientConfigWithFlagSet(newFlagSet(), []string{"-no-such-flag"})
	require.Error(t, err)
}

func TestConfigPath(t *testing.T) {
	os.Clearenv()

	assert.Equal(t, "", configPath([]string{"-addr", ":1"}))
	assert.Equal(t, "a.yaml", configPath([]string{"-config", "a.yaml"}))
	assert.Equal(t, "b.yaml", configPath([]string{"--config=b.yaml"}))
	assert.Equal(t, "", configPath([]string{"--", "-config", "c.yaml"}))

	t.Setenv("CHUNKCHAT_CONFIG", "env.yaml")
	assert.Equal(t, "env.yaml", configPath(nil))
	assert.Equal(t, "flag.yaml", configPath([]string{"-config", "flag.yaml"}))
}
