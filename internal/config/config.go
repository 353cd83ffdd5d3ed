package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "CHUNKCHAT_"
	envConfig  = envPrefix + "CONFIG"
	dotEnvFile = ".env"

	DefaultChunkSize      int64 = 2 << 20
	DefaultConcurrency          = 3
	DefaultMaxAttempts          = 3
	DefaultRetryDelay           = 200 * time.Millisecond
	DefaultRequestTimeout       = 30 * time.Second
	DefaultUploadTTL            = 2 * time.Hour
	DefaultTokenDelay           = 40 * time.Millisecond

	maxConcurrency = 16
	maxAttempts    = 10
)

// ServerConfig holds configuration for the chunkserv binary.
type ServerConfig struct {
	Addr       string
	LogLevel   string
	LogFormat  string
	DataDir    string
	PublicURL  string
	UploadTTL  time.Duration
	TokenDelay time.Duration // pause between streamed reply tokens
	TLSCert    string        // enables the HTTP/3 listener together with TLSKey
	TLSKey     string
	ConfigFile string
}

// HTTP3 reports whether the server has enough TLS material to listen on QUIC.
func (c ServerConfig) HTTP3() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// ClientConfig holds configuration for the chunkchat binary.
type ClientConfig struct {
	ServerURL       string
	PublicURL       string // base for attachment links; empty means ServerURL
	LogLevel        string
	LogFormat       string
	ChunkSize       int64
	Concurrency     int // clamped to 1..16
	MaxAttempts     int // clamped to 1..10
	Checksum        string
	RetryDelay      time.Duration
	StreamTransport string // sse or ws
	HTTP3           bool
	Insecure        bool // skip TLS verification for HTTP/3
	RequestTimeout  time.Duration
	Conversation    string
	File            string // attachment for the ask command, flag only
	ConfigFile      string
	Args            []string // positional arguments left after flags
}

// ParseServerConfig parses server configuration from .env, an optional YAML
// file, CHUNKCHAT_* environment variables and flags, in increasing precedence.
func ParseServerConfig() (ServerConfig, error) {
	loadDotEnv()
	return parseServerConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseServerConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseServerConfigWithFlagSet(fs *flag.FlagSet, args []string) (ServerConfig, error) {
	cfg := ServerConfig{
		Addr:       ":8080",
		LogLevel:   "info",
		LogFormat:  "text",
		DataDir:    "./uploads",
		UploadTTL:  DefaultUploadTTL,
		TokenDelay: DefaultTokenDelay,
		ConfigFile: configPath(args),
	}

	k, err := loadLayers(cfg.ConfigFile)
	if err != nil {
		return cfg, err
	}
	setString(k, "addr", &cfg.Addr)
	setString(k, "log-level", &cfg.LogLevel)
	setString(k, "log-format", &cfg.LogFormat)
	setString(k, "data-dir", &cfg.DataDir)
	setString(k, "public-url", &cfg.PublicURL)
	setDuration(k, "upload-ttl", &cfg.UploadTTL)
	setDuration(k, "token-delay", &cfg.TokenDelay)
	setString(k, "tls-cert", &cfg.TLSCert)
	setString(k, "tls-key", &cfg.TLSKey)

	// Flags override file and environment
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "server address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text, json)")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for chunks and merged files")
	fs.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "public base URL for merged files")
	fs.DurationVar(&cfg.UploadTTL, "upload-ttl", cfg.UploadTTL, "how long unmerged chunks are kept")
	fs.DurationVar(&cfg.TokenDelay, "token-delay", cfg.TokenDelay, "pause between streamed reply tokens")
	fs.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "TLS certificate for the HTTP/3 listener")
	fs.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "TLS key for the HTTP/3 listener")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.UploadTTL <= 0 {
		cfg.UploadTTL = DefaultUploadTTL
	}
	if cfg.TokenDelay < 0 {
		cfg.TokenDelay = 0
	}
	return cfg, nil
}

// ParseClientConfig parses client configuration for one subcommand from .env,
// an optional YAML file, CHUNKCHAT_* environment variables and args, in
// increasing precedence.
func ParseClientConfig(command string, args []string) (ClientConfig, error) {
	loadDotEnv()
	return parseClientConfigWithFlagSet(flag.NewFlagSet(command, flag.ContinueOnError), args)
}

// parseClientConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseClientConfigWithFlagSet(fs *flag.FlagSet, args []string) (ClientConfig, error) {
	cfg := ClientConfig{
		ServerURL:       "http://localhost:8080",
		LogLevel:        "info",
		LogFormat:       "text",
		ChunkSize:       DefaultChunkSize,
		Concurrency:     DefaultConcurrency,
		MaxAttempts:     DefaultMaxAttempts,
		Checksum:        "md5",
		RetryDelay:      DefaultRetryDelay,
		StreamTransport: "sse",
		RequestTimeout:  DefaultRequestTimeout,
		ConfigFile:      configPath(args),
	}

	k, err := loadLayers(cfg.ConfigFile)
	if err != nil {
		return cfg, err
	}
	setString(k, "server-url", &cfg.ServerURL)
	setString(k, "public-url", &cfg.PublicURL)
	setString(k, "log-level", &cfg.LogLevel)
	setString(k, "log-format", &cfg.LogFormat)
	if k.Exists("chunk-size") {
		cfg.ChunkSize = k.Int64("chunk-size")
	}
	setInt(k, "concurrency", &cfg.Concurrency)
	setInt(k, "max-attempts", &cfg.MaxAttempts)
	setString(k, "checksum", &cfg.Checksum)
	setDuration(k, "retry-delay", &cfg.RetryDelay)
	setString(k, "stream-transport", &cfg.StreamTransport)
	if k.Exists("http3") {
		cfg.HTTP3 = k.Bool("http3")
	}
	if k.Exists("insecure") {
		cfg.Insecure = k.Bool("insecure")
	}
	setDuration(k, "request-timeout", &cfg.RequestTimeout)
	setString(k, "conversation", &cfg.Conversation)

	// Flags override file and environment
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file")
	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "server URL")
	fs.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "base URL for attachment links (default: server URL)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text, json)")
	fs.Int64Var(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "chunk size in bytes (default: 2 MiB)")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "concurrent chunk uploads (1..16)")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "attempts per chunk (1..10)")
	fs.StringVar(&cfg.Checksum, "checksum", cfg.Checksum, "chunk checksum (md5, crc32c, xxhash64, none)")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "base delay between chunk attempts")
	fs.StringVar(&cfg.StreamTransport, "stream-transport", cfg.StreamTransport, "reply stream transport (sse, ws)")
	fs.BoolVar(&cfg.HTTP3, "http3", cfg.HTTP3, "use HTTP/3 over QUIC for uploads")
	fs.BoolVar(&cfg.Insecure, "insecure", cfg.Insecure, "skip TLS certificate verification")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "per-request timeout")
	fs.StringVar(&cfg.Conversation, "conversation", cfg.Conversation, "conversation id to continue")
	fs.StringVar(&cfg.File, "file", "", "file to upload and attach to the message")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	cfg.Args = fs.Args()

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	cfg.Concurrency = clamp(cfg.Concurrency, 1, maxConcurrency)
	cfg.MaxAttempts = clamp(cfg.MaxAttempts, 1, maxAttempts)
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	cfg.StreamTransport = strings.ToLower(cfg.StreamTransport)
	if cfg.StreamTransport != "ws" {
		cfg.StreamTransport = "sse"
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = cfg.ServerURL
	}
	return cfg, nil
}

// loadDotEnv loads a .env file from the working directory when one exists.
// Variables already present in the environment are left untouched.
func loadDotEnv() {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: cannot load %s: %v\n", dotEnvFile, err)
	}
}

// loadLayers reads the optional YAML file and then the CHUNKCHAT_* environment
// into one koanf instance. Environment keys map CHUNKCHAT_SERVER_URL to server-url.
func loadLayers(path string) (*koanf.Koanf, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", "-")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	return k, nil
}

// configPath finds the config file before flags are parsed, since the file
// layer sits below the flag layer.
func configPath(args []string) string {
	path := os.Getenv(envConfig)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		switch {
		case name == "config" && i+1 < len(args):
			path = args[i+1]
			i++
		case strings.HasPrefix(name, "config="):
			path = strings.TrimPrefix(name, "config=")
		}
	}
	return path
}

func setString(k *koanf.Koanf, key string, dst *string) {
	if k.Exists(key) {
		*dst = k.String(key)
	}
}

func setInt(k *koanf.Koanf, key string, dst *int) {
	if k.Exists(key) {
		*dst = k.Int(key)
	}
}

func setDuration(k *koanf.Koanf, key string, dst *time.Duration) {
	if k.Exists(key) {
		*dst = k.Duration(key)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
