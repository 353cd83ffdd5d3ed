package app

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sheerbytes/chunkchat/internal/clienthttp"
	"github.com/sheerbytes/chunkchat/internal/config"
	"github.com/sheerbytes/chunkchat/internal/transfer"
	"github.com/sheerbytes/chunkchat/internal/upload"
)

// NewBackend builds the HTTP client for cfg. With HTTP3 set, uploads and SSE
// streams travel over QUIC; WebSocket streams still use TCP.
func NewBackend(cfg config.ClientConfig, logger *slog.Logger) (*clienthttp.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.Insecure,
	}

	var httpClient *http.Client
	if cfg.HTTP3 {
		tlsConfig.MinVersion = tls.VersionTLS13
		c, tune := clienthttp.NewHTTP3Client(tlsConfig, cfg.ChunkSize, cfg.Concurrency)
		logger.Debug(FormatQuicTuneLine(tune))
		httpClient = c
	} else {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = tlsConfig
		tr.MaxIdleConnsPerHost = cfg.Concurrency + 1
		httpClient = &http.Client{Transport: tr}
	}

	client, err := clienthttp.New(cfg.ServerURL, clienthttp.Options{
		HTTPClient:      httpClient,
		Timeout:         cfg.RequestTimeout,
		StreamTransport: cfg.StreamTransport,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Insecure {
		logger.Warn("tls certificate verification disabled", "server_url", client.BaseURL())
	}
	return client, nil
}

// UploadOptions maps client config onto uploader options. Each process gets
// its own scope id so the server can tell concurrent clients apart in logs.
func UploadOptions(cfg config.ClientConfig) (upload.Options, error) {
	alg, err := transfer.ParseChecksumAlg(cfg.Checksum)
	if err != nil {
		return upload.Options{}, fmt.Errorf("checksum: %w", err)
	}
	return upload.Options{
		ChunkSize:   cfg.ChunkSize,
		Concurrency: cfg.Concurrency,
		MaxAttempts: cfg.MaxAttempts,
		Checksum:    alg,
		RetryDelay:  cfg.RetryDelay,
		ScopeID:     randomScopeID(),
	}, nil
}
