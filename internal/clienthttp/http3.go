package clienthttp

import (
	"crypto/tls"
	"net/http"

	"github.com/quic-go/quic-go/http3"

	"github.com/sheerbytes/chunkchat/internal/transport"
)

// NewHTTP3Client returns an HTTP client that speaks HTTP/3 with QUIC windows
// sized for concurrency in-flight chunks of chunkSize bytes. WebSocket
// streams still dial over TCP.
func NewHTTP3Client(tlsConfig *tls.Config, chunkSize int64, concurrency int) (*http.Client, transport.QuicTuneResult) {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS13}
	}
	qcfg, res := transport.UploadQuicConfig(chunkSize, concurrency)
	rt := &http3.Transport{
		TLSClientConfig: tlsConfig,
		QUICConfig:      qcfg,
	}
	return &http.Client{Transport: rt}, res
}
