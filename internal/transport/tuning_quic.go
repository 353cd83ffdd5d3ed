package transport

import (
	"time"

	"github.com/quic-go/quic-go"
)

const (
	defaultInitialConnWindow = 2 * 1024 * 1024
	minQuicConnWindow        = 1 * 1024 * 1024
	maxQuicConnWindow        = 1024 * 1024 * 1024
	minQuicStreamWindow      = 1 * 1024 * 1024
	maxQuicStreamWindow      = 256 * 1024 * 1024
	minQuicMaxStreams        = 1
	maxQuicMaxStreams        = 2048

	quicKeepAlive   = 15 * time.Second
	quicIdleTimeout = 60 * time.Second
)

// QuicTuneResult describes the values actually applied to a quic.Config.
type QuicTuneResult struct {
	ConnWin    int
	StreamWin  int
	MaxStreams int
	Status     string
	Err        string
}

// BuildQuicConfig copies base and applies clamped receive windows and stream limits.
func BuildQuicConfig(base *quic.Config, connWin, streamWin, maxStreams int) (*quic.Config, QuicTuneResult) {
	cfg := &quic.Config{}
	if base != nil {
		copyCfg := *base
		cfg = &copyCfg
	}

	conn := clampQuicConnWindow(connWin)
	stream := clampQuicStreamWindow(streamWin)
	maxStr := clampQuicMaxStreams(maxStreams)
	initialConn := defaultInitialConnWindow
	if initialConn > conn {
		initialConn = conn
	}
	cfg.InitialConnectionReceiveWindow = uint64(initialConn)
	cfg.MaxConnectionReceiveWindow = uint64(conn)
	cfg.InitialStreamReceiveWindow = uint64(stream)
	cfg.MaxStreamReceiveWindow = uint64(stream)
	cfg.MaxIncomingStreams = int64(maxStr)

	return cfg, QuicTuneResult{
		ConnWin:    conn,
		StreamWin:  stream,
		MaxStreams: maxStr,
		Status:     StatusOK,
	}
}

// UploadQuicConfig sizes QUIC windows so that concurrency chunk bodies of
// chunkSize bytes fit in flight at once. An event stream needs one more stream.
func UploadQuicConfig(chunkSize int64, concurrency int) (*quic.Config, QuicTuneResult) {
	if concurrency < 1 {
		concurrency = 1
	}
	streamWin := int(chunkSize) * 2
	connWin := streamWin * concurrency
	base := &quic.Config{
		KeepAlivePeriod: quicKeepAlive,
		MaxIdleTimeout:  quicIdleTimeout,
	}
	return BuildQuicConfig(base, connWin, streamWin, concurrency*4+16)
}

func clampQuicConnWindow(n int) int {
	if n < minQuicConnWindow {
		return minQuicConnWindow
	}
	if n > maxQuicConnWindow {
		return maxQuicConnWindow
	}
	return n
}

func clampQuicStreamWindow(n int) int {
	if n < minQuicStreamWindow {
		return minQuicStreamWindow
	}
	if n > maxQuicStreamWindow {
		return maxQuicStreamWindow
	}
	return n
}

func clampQuicMaxStreams(n int) int {
	if n < minQuicMaxStreams {
		return minQuicMaxStreams
	}
	if n > maxQuicMaxStreams {
		return maxQuicMaxStreams
	}
	return n
}
