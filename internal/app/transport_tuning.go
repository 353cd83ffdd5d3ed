package app

import (
	"fmt"

	"github.com/sheerbytes/chunkchat/internal/transport"
)

// FormatUDPTuneLine describes the socket buffers applied to an HTTP/3 listener.
func FormatUDPTuneLine(result transport.UdpTuneResult) string {
	line := fmt.Sprintf(
		"UDP buffers: requested r=%s w=%s status=%s",
		formatMiB(int64(result.RequestedR)),
		formatMiB(int64(result.RequestedW)),
		normalizeStatus(result.Status),
	)
	if result.Err != "" {
		line += " err=" + result.Err
	}
	return line
}

// FormatQuicTuneLine describes the flow control windows of a QUIC config.
func FormatQuicTuneLine(result transport.QuicTuneResult) string {
	line := fmt.Sprintf(
		"QUIC tuning: conn_window=%s stream_window=%s max_streams=%d status=%s",
		formatMiB(int64(result.ConnWin)),
		formatMiB(int64(result.StreamWin)),
		result.MaxStreams,
		normalizeStatus(result.Status),
	)
	if result.Err != "" {
		line += " err=" + result.Err
	}
	return line
}

func normalizeStatus(status string) string {
	if status == "" {
		return transport.StatusNA
	}
	return status
}

func formatMiB(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return fmt.Sprintf("%.1f MiB", float64(n)/(1024*1024))
}
