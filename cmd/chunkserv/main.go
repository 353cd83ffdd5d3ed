package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quic-go/quic-go/http3"

	"github.com/sheerbytes/chunkchat/internal/app"
	"github.com/sheerbytes/chunkchat/internal/config"
	"github.com/sheerbytes/chunkchat/internal/devserver"
	"github.com/sheerbytes/chunkchat/internal/logging"
	"github.com/sheerbytes/chunkchat/internal/termio"
	"github.com/sheerbytes/chunkchat/internal/transport"
)

const (
	serverVersion = "v0.1.0"

	udpBufferBytes  = 8 * 1024 * 1024
	shutdownTimeout = 10 * time.Second

	// Upper bound of client chunk concurrency.
	quicUploadStreams = 16
)

func main() {
	termio.Init()
	if hasHelpFlag(os.Args[1:]) {
		printServerUsage()
		return
	}
	if hasVersionFlag(os.Args[1:]) {
		fmt.Fprintln(termio.Stdout(), serverVersion)
		termio.Flush()
		return
	}

	cfg, err := config.ParseServerConfig()
	if err != nil {
		fmt.Fprintln(termio.Stderr(), err)
		exit(2)
	}
	logger := logging.NewWithWriter(termio.Stderr(), "chunkserv", cfg.LogLevel, cfg.LogFormat)

	srv, err := devserver.New(devserver.Options{
		DataDir:   cfg.DataDir,
		PublicURL: cfg.PublicURL,
		UploadTTL: cfg.UploadTTL,
		Responder: devserver.EchoResponder{Delay: cfg.TokenDelay},
		Logger:    logger,
	})
	if err != nil {
		logger.Error("create server failed", "error", err)
		exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, srv, logger); err != nil {
		logger.Error("server failed", "error", err)
		srv.Close()
		exit(1)
	}
	srv.Close()
	logger.Info("server stopped")
	termio.Flush()
}

// serve runs the TCP listener, plus an HTTP/3 listener on the same port when
// TLS material is configured, until ctx is done.
func serve(ctx context.Context, cfg config.ServerConfig, srv *devserver.Server, logger *slog.Logger) error {
	handler := srv.Handler()
	errCh := make(chan error, 2)

	var h3 *http3.Server
	if cfg.HTTP3() {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("load tls key pair: %w", err)
		}
		tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS13}

		udpAddr, err := net.ResolveUDPAddr("udp", cfg.Addr)
		if err != nil {
			return fmt.Errorf("resolve udp addr: %w", err)
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			return fmt.Errorf("listen udp: %w", err)
		}
		logger.Info(app.FormatUDPTuneLine(transport.ApplyUDPBuffers(conn, udpBufferBytes, udpBufferBytes)))
		qcfg, tune := transport.UploadQuicConfig(config.DefaultChunkSize, quicUploadStreams)
		logger.Info(app.FormatQuicTuneLine(tune))

		h3 = &http3.Server{
			Handler:    handler,
			TLSConfig:  tlsConfig,
			QUICConfig: qcfg,
		}
		go func() {
			logger.Info("http/3 listener started", "addr", conn.LocalAddr().String())
			if err := h3.Serve(conn); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
				errCh <- fmt.Errorf("http/3: %w", err)
			}
		}()
		handler = advertiseHTTP3(h3, handler, logger)
	}

	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server started", "addr", cfg.Addr, "data_dir", cfg.DataDir, "tls", cfg.HTTP3(), "version", serverVersion)
		var err error
		if cfg.HTTP3() {
			err = hs.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = hs.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Open event streams end when the devserver closes; Shutdown waits for them.
	go srv.Close()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if h3 != nil {
		_ = h3.Close()
	}
	return runErr
}

// advertiseHTTP3 adds Alt-Svc headers so TCP clients learn about the QUIC listener.
func advertiseHTTP3(h3 *http3.Server, next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h3.SetQUICHeaders(w.Header()); err != nil {
			logger.Debug("set alt-svc", "error", err)
		}
		next.ServeHTTP(w, r)
	})
}

func exit(code int) {
	termio.Flush()
	os.Exit(code)
}

func printServerUsage() {
	w := termio.Stderr()
	fmt.Fprintln(w, "usage: chunkserv [flags]")
	fmt.Fprintln(w, "  --addr ADDR          listen address (default :8080)")
	fmt.Fprintln(w, "  --data-dir DIR       directory for chunks and merged files (default ./uploads)")
	fmt.Fprintln(w, "  --public-url URL     base URL returned for merged files")
	fmt.Fprintln(w, "  --upload-ttl D       how long unmerged chunks are kept (default 2h)")
	fmt.Fprintln(w, "  --token-delay D      pause between streamed reply tokens (default 40ms)")
	fmt.Fprintln(w, "  --tls-cert PATH      TLS certificate; with --tls-key enables HTTPS and HTTP/3")
	fmt.Fprintln(w, "  --tls-key PATH       TLS private key")
	fmt.Fprintln(w, "  --config PATH        YAML config file (env CHUNKCHAT_CONFIG)")
	fmt.Fprintln(w, "  --log-level LEVEL    debug, info, warn or error (default info)")
	fmt.Fprintln(w, "  --log-format FORMAT  text or json (default text)")
	termio.Flush()
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func hasVersionFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}
