package upload

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sheerbytes/chunkchat/internal/app"
	"github.com/sheerbytes/chunkchat/internal/config"
	"github.com/sheerbytes/chunkchat/internal/logging"
	"github.com/sheerbytes/chunkchat/internal/termio"
)

func Run(args []string) {
	if hasHelpFlag(args) {
		printUploadUsage()
		return
	}

	cfg, err := config.ParseClientConfig("upload", args)
	if err != nil {
		fmt.Fprintln(termio.Stderr(), err)
		printUploadUsage()
		exit(2)
	}
	if len(cfg.Args) == 0 {
		printUploadUsage()
		exit(2)
	}

	logger := logging.NewWithWriter(termio.Stderr(), "chunkchat-upload", cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = app.RunUpload(ctx, logger, cfg, app.Output{
		Result:   termio.Stdout(),
		Progress: termio.StderrFile(),
	})
	stop()
	if err != nil {
		logger.Error("upload failed", "error", err)
		exit(1)
	}
	termio.Flush()
}

func exit(code int) {
	termio.Flush()
	os.Exit(code)
}

func printUploadUsage() {
	w := termio.Stderr()
	fmt.Fprintln(w, "usage: chunkchat upload [flags] <paths...>")
	fmt.Fprintln(w, "  --server-url URL         server URL (default http://localhost:8080)")
	fmt.Fprintln(w, "  --public-url URL         base URL for printed file links (default: server URL)")
	fmt.Fprintln(w, "  --chunk-size N           chunk size in bytes (default 2097152)")
	fmt.Fprintln(w, "  --concurrency N          concurrent chunk uploads, 1..16 (default 3)")
	fmt.Fprintln(w, "  --max-attempts N         attempts per chunk, 1..10 (default 3)")
	fmt.Fprintln(w, "  --retry-delay D          base delay between chunk attempts (default 200ms)")
	fmt.Fprintln(w, "  --checksum ALG           md5, crc32c, xxhash64 or none (default md5)")
	fmt.Fprintln(w, "  --http3                  upload over HTTP/3")
	fmt.Fprintln(w, "  --insecure               skip TLS certificate verification")
	fmt.Fprintln(w, "  --config PATH            YAML config file (env CHUNKCHAT_CONFIG)")
	fmt.Fprintln(w, "  --log-level LEVEL        debug, info, warn or error (default info)")
	fmt.Fprintln(w, "interrupted uploads resume when the same file is uploaded again")
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--" {
			return false
		}
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}
