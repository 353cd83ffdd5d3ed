package ask

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
		printAskUsage()
		return
	}

	cfg, err := config.ParseClientConfig("ask", args)
	if err != nil {
		fmt.Fprintln(termio.Stderr(), err)
		printAskUsage()
		exit(2)
	}
	if len(cfg.Args) == 0 && cfg.File == "" {
		printAskUsage()
		exit(2)
	}

	logger := logging.NewWithWriter(termio.Stderr(), "chunkchat-ask", cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = app.RunAsk(ctx, logger, cfg, app.Output{
		Result:   termio.Stdout(),
		Progress: termio.StderrFile(),
	})
	stop()
	if err != nil {
		logger.Error("ask failed", "error", err)
		exit(1)
	}
	termio.Flush()
}

func exit(code int) {
	termio.Flush()
	os.Exit(code)
}

func printAskUsage() {
	w := termio.Stderr()
	fmt.Fprintln(w, "usage: chunkchat ask [flags] <message...>")
	fmt.Fprintln(w, "  --file PATH              upload PATH and attach it to the message")
	fmt.Fprintln(w, "  --conversation ID        continue an existing conversation")
	fmt.Fprintln(w, "  --stream-transport T     sse or ws (default sse)")
	fmt.Fprintln(w, "  --server-url URL         server URL (default http://localhost:8080)")
	fmt.Fprintln(w, "  --public-url URL         base URL for image links (default: server URL)")
	fmt.Fprintln(w, "  --chunk-size N           chunk size in bytes (default 2097152)")
	fmt.Fprintln(w, "  --concurrency N          concurrent chunk uploads, 1..16 (default 3)")
	fmt.Fprintln(w, "  --checksum ALG           md5, crc32c, xxhash64 or none (default md5)")
	fmt.Fprintln(w, "  --http3                  upload and stream over HTTP/3")
	fmt.Fprintln(w, "  --request-timeout D      per-request timeout (default 30s)")
	fmt.Fprintln(w, "  --config PATH            YAML config file (env CHUNKCHAT_CONFIG)")
	fmt.Fprintln(w, "  --log-level LEVEL        debug, info, warn or error (default info)")
	fmt.Fprintln(w, "flags go before the message; the reply streams to stdout")
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
