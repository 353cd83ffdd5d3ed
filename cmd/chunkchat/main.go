package main

import (
	"fmt"
	"os"

	"github.com/sheerbytes/chunkchat/internal/cli/ask"
	"github.com/sheerbytes/chunkchat/internal/cli/upload"
	"github.com/sheerbytes/chunkchat/internal/termio"
)

const version = "v0.1.0"

func main() {
	termio.Init()
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		exit(2)
	}
	if hasVersionFlag(args[:1]) {
		fmt.Fprintf(termio.Stdout(), "chunkchat %s\n", version)
		exit(0)
	}

	cmdName := args[0]
	switch cmdName {
	case "upload":
		upload.Run(args[1:])
	case "ask":
		ask.Run(args[1:])
	case "help":
		printUsage()
	default:
		if hasHelpFlag(args) {
			printUsage()
			exit(0)
		}
		fmt.Fprintf(termio.Stderr(), "unknown command: %s\n", cmdName)
		printUsage()
		exit(2)
	}
	termio.Flush()
}

func printUsage() {
	w := termio.Stderr()
	fmt.Fprintln(w, "usage: chunkchat <command> [flags] [args]")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  upload  upload files in resumable chunks")
	fmt.Fprintln(w, "  ask     send a message, optionally with an attachment, and stream the reply")
	fmt.Fprintln(w, "quick examples:")
	fmt.Fprintln(w, "  chunkchat upload ./report.pdf")
	fmt.Fprintln(w, "  chunkchat ask --file ./cat.png what is in this picture?")
	fmt.Fprintln(w, "  chunkchat ask --conversation <id> tell me more")
	fmt.Fprintln(w, "to learn detailed usage:")
	fmt.Fprintln(w, "  chunkchat upload --help")
	fmt.Fprintln(w, "  chunkchat ask --help")
}

func exit(code int) {
	termio.Flush()
	os.Exit(code)
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
