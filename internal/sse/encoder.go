package sse

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// WriteEvent writes ev in text/event-stream framing. Multi-line data is split
// across data fields so a Decoder reproduces it exactly.
func WriteEvent(w io.Writer, ev Event) error {
	bw := bufio.NewWriter(w)
	if ev.ID != "" {
		bw.WriteString("id: " + ev.ID + "\n")
	}
	if ev.Event != "" {
		bw.WriteString("event: " + ev.Event + "\n")
	}
	if ev.Retry > 0 {
		bw.WriteString("retry: " + strconv.FormatInt(ev.Retry.Milliseconds(), 10) + "\n")
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		bw.WriteString("data: " + line + "\n")
	}
	bw.WriteString("\n")
	return bw.Flush()
}

// WriteComment writes a comment line, which readers ignore. Servers use it
// as a keep-alive.
func WriteComment(w io.Writer, text string) error {
	_, err := io.WriteString(w, ": "+text+"\n\n")
	return err
}
