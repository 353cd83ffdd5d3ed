package devserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

// Prompt is what a responder gets to answer.
type Prompt struct {
	ConversationID string
	Message        string
	FileID         string
	// FilePath is the public path of the attachment, empty if FileID is unknown.
	FilePath string
}

// Responder produces reply events for a prompt. It must stop when ctx is done
// and must end with a complete or error event otherwise.
type Responder interface {
	Respond(ctx context.Context, p Prompt, emit func(protocol.StreamEvent))
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, p Prompt, emit func(protocol.StreamEvent))

func (f ResponderFunc) Respond(ctx context.Context, p Prompt, emit func(protocol.StreamEvent)) {
	f(ctx, p, emit)
}

// EchoResponder streams the prompt back word by word, pausing delay between
// tokens. It stands in for a completion service during development.
type EchoResponder struct {
	Delay time.Duration
}

func (e EchoResponder) Respond(ctx context.Context, p Prompt, emit func(protocol.StreamEvent)) {
	if p.FileID != "" && p.FilePath == "" {
		emit(protocol.StreamEvent{Type: protocol.EventError, Error: fmt.Sprintf("attachment %s not found", p.FileID)})
		return
	}

	for _, tok := range Tokenize(echoText(p)) {
		if e.Delay > 0 {
			t := time.NewTimer(e.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		} else if ctx.Err() != nil {
			return
		}
		emit(protocol.StreamEvent{Type: protocol.EventChunk, Content: tok})
	}
	emit(protocol.StreamEvent{Type: protocol.EventComplete})
}

func echoText(p Prompt) string {
	var b strings.Builder
	if p.FilePath != "" {
		fmt.Fprintf(&b, "Received attachment %s. ", p.FilePath)
	}
	if p.Message != "" {
		fmt.Fprintf(&b, "You said: %s", p.Message)
	} else {
		b.WriteString("No message text.")
	}
	return b.String()
}

// Tokenize splits s into words, each keeping its trailing whitespace, so the
// concatenation of the tokens equals s.
func Tokenize(s string) []string {
	var out []string
	start := 0
	inSpace := false
	for i, r := range s {
		space := r == ' ' || r == '\n' || r == '\t'
		if inSpace && !space {
			out = append(out, s[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
