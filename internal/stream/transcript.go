package stream

import (
	"sync"

	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

// Item is one typed piece of transcript content.
type Item struct {
	Kind string
	// Text holds the text of a text item or the URL of an image item.
	Text string
	// FileID and Name describe a file item.
	FileID string
	Name   string
}

// TextItem returns a text content item.
func TextItem(s string) Item {
	return Item{Kind: protocol.ContentText, Text: s}
}

// ImageItem returns an image content item pointing at url.
func ImageItem(url string) Item {
	return Item{Kind: protocol.ContentImage, Text: url}
}

// FileItem returns a file content item.
func FileItem(fileID, name string) Item {
	return Item{Kind: protocol.ContentFile, FileID: fileID, Name: name}
}

// Entry is one transcript message.
type Entry struct {
	Role    string
	Content []Item
}

// Text concatenates the entry's text items.
func (e Entry) Text() string {
	var out string
	for _, it := range e.Content {
		if it.Kind == protocol.ContentText {
			out += it.Text
		}
	}
	return out
}

// Transcript is the append-only message list of one conversation. Only the
// last entry may change, and only when it is an assistant entry receiving
// streamed text.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds a complete entry.
func (t *Transcript) Append(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.Content = append([]Item(nil), e.Content...)
	t.entries = append(t.entries, e)
}

// AppendAssistantText coalesces streamed text into the last assistant entry,
// or starts a new assistant entry when the last entry belongs to someone else.
func (t *Transcript) AppendAssistantText(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.entries); n > 0 && t.entries[n-1].Role == protocol.RoleAssistant {
		last := &t.entries[n-1]
		if m := len(last.Content); m > 0 && last.Content[m-1].Kind == protocol.ContentText {
			last.Content[m-1].Text += s
			return
		}
		last.Content = append(last.Content, TextItem(s))
		return
	}
	t.entries = append(t.entries, Entry{Role: protocol.RoleAssistant, Content: []Item{TextItem(s)}})
}

// Entries returns a copy of all entries.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = Entry{Role: e.Role, Content: append([]Item(nil), e.Content...)}
	}
	return out
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Last returns the last entry.
func (t *Transcript) Last() (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	e := t.entries[len(t.entries)-1]
	return Entry{Role: e.Role, Content: append([]Item(nil), e.Content...)}, true
}
