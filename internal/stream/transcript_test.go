package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

func TestTranscript_CoalescesAssistantText(t *testing.T) {
	tr := NewTranscript()
	tr.Append(Entry{Role: protocol.RoleUser, Content: []Item{TextItem("hi")}})
	tr.AppendAssistantText("Hel")
	tr.AppendAssistantText("lo")

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, protocol.RoleAssistant, entries[1].Role)
	require.Len(t, entries[1].Content, 1)
	assert.Equal(t, "Hello", entries[1].Text())
}

func TestTranscript_NewAssistantEntryAfterUser(t *testing.T) {
	tr := NewTranscript()
	tr.AppendAssistantText("first")
	tr.Append(Entry{Role: protocol.RoleUser, Content: []Item{TextItem("again")}})
	tr.AppendAssistantText("second")

	entries := tr.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0].Text())
	assert.Equal(t, "second", entries[2].Text())
}

func TestTranscript_AssistantEntryEndingInImage(t *testing.T) {
	tr := NewTranscript()
	tr.Append(Entry{Role: protocol.RoleAssistant, Content: []Item{ImageItem("http://x/a.png")}})
	tr.AppendAssistantText("caption")

	last, ok := tr.Last()
	require.True(t, ok)
	require.Len(t, last.Content, 2)
	assert.Equal(t, protocol.ContentImage, last.Content[0].Kind)
	assert.Equal(t, "caption", last.Content[1].Text)
	assert.Equal(t, 1, tr.Len())
}

func TestTranscript_EntriesAreCopies(t *testing.T) {
	tr := NewTranscript()
	tr.AppendAssistantText("a")
	snap := tr.Entries()
	snap[0].Content[0].Text = "mutated"

	last, _ := tr.Last()
	assert.Equal(t, "a", last.Text())
}
