package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CheckFileResponse reports what the server already holds for a fingerprint.
type CheckFileResponse struct {
	IsCompleted bool   `json:"isCompleted"`
	Uploaded    []int  `json:"uploaded"`
	FilePath    string `json:"filePath,omitempty"`
}

// MergeRequest asks the server to assemble all chunks of a fingerprint.
type MergeRequest struct {
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	TotalChunks int    `json:"totalChunks"`
}

// MergeResponse carries the stored artifact location.
type MergeResponse struct {
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
}

// SendMessageRequest triggers the server to produce stream events for a conversation.
type SendMessageRequest struct {
	ConversationID string `json:"id"`
	Message        string `json:"message"`
	FileID         string `json:"fileId,omitempty"`
}

// CreateConversationRequest creates a new conversation.
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// Conversation identifies a conversation.
type Conversation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// StreamEvent is a single frame of the conversation event stream.
type StreamEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrUnknownEventType is returned by DecodeStreamEvent for an unrecognized type.
var ErrUnknownEventType = errors.New("unknown event type")

// DecodeStreamEvent parses and validates a raw event frame.
func DecodeStreamEvent(raw []byte) (StreamEvent, error) {
	var ev StreamEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return StreamEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	switch ev.Type {
	case EventChunk, EventComplete, EventError:
		return ev, nil
	case "":
		return StreamEvent{}, errors.New("type is required")
	default:
		return StreamEvent{}, fmt.Errorf("%w %q", ErrUnknownEventType, ev.Type)
	}
}

// EncodeStreamEvent marshals an event frame.
func EncodeStreamEvent(ev StreamEvent) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return b, nil
}
