package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CodeOK is the envelope code for a successful response.
const CodeOK = 0

// Envelope wraps every JSON response returned by the upload and chat endpoints.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope creates a successful envelope around data.
// The data is automatically marshaled to JSON.
func NewEnvelope(data any) (Envelope, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal data: %w", err)
		}
		raw = b
	}
	return Envelope{Code: CodeOK, Message: "ok", Data: raw}, nil
}

// NewErrorEnvelope creates a failed envelope carrying only a code and message.
func NewErrorEnvelope(code int, message string) Envelope {
	if code == CodeOK {
		code = -1
	}
	return Envelope{Code: code, Message: message}
}

// OK reports whether the envelope signals success.
func (e Envelope) OK() bool {
	return e.Code == CodeOK
}

// DecodeData unmarshals the envelope's data into out.
func (e Envelope) DecodeData(out any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return errors.New("data is empty")
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	return nil
}
