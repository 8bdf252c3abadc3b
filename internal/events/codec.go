// Package events defines the wire protocol spoken over the websocket: one
// frame per event, the event kind on the first line and its JSON payload
// after it.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrInvalidPayload = errors.New("invalid payload")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Encode builds a frame from an outbound kind and its payload.
func Encode(kind string, payload any) ([]byte, error) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", kind, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(kind) + 1 + len(jsonBytes))
	buf.WriteString(kind)
	buf.WriteByte('\n')
	buf.Write(jsonBytes)

	return buf.Bytes(), nil
}

// SplitFrame separates a frame into its kind and raw payload.
func SplitFrame(frame []byte) (string, []byte, error) {
	kind, body, found := bytes.Cut(frame, []byte("\n"))
	if !found || len(kind) == 0 {
		return "", nil, ErrMalformedFrame
	}
	return string(bytes.TrimSpace(kind)), body, nil
}

// Decode parses and validates one inbound frame. The returned error wraps
// ErrMalformedFrame, ErrUnknownKind or ErrInvalidPayload.
func Decode(frame []byte) (Inbound, error) {
	kind, body, err := SplitFrame(frame)
	if err != nil {
		return nil, err
	}

	newEvent, ok := inboundKinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	event := newEvent()
	if err := json.Unmarshal(body, event); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, kind, err)
	}

	if err := validate.Struct(event); err != nil {
		var validateErrs validator.ValidationErrors
		if errors.As(err, &validateErrs) {
			msgs := make([]string, 0, len(validateErrs))
			for _, fe := range validateErrs {
				msgs = append(msgs, fieldError(fe))
			}
			return nil, fmt.Errorf("%w: %s: %s", ErrInvalidPayload, kind, strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, kind, err)
	}

	return event, nil
}

func fieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_without":
		return fmt.Sprintf("%s is required without %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

// ErrorFrame builds an error event answering the inbound event kind.
func ErrorFrame(event string, kind ErrorKind, message string) []byte {
	frame, err := Encode(Error, ErrorNotice{Kind: kind, Event: event, Message: message})
	if err != nil {
		// ErrorNotice only holds strings
		panic(err)
	}
	return frame
}
