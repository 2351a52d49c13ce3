package chat

import (
	"context"
	"strings"
)

// EventType identifies a stream event.
type EventType string

const (
	// EventContent carries one partial content fragment.
	EventContent EventType = "content"
	// EventDone terminates a successful stream and carries the result.
	EventDone EventType = "done"
	// EventError terminates a failed stream.
	EventError EventType = "error"
)

// Event is one unit of streamed delivery. A stream is zero or more
// content events followed by exactly one terminal event (done or error).
type Event struct {
	Type    EventType
	Content string
	Result  *Result
	Err     error
}

// Sink receives stream events in order.
type Sink func(Event)

// ChatStream executes one chat turn and delivers the assistant content
// incrementally: zero or more content fragments, then exactly one
// terminal event. The transport layer owns framing beyond that contract.
func (s *Service) ChatStream(ctx context.Context, userID string, req Request, sink Sink) error {
	result, err := s.Chat(ctx, userID, req)
	if err != nil {
		sink(Event{Type: EventError, Err: err})
		return err
	}

	// Fragments break on rune boundaries so each one is valid text on
	// its own. A fragment may exceed chunkBytes by at most one rune.
	content := result.AssistantMessage.Content
	var frag strings.Builder
	for _, r := range content {
		frag.WriteRune(r)
		if frag.Len() >= s.chunkBytes {
			sink(Event{Type: EventContent, Content: frag.String()})
			frag.Reset()
		}
	}
	if frag.Len() > 0 {
		sink(Event{Type: EventContent, Content: frag.String()})
	}

	sink(Event{Type: EventDone, Result: result})
	return nil
}
