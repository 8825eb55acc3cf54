package watsonx

// EventType discriminates the events emitted on a stream channel.
type EventType string

const (
	// EventStart is emitted once, before any network I/O completes.
	EventStart EventType = "start"
	// EventTextStart is emitted when the sole text content block is created.
	EventTextStart EventType = "text_start"
	// EventTextDelta carries a non-empty suffix of newly generated text.
	EventTextDelta EventType = "text_delta"
	// EventTextEnd carries the final cumulative text when the body ends normally.
	EventTextEnd EventType = "text_end"
	// EventDone is the terminal event of a successful stream.
	EventDone EventType = "done"
	// EventError is the terminal event of a failed stream.
	EventError EventType = "error"
)

// Event is one element of the stream channel. Exactly one terminal event
// (done or error) is emitted per invocation, always last, after which the
// channel is closed.
//
// Partial aliases the message still being built: it is safe to read at the
// instant an event is received but continues to mutate afterwards. Terminal
// events carry the final, settled message.
type Event struct {
	Type EventType

	// ContentIndex is the index of the text block for text_* events.
	ContentIndex int
	// Delta is the new text suffix on text_delta events.
	Delta string
	// Content is the full generated text on text_end events.
	Content string

	// Reason is set on terminal events.
	Reason StopReason
	// Err is set on error events.
	Err error

	Partial *Message
}

// IsTerminal reports whether the event is the last one of its stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
