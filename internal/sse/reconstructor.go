package sse

import (
	"bytes"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// EventKind identifies what a reconstructed frame carries.
type EventKind int

const (
	// KindTextStart is emitted once, immediately before the first non-empty delta.
	KindTextStart EventKind = iota
	// KindTextDelta carries the newly generated suffix of the cumulative text.
	KindTextDelta
)

// Event is a signal produced by the Reconstructor while consuming SSE bytes.
type Event struct {
	Kind  EventKind
	Delta string
}

// Reconstructor turns the watsonx generation_stream SSE byte stream into
// incremental text deltas and cumulative token counters.
//
// The upstream echoes the full generated text on every frame rather than a
// delta, so the reconstructor diffs each frame against the text observed so
// far and emits only the new suffix. Token counts are likewise cumulative on
// the wire and overwrite local counters.
type Reconstructor struct {
	log *logrus.Logger

	buf        []byte
	text       string
	textOpened bool

	inputTokens  int
	outputTokens int
	stopReason   string
	dropped      int
}

// NewReconstructor creates a Reconstructor. A nil logger falls back to the
// logrus standard logger.
func NewReconstructor(logger *logrus.Logger) *Reconstructor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reconstructor{log: logger}
}

// Feed appends a received chunk and returns the events produced by every
// complete line it contained. The trailing partial line stays buffered for
// the next call.
//
// Splitting the raw byte buffer on '\n' is UTF-8 safe: continuation bytes of
// a multi-byte rune are always >= 0x80, so a rune split across chunks can
// never be cut by the line scan and is decoded once its line completes.
func (r *Reconstructor) Feed(chunk []byte) []Event {
	r.buf = append(r.buf, chunk...)

	var events []Event
	for {
		idx := bytes.IndexByte(r.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(r.buf[:idx])
		r.buf = r.buf[idx+1:]
		events = append(events, r.processLine(line)...)
	}
	return events
}

// Finish flushes the buffered tail as a final line. Call it once when the
// body stream ends; the upstream does not always terminate the last frame
// with a newline.
func (r *Reconstructor) Finish() []Event {
	if len(r.buf) == 0 {
		return nil
	}
	line := string(r.buf)
	r.buf = nil
	return r.processLine(line)
}

func (r *Reconstructor) processLine(line string) []Event {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" || payload == "[DONE]" {
		return nil
	}
	if !gjson.Valid(payload) {
		r.dropped++
		r.log.WithField("line", truncate(payload, 120)).Debug("sse: skipping malformed frame")
		return nil
	}

	result := gjson.Get(payload, "results.0")
	if !result.Exists() {
		return nil
	}

	var events []Event
	if gen := result.Get("generated_text"); gen.Exists() {
		delta := diffCumulative(r.text, gen.String())
		if delta != "" {
			if !r.textOpened {
				r.textOpened = true
				events = append(events, Event{Kind: KindTextStart})
			}
			r.text += delta
			events = append(events, Event{Kind: KindTextDelta, Delta: delta})
		}
	}
	if v := result.Get("input_token_count"); v.Exists() {
		r.inputTokens = int(v.Int())
	}
	if v := result.Get("generated_token_count"); v.Exists() {
		r.outputTokens = int(v.Int())
	}
	if v := result.Get("stop_reason"); v.Exists() {
		r.stopReason = v.String()
	}
	return events
}

// diffCumulative returns the suffix of next beyond prior. A next that is
// shorter than or equal in length to prior yields an empty delta; repeated
// or out-of-order frames must clamp rather than produce a negative slice.
func diffCumulative(prior, next string) string {
	if len(next) <= len(prior) {
		return ""
	}
	return next[len(prior):]
}

// Text returns the cumulative generated text observed so far.
func (r *Reconstructor) Text() string { return r.text }

// TextOpened reports whether the text channel has been opened.
func (r *Reconstructor) TextOpened() bool { return r.textOpened }

// InputTokens returns the most recent input token count reported upstream.
func (r *Reconstructor) InputTokens() int { return r.inputTokens }

// OutputTokens returns the most recent generated token count reported upstream.
func (r *Reconstructor) OutputTokens() int { return r.outputTokens }

// StopReason returns the upstream stop reason, if any frame carried one.
func (r *Reconstructor) StopReason() string { return r.stopReason }

// Dropped returns how many malformed frames were skipped.
func (r *Reconstructor) Dropped() int { return r.dropped }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
