package watsonx

import "strings"

// Role markers of the watsonx flat prompt format. Each rendered turn is an
// opening marker line, the turn text, and a closing marker; the prompt ends
// with a bare assistant opener to prime the model to continue as assistant.
const (
	markerSystem    = "<|system|>"
	markerUser      = "<|user|>"
	markerAssistant = "<|assistant|>"
	markerEnd       = "<|end|>"
)

// RenderPrompt deterministically flattens a conversation into the prompt text
// the generation endpoint expects. It is a pure function: no I/O and no
// mutation of the input. Turns with roles other than user or assistant are
// skipped silently; an empty message list is valid and still yields the
// system segment (if any) plus the trailing priming segment.
func RenderPrompt(conv Conversation) string {
	var segments []string

	if sys := strings.TrimSpace(conv.SystemPrompt); sys != "" {
		segments = append(segments, markerSystem+"\n"+sys+"\n"+markerEnd)
	}

	for _, turn := range conv.Messages {
		var opener string
		switch turn.Role {
		case RoleUser:
			opener = markerUser
		case RoleAssistant:
			opener = markerAssistant
		default:
			continue
		}
		segments = append(segments, opener+"\n"+turn.text()+"\n"+markerEnd)
	}

	segments = append(segments, markerAssistant+"\n")
	return strings.Join(segments, "\n")
}
