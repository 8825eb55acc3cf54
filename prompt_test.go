package watsonx

import (
	"strings"
	"testing"
)

func TestRenderPromptBlankSystem(t *testing.T) {
	conv := Conversation{
		SystemPrompt: "",
		Messages:     []Turn{{Role: RoleUser, Content: "hi"}},
	}

	got := RenderPrompt(conv)
	want := "<|user|>\nhi\n<|end|>\n<|assistant|>\n"
	if got != want {
		t.Errorf("RenderPrompt() = %q, want %q", got, want)
	}
	if strings.Contains(got, markerSystem) {
		t.Error("blank system prompt must not produce a system segment")
	}
}

func TestRenderPromptSystemAndTurns(t *testing.T) {
	conv := Conversation{
		SystemPrompt: "  be terse  ",
		Messages: []Turn{
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "hi there"},
			{Role: RoleUser, Content: "bye"},
		},
	}

	got := RenderPrompt(conv)
	want := strings.Join([]string{
		"<|system|>\nbe terse\n<|end|>",
		"<|user|>\nhello\n<|end|>",
		"<|assistant|>\nhi there\n<|end|>",
		"<|user|>\nbye\n<|end|>",
		"<|assistant|>\n",
	}, "\n")
	if got != want {
		t.Errorf("RenderPrompt() = %q, want %q", got, want)
	}
}

func TestRenderPromptSkipsUnknownRoles(t *testing.T) {
	conv := Conversation{
		Messages: []Turn{
			{Role: "tool", Content: "ignored"},
			{Role: RoleUser, Content: "hi"},
		},
	}

	got := RenderPrompt(conv)
	if strings.Contains(got, "ignored") {
		t.Errorf("unknown role content leaked into prompt: %q", got)
	}
	if !strings.Contains(got, "<|user|>\nhi\n<|end|>") {
		t.Errorf("user segment missing from prompt: %q", got)
	}
}

func TestRenderPromptFlattensBlocks(t *testing.T) {
	conv := Conversation{
		Messages: []Turn{
			{
				Role: RoleUser,
				Blocks: []ContentBlock{
					{Type: "text", Text: "first"},
					{Type: "image", Text: "dropped"},
					{Type: "text", Text: "second"},
				},
			},
		},
	}

	got := RenderPrompt(conv)
	if !strings.Contains(got, "<|user|>\nfirst\nsecond\n<|end|>") {
		t.Errorf("block flattening wrong: %q", got)
	}
	if strings.Contains(got, "dropped") {
		t.Errorf("non-text block leaked into prompt: %q", got)
	}
}

func TestRenderPromptEmptyMessages(t *testing.T) {
	got := RenderPrompt(Conversation{SystemPrompt: "sys"})
	want := "<|system|>\nsys\n<|end|>\n<|assistant|>\n"
	if got != want {
		t.Errorf("RenderPrompt() = %q, want %q", got, want)
	}

	// No system prompt either: still a valid prompt, just the priming segment.
	if got := RenderPrompt(Conversation{}); got != "<|assistant|>\n" {
		t.Errorf("RenderPrompt(empty) = %q, want priming segment only", got)
	}
}

func TestRenderPromptDoesNotMutateInput(t *testing.T) {
	msgs := []Turn{{Role: RoleUser, Content: "hi"}}
	conv := Conversation{Messages: msgs}
	RenderPrompt(conv)
	if msgs[0].Content != "hi" || msgs[0].Role != RoleUser {
		t.Error("RenderPrompt mutated its input")
	}
}
