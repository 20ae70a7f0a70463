package engine

import (
	"strings"

	"gend/pkg/types"
)

// renderChatML renders conversation history into a ChatML-framed prompt for
// in-process runtimes. When addGenerationPrompt is set, an open assistant
// turn is appended so decoding continues as the assistant.
func renderChatML(history []types.ChatMessage, addGenerationPrompt bool) string {
	var b strings.Builder
	for _, msg := range history {
		b.WriteString("<|im_start|>")
		b.WriteString(msg.Role)
		b.WriteString("\n")
		b.WriteString(msg.Content)
		b.WriteString("<|im_end|>\n")
	}
	if addGenerationPrompt {
		b.WriteString("<|im_start|>assistant\n")
	}
	return b.String()
}

// PromptTokenizer is the Tokenizer for prompt-oriented runtimes: it renders
// history into a single ChatML prompt. Server-backed runtimes that template
// on their own side use their provider's tokenizer instead.
type PromptTokenizer struct{}

func (PromptTokenizer) Encode(history []types.ChatMessage, addGenerationPrompt bool) (*Request, error) {
	if len(history) == 0 {
		// Nothing to encode; callers treat a nil request as a no-op.
		return nil, nil
	}
	return &Request{Prompt: renderChatML(history, addGenerationPrompt), Messages: history}, nil
}

func (PromptTokenizer) Decode(out Output, keepSpecial bool) string {
	if keepSpecial && out.RawText != "" {
		return out.RawText
	}
	return out.Text
}
