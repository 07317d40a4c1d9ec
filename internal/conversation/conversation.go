// Package conversation turns channel history into the ordered window of
// turns sent to a completion provider. Everything here is pure.
package conversation

import "github.com/chatrelay/chatrelay/internal/platform"

// DefaultSystemPrompt sets the assistant persona.
const DefaultSystemPrompt = "You are a friendly chatbot."

// Assembler combines the system prompt, recent channel messages and the
// triggering message into a final window.
type Assembler interface {
	Assemble(trigger platform.Message, recent []platform.Message, self platform.Author) []Turn
}
