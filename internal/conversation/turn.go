package conversation

// Role tags a turn for the completion provider.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged utterance in a conversation window.
type Turn struct {
	Role    Role
	Content string
	// Name is the sanitized speaker name. Empty for the system turn.
	Name string
}
