package logging

import "context"

type contextKey string

const fieldsKey contextKey = "log_fields"

// Fields are added to every record logged with the enriched context.
type Fields struct {
	RelayID   int64  // snowflake id of one relay run
	ChannelID string // platform channel id
	MessageID string // triggering message id
	Component string // e.g. "relay", "discord"
}

// WithFields enriches ctx. Non-empty values in fields win over existing ones.
func WithFields(ctx context.Context, fields Fields) context.Context {
	merged := GetFields(ctx)
	if fields.RelayID != 0 {
		merged.RelayID = fields.RelayID
	}
	if fields.ChannelID != "" {
		merged.ChannelID = fields.ChannelID
	}
	if fields.MessageID != "" {
		merged.MessageID = fields.MessageID
	}
	if fields.Component != "" {
		merged.Component = fields.Component
	}
	return context.WithValue(ctx, fieldsKey, merged)
}

// GetFields returns the fields stored in ctx, or zero Fields.
func GetFields(ctx context.Context) Fields {
	if fields, ok := ctx.Value(fieldsKey).(Fields); ok {
		return fields
	}
	return Fields{}
}
