package tenancy

import "context"

type ctxKey string

const botKey ctxKey = "docbot.bot_id"

// WithBotID stores the bot id in context.
func WithBotID(ctx context.Context, botID string) context.Context {
	return context.WithValue(ctx, botKey, botID)
}

// BotIDFromContext extracts the bot id if present.
func BotIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(botKey)
	if val == nil {
		return "", false
	}
	botID, ok := val.(string)
	return botID, ok && botID != ""
}
