// Package transport defines the chat-platform-neutral types exchanged between
// the update source (Telegram today) and the application core.
package transport

import "context"

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error

	// UpdateMenuCommands publishes the platform command menu. Best-effort.
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
