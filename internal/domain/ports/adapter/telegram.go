// File: internal/domain/ports/adapter/telegram.go
package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// Notifier is the outbound side of the chat transport. Delivery is
// at-least-once; handlers on the receiving side must stay idempotent.
type Notifier interface {
	SendText(ctx context.Context, userID int64, text string) (int, error)
	SendOptions(ctx context.Context, userID int64, text string, rows [][]InlineButton) (int, error)
	EditText(ctx context.Context, userID int64, messageID int, text string, rows [][]InlineButton) error
	DeleteMessage(ctx context.Context, userID int64, messageID int) error
	SendInvoice(ctx context.Context, userID int64, inv Invoice) (int, error)
}
