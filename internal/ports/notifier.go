package ports

import (
	"context"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// Notifier receives execution notifications for observability consumers.
// Implementations must not block the execution path.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}
