// Package notify publishes job status changes to interested services.
package notify

import (
	"context"

	"escrowIndexer/internal/model"
)

// Publisher announces applied job transitions. Delivery is best effort.
type Publisher interface {
	PublishStatusChange(ctx context.Context, change model.StatusChange) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) PublishStatusChange(context.Context, model.StatusChange) error { return nil }
