package notify

import (
	"context"

	"github.com/oshokin/breathe-tracking/internal/logger"
)

// LocalSink shows local notifications in the process log.
type LocalSink struct{}

// Send implements Sink.
func (LocalSink) Send(ctx context.Context, msg Message) error {
	logger.InfoKV(ctx, "Notification",
		"title", msg.Title,
		"body", msg.Body)

	return nil
}
