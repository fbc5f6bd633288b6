package email

import (
	"context"
	"fmt"
	"log/slog"
)

// fallbackSender calls primary first; if that fails it logs and tries
// secondary.
type fallbackSender struct {
	primary   Sender
	secondary Sender
	logger    *slog.Logger
}

// NewFallbackSender returns a Sender that calls primary and, on failure,
// falls back to secondary. If primary is nil it goes straight to secondary;
// if secondary is nil and primary fails, the primary error is returned.
func NewFallbackSender(primary, secondary Sender, logger *slog.Logger) Sender {
	return &fallbackSender{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

func (f *fallbackSender) Send(ctx context.Context, msg Message) (string, error) {
	if f.primary != nil {
		id, err := f.primary.Send(ctx, msg)
		if err == nil {
			return id, nil
		}
		if f.secondary == nil {
			return "", err
		}
		f.logger.Warn("email: primary sender failed, trying secondary",
			"error", err,
			"to", msg.To,
		)
		id, err2 := f.secondary.Send(ctx, msg)
		if err2 != nil {
			return "", fmt.Errorf("%w (primary: %v)", err2, err)
		}
		return id, nil
	}

	return f.secondary.Send(ctx, msg)
}
