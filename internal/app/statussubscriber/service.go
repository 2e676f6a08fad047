package statussubscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"sales-dashboard/internal/shared/contracts"
	"sales-dashboard/internal/shared/logger"
)

// Printer writes a human-readable line for every monitor status change.
type Printer struct {
	logger *logger.Logger
	out    io.Writer
}

// NewPrinter prints to out.
func NewPrinter(logger *logger.Logger, out io.Writer) *Printer {
	return &Printer{logger: logger, out: out}
}

// Handle parses the status change JSON, prints it and acknowledges.
func (p *Printer) Handle(ctx context.Context, d amqp.Delivery) {
	var change contracts.StatusChangeMessage
	if err := json.Unmarshal(d.Body, &change); err != nil {
		p.logger.Error(ctx, "notification_decode_failed", "Failed to decode status change JSON", err)
		// redelivery cannot fix malformed JSON, ack to drop it
		_ = d.Ack(false)
		return
	}

	p.logger.Debug(ctx, "notification_received", "Received status change", map[string]any{
		"old_status":  change.OldStatus,
		"new_status":  change.NewStatus,
		"error_count": change.ErrorCount,
	})

	fmt.Fprintln(p.out, renderHuman(change))

	if err := d.Ack(false); err != nil {
		p.logger.Error(ctx, "rabbitmq_ack_failed", "Failed to ack notification message", err)
	}
}

// renderHuman formats a status change for operators.
func renderHuman(change contracts.StatusChangeMessage) string {
	line := fmt.Sprintf("Webhook status changed from '%s' to '%s' (errors: %d).",
		change.OldStatus, change.NewStatus, change.ErrorCount)
	if change.LastError != nil {
		line += fmt.Sprintf(" Last error [%s] at %s: %s",
			change.LastError.Type, change.LastError.Timestamp.UTC().Format(time.RFC3339), change.LastError.Message)
	}
	return line
}
