// SPDX-License-Identifier: Apache-2.0

package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/recoverkit/ingest-gateway/internal/metrics"
)

// message is the wire envelope pushed to subscribers.
type message struct {
	EventType string    `json:"event_type"`
	Payload   any       `json:"payload,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// NATSNotifier broadcasts over core NATS subjects of the form
// journey.<target>.<channel>. Publish is fire-and-forget.
type NATSNotifier struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewNATSNotifier(conn *nats.Conn, logger *slog.Logger) *NATSNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSNotifier{conn: conn, logger: logger}
}

func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("ingest-gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

func (n *NATSNotifier) Broadcast(_ context.Context, targetID, channel, eventType string, payload any) {
	subject := Subject(targetID, channel)

	body, err := json.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		metrics.IncBroadcastFailure()
		n.logger.Warn("broadcast marshal failed",
			"subject", subject,
			"event_type", eventType,
			"error", err,
		)
		return
	}

	if err := n.conn.Publish(subject, body); err != nil {
		metrics.IncBroadcastFailure()
		n.logger.Warn("broadcast publish failed",
			"subject", subject,
			"event_type", eventType,
			"error", err,
		)
	}
}

// Subject builds the pub/sub topic for one target and channel.
func Subject(targetID, channel string) string {
	return fmt.Sprintf("journey.%s.%s", targetID, channel)
}
