package replica

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rocketscienceinc/gravity-tictactoe/internal/tictactoe"
)

const clientName = "gravity-tictactoe"

// Connect - dials the NATS server and keeps reconnecting for as long as the app lives.
func Connect(logger *slog.Logger, url string) (*nats.Conn, error) {
	log := logger.With("component", "nats")
	start := time.Now()

	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info("reconnected to NATS", "url", conn.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info("connected", "to", conn.ConnectedUrl(), "in", time.Since(start))

	return conn, nil
}

// Publisher forwards match events to read-only replicas, one subject per match.
type Publisher struct {
	logger *slog.Logger
	conn   *nats.Conn
	prefix string
}

func NewPublisher(logger *slog.Logger, conn *nats.Conn, prefix string) *Publisher {
	return &Publisher{
		logger: logger.With("component", "nats_publisher"),
		conn:   conn,
		prefix: prefix,
	}
}

func (that *Publisher) Subject(matchID string) string {
	return that.prefix + "." + matchID
}

// Notify - publishes event. Failures are logged and never reach the match.
func (that *Publisher) Notify(event tictactoe.Event) {
	log := that.logger.With("gameID", event.MatchID, "kind", event.Kind)

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error("failed to encode event", "error", err)
		return
	}

	subject := that.Subject(event.MatchID)
	if err = that.conn.Publish(subject, payload); err != nil {
		log.Error("failed to publish event", "subject", subject, "error", err)
		return
	}

	log.Debug("published", "subject", subject, "bytes", len(payload))
}

// Subscribe - delivers every event published under prefix to handler, in
// publish order per match. Undecodable messages are logged and skipped.
func Subscribe(logger *slog.Logger, conn *nats.Conn, prefix string, handler func(event tictactoe.Event)) (*nats.Subscription, error) {
	log := logger.With("component", "nats_subscriber")

	sub, err := conn.Subscribe(prefix+".>", func(msg *nats.Msg) {
		var event tictactoe.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Warn("dropped undecodable event", "subject", msg.Subject, "error", err)
			return
		}

		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", prefix, err)
	}

	return sub, nil
}
