// Package pulse drains hgpush messages from the Mozilla Pulse AMQP broker
// and sends one telemetry ping per pushed head changeset.
//
// The Pulse server forbids declaring exchanges, so the exchange is only
// asserted passively; the user-prefixed queue is declared and bound here.
package pulse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/sanix-darker/hgping/internal/telemetry"
)

// pingSender is the slice of telemetry.Pinger the listener needs.
type pingSender interface {
	PayloadForChangeset(ctx context.Context, node, repoURL string) (*telemetry.Payload, error)
	SendPing(ctx context.Context, pingID string, payload *telemetry.Payload) error
}

// Options configures a Listener.
type Options struct {
	Host       string
	Port       int
	User       string
	Password   string
	Exchange   string
	QueueName  string
	RoutingKey string

	// Timeout is how long to wait for an additional message before the
	// listener decides the queue is drained and returns.
	Timeout time.Duration

	// NoSend builds payloads but does not transmit pings. For testing.
	NoSend bool
}

// Listener consumes hgpush messages until its queue drains.
type Listener struct {
	opts   Options
	pinger pingSender
}

// NewListener returns a Listener that sends pings through the given Pinger.
func NewListener(opts Options, pinger *telemetry.Pinger) *Listener {
	return &Listener{opts: opts, pinger: pinger}
}

// pushMessage is the hgpush notification body. Only changegroup.1 payloads
// are of interest; see the hgmo notification documentation for the envelope.
type pushMessage struct {
	Payload struct {
		Type string `json:"type"`
		Data struct {
			Heads   []string `json:"heads"`
			RepoURL string   `json:"repo_url"`
		} `json:"data"`
	} `json:"payload"`
}

// Run connects, drains the queue and returns once no message has arrived for
// Options.Timeout. Every message is acked, including the skipped ones.
func (l *Listener) Run(ctx context.Context) error {
	uri := fmt.Sprintf("amqps://%s:%s@%s:%d/",
		url.QueryEscape(l.opts.User),
		url.QueryEscape(l.opts.Password),
		l.opts.Host,
		l.opts.Port,
	)
	conn, err := amqp.Dial(uri)
	if err != nil {
		return fmt.Errorf("pulse: connecting to %s:%d: %w", l.opts.Host, l.opts.Port, err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("pulse: opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclarePassive(l.opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("pulse: exchange %s does not exist: %w", l.opts.Exchange, err)
	}

	// Pulse queue names must be prefixed with the account name.
	queueName := fmt.Sprintf("queue/%s/%s", l.opts.User, l.opts.QueueName)
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("pulse: declaring queue %s: %w", queueName, err)
	}
	if err := ch.QueueBind(queueName, l.opts.RoutingKey, l.opts.Exchange, false, nil); err != nil {
		return fmt.Errorf("pulse: binding queue %s: %w", queueName, err)
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("pulse: consuming from %s: %w", queueName, err)
	}

	log.Info().Str("queue", queueName).Msg("reading messages")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.opts.Timeout):
			log.Info().Msg("queue drained")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			if err := l.handle(ctx, d.Body); err != nil {
				// Leave the message on the queue for the next run.
				_ = d.Nack(false, true)
				return err
			}
			_ = d.Ack(false)
		}
	}
}

// handle processes one message body. Messages that are not single-head
// changegroup.1 notifications are skipped without error so they get acked.
func (l *Listener) handle(ctx context.Context, body []byte) error {
	var msg pushMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Warn().Err(err).Msg("skipped undecodable message")
		return nil
	}

	if msg.Payload.Type != "changegroup.1" {
		log.Info().Str("type", msg.Payload.Type).Msg("skipped message type")
		return nil
	}

	heads := msg.Payload.Data.Heads
	if len(heads) != 1 {
		log.Info().Int("heads", len(heads)).Msg("skipped message with multiple heads")
		return nil
	}

	changeset := heads[0]
	repoURL := msg.Payload.Data.RepoURL
	log.Info().Str("node", changeset).Str("repo", repoURL).Msg("processing changeset")

	payload, err := l.pinger.PayloadForChangeset(ctx, changeset, repoURL)
	if err != nil {
		return err
	}

	if l.opts.NoSend {
		log.Info().Interface("ping", payload).Msg("ping data (not sent)")
		return nil
	}

	// The changeset hash doubles as the de-duplication key.
	pingID, err := telemetry.PingID(changeset)
	if err != nil {
		return err
	}
	return l.pinger.SendPing(ctx, pingID, payload)
}
