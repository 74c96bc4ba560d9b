// Package notify publishes stack lifecycle notifications to NATS. Publishing
// is best effort: a broker outage must never fail the API request that
// triggered the event.
package notify

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const subjectPrefix = "stackgate.cfn."

// Event is one stack lifecycle notification.
type Event struct {
	Action    string    `json:"action"`
	Tenant    string    `json:"tenant"`
	Principal string    `json:"principal"`
	StackName string    `json:"stack_name,omitempty"`
	StackID   string    `json:"stack_id,omitempty"`
	RequestID string    `json:"request_id"`
	Time      time.Time `json:"time"`
}

// SubjectFor returns the NATS subject an action publishes on.
func SubjectFor(action string) string {
	return subjectPrefix + action
}

// Publisher is a NATS connection for lifecycle events. A nil Publisher is
// valid and drops everything, so deployments without a broker skip the
// wiring entirely.
type Publisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// Connect dials the broker. An empty URL returns a nil Publisher.
func Connect(url string, log zerolog.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	log = log.With().Str("component", "notify").Logger()
	opts := []nats.Option{
		nats.Name("stackgate"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, log: log}, nil
}

// Publish sends one event on stackgate.cfn.<action>. Failures are logged and
// swallowed.
func (p *Publisher) Publish(e Event) {
	if p == nil || p.nc == nil || p.nc.IsClosed() {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		p.log.Error().Err(err).Str("action", e.Action).Msg("encoding event")
		return
	}
	if err := p.nc.Publish(SubjectFor(e.Action), payload); err != nil {
		p.log.Warn().Err(err).Str("action", e.Action).Msg("publishing event")
	}
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Drain()
	p.nc.Close()
}
