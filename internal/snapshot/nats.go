package snapshot

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher is the part of *nats.Conn the broadcaster needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSPublisher saves through the wrapped Sink and then broadcasts the snapshot.
// A failed broadcast is logged; the saved snapshot stands.
type NATSPublisher struct {
	Sink
	pub     Publisher
	subject string
	close   func()
}

func NewNATSPublisher(inner Sink, pub Publisher, subject string) *NATSPublisher {
	return &NATSPublisher{Sink: inner, pub: pub, subject: subject}
}

func (n *NATSPublisher) Save(ctx context.Context, s Snapshot) error {
	if err := n.Sink.Save(ctx, s); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal snapshot for broadcast")
		return nil
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		log.Error().Err(err).Str("subject", n.subject).Msg("failed to publish snapshot")
		return nil
	}

	log.Debug().Str("subject", n.subject).Str("id", s.ID.String()).Int("opportunities", len(s.Opportunities)).Msg("snapshot published")
	return nil
}

func (n *NATSPublisher) Close() error {
	if n.close != nil {
		n.close()
	}
	return n.Sink.Close()
}
