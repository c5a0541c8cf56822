// Package sink delivers opportunity records and execution alerts to the
// operator-facing channels. The core hands over structured records; sinks
// own the transport formatting.
package sink

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Sink is the outbound capability pair the scanners and executor consume.
type Sink interface {
	EmitMessage(ctx context.Context, channel, text string) error
	EmitImage(ctx context.Context, channel string, image []byte, caption string) error
}

// LogSink writes everything to the structured log. It is the default sink
// and the fallback when Redis is not configured.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) EmitMessage(_ context.Context, channel, text string) error {
	log.Info().Str("channel", channel).Msg(text)
	return nil
}

func (s *LogSink) EmitImage(_ context.Context, channel string, image []byte, caption string) error {
	log.Info().Str("channel", channel).Int("image_bytes", len(image)).Msg(caption)
	return nil
}

// Multi fans one emit out to several sinks; the first error wins but every
// sink still gets the record.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi { return &Multi{sinks: sinks} }

func (m *Multi) EmitMessage(ctx context.Context, channel, text string) error {
	var first error
	for _, s := range m.sinks {
		if err := s.EmitMessage(ctx, channel, text); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Multi) EmitImage(ctx context.Context, channel string, image []byte, caption string) error {
	var first error
	for _, s := range m.sinks {
		if err := s.EmitImage(ctx, channel, image, caption); err != nil && first == nil {
			first = err
		}
	}
	return first
}
