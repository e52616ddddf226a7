// Package graph publishes artifact graph events over NATS.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/artificer/artifact"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "artificer"

// Subject suffixes.
const (
	SubjectArtifactDerived  = "artifact.derived"
	SubjectArchiveConverted = "archive.converted"
)

// Publisher sends graph events. A Publisher without a connection drops
// every event, so callers need not check whether NATS is configured.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a publisher. nc may be nil.
func NewPublisher(nc *nats.Conn, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger, now: time.Now}
}

// Subject returns the full subject for a suffix.
func (p *Publisher) Subject(suffix string) string {
	return p.prefix + "." + suffix
}

// PublishDerived publishes one event per derived artifact.
func (p *Publisher) PublishDerived(ctx context.Context, derived []*artifact.Artifact) error {
	if p == nil || p.nc == nil {
		return nil // Skip publishing if no NATS connection (graceful degradation)
	}
	now := p.now()
	for _, a := range derived {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload := NewArtifactPayload(a, now)
		if err := payload.Validate(); err != nil {
			return fmt.Errorf("validate artifact event: %w", err)
		}
		if err := p.publish(p.Subject(SubjectArtifactDerived), payload); err != nil {
			return err
		}
	}
	p.logger.Debug("Published derived artifacts", "count", len(derived))
	return nil
}

// PublishConverted publishes the artifacts produced from one archive.
func (p *Publisher) PublishConverted(ctx context.Context, source, archiveType string, artifacts []*artifact.Artifact) error {
	if p == nil || p.nc == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	now := p.now()
	payload := &ArchivePayload{
		Source:      source,
		ArchiveType: archiveType,
		UpdatedAt:   now,
	}
	for _, a := range artifacts {
		payload.Artifacts = append(payload.Artifacts, NewArtifactPayload(a, now))
	}
	return p.publish(p.Subject(SubjectArchiveConverted), payload)
}

func (p *Publisher) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s event: %w", subject, err)
	}
	return nil
}
