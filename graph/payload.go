package graph

import (
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/artificer/artifact"
)

// RelationshipPayload is one relationship of a published artifact.
type RelationshipPayload struct {
	Type    string   `json:"type"`
	Targets []string `json:"targets"`
}

// ArtifactPayload describes one artifact in a graph event.
type ArtifactPayload struct {
	ID            string                `json:"id"`
	UUID          string                `json:"uuid"`
	Type          string                `json:"type"`
	Name          string                `json:"name"`
	Derived       bool                  `json:"derived,omitempty"`
	Relationships []RelationshipPayload `json:"relationships,omitempty"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Validate checks the fields consumers key on.
func (p *ArtifactPayload) Validate() error {
	if p.UUID == "" {
		return errors.New("artifact uuid is required")
	}
	if p.Type == "" {
		return errors.New("artifact type is required")
	}
	return nil
}

// NewArtifactPayload builds the payload for an artifact.
func NewArtifactPayload(a *artifact.Artifact, now time.Time) *ArtifactPayload {
	p := &ArtifactPayload{
		ID:        ArtifactEntityID(a),
		UUID:      a.UUID,
		Type:      a.Type.String(),
		Name:      a.Name,
		Derived:   a.Type.IsDerived(),
		UpdatedAt: now,
	}
	for _, rel := range a.Relationships {
		p.Relationships = append(p.Relationships, RelationshipPayload{
			Type:    rel.Type,
			Targets: rel.TargetUUIDs(),
		})
	}
	return p
}

// ArchivePayload announces a converted archive.
type ArchivePayload struct {
	Source      string             `json:"source"`
	ArchiveType string             `json:"archive_type"`
	Artifacts   []*ArtifactPayload `json:"artifacts"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ArtifactEntityID generates a consistent entity ID for an artifact.
// Format: artificer.<model>.<type>.<uuid>
func ArtifactEntityID(a *artifact.Artifact) string {
	return fmt.Sprintf("artificer.%s.%s.%s", a.Type.Model(), a.Type.Type(), a.UUID)
}
