package artifact

import "errors"

var (
	// ErrUnknownType is returned when an artifact type cannot be resolved.
	ErrUnknownType = errors.New("unknown artifact type")

	// ErrInvalidExtendedType is returned for extended type names that are
	// not purely alphanumeric.
	ErrInvalidExtendedType = errors.New("invalid extended artifact type name")

	// ErrNoArtifact is returned when an Atom entry carries no artifact wrapper.
	ErrNoArtifact = errors.New("atom entry has no artifact")
)
