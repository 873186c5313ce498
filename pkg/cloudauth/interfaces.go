package cloudauth

import (
	"context"
)

// Provider is the base interface for backends.
type Provider interface {
	// Name returns the provider identifier.
	Name() CloudProvider

	// Capabilities returns the list of supported capabilities.
	Capabilities() []Capability

	// HasCapability checks if a specific capability is supported.
	HasCapability(cap Capability) bool
}

// TokenProvider derives short-lived cluster bearer tokens.
type TokenProvider interface {
	Provider

	// Token derives a bearer token bound to req.ClusterName. No state is
	// kept between calls.
	Token(ctx context.Context, req TokenRequest) (*TokenResponse, error)
}

// IdentityScanner discovers tagged identities and turns them into mappings.
//
// Both methods either return every emitted mapping in listing order or
// fail; partial results are never returned.
type IdentityScanner interface {
	ScanRoles(ctx context.Context, pathPrefix string) ([]Mapping, error)
	ScanUsers(ctx context.Context, pathPrefix string) ([]Mapping, error)
}

// DocumentApplier writes the authorization document to a cluster.
type DocumentApplier interface {
	Apply(ctx context.Context, doc *AuthDocument) error
}

// ApplierFactory opens a DocumentApplier on demand. It is only invoked
// when a document is actually going to be written.
type ApplierFactory func(ctx context.Context) (DocumentApplier, error)

// SyncRecorder observes finished synchronization runs.
type SyncRecorder interface {
	RecordSync(result *SyncResult, err error)
}
