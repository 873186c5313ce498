package cloudauth

import (
	"time"
)

// Capability represents a feature supported by a provider.
type Capability string

const (
	// CapabilityToken indicates support for cluster token derivation.
	CapabilityToken Capability = "token"
	// CapabilityScan indicates support for tag-driven identity scanning.
	CapabilityScan Capability = "scan"
	// CapabilityClusterLookup indicates support for resolving a cluster endpoint.
	CapabilityClusterLookup Capability = "cluster_lookup"
	// CapabilityApply indicates support for writing the authorization document.
	CapabilityApply Capability = "apply"
)

// CloudProvider identifies a backend the tool talks to.
type CloudProvider string

const (
	ProviderAWS        CloudProvider = "aws"
	ProviderKubernetes CloudProvider = "kubernetes"
)

// TokenRequest describes a cluster bearer token to derive.
type TokenRequest struct {
	// ClusterName is bound into the signed request so the token is only
	// accepted by that cluster.
	ClusterName string

	// AssumeRoleARN, when set, makes the token represent this role instead
	// of the ambient credentials.
	AssumeRoleARN string
}

// TokenResponse carries a derived cluster bearer token.
type TokenResponse struct {
	Token     string
	ExpiresAt time.Time
	TokenType string
}

// ClusterEndpoint is the connection data of a managed cluster.
type ClusterEndpoint struct {
	Name     string
	Endpoint string
	CAData   []byte
}

// SyncOptions controls a single synchronization run.
type SyncOptions struct {
	// RolesPath is the IAM path prefix for role scanning. Empty skips roles.
	RolesPath string
	// UsersPath is the IAM path prefix for user scanning. Empty skips users.
	UsersPath string
	// Update applies the document to the cluster instead of only computing it.
	Update bool
	// AllowEmpty permits applying a document with no mappings, which clears
	// every existing entry.
	AllowEmpty bool
}

// SyncResult is the outcome of a synchronization run.
type SyncResult struct {
	RunID    string
	Mappings []Mapping
	Document *AuthDocument
	Applied  bool
	Skipped  bool
	Duration time.Duration
}
