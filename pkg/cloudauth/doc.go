// Package cloudauth holds the core of eks-auth-sync: the mapping model that
// turns tagged IAM identities into aws-auth entries, and the Manager that
// runs a synchronization.
//
// # Tags
//
// An IAM identity opts into a cluster through tags scoped by cluster name:
//
//	eks/{cluster}/username   Kubernetes username (required except for node roles)
//	eks/{cluster}/groups     comma separated Kubernetes groups
//	eks/{cluster}/type       roles only: "user" (default) or "node"
//
// ClassifyUser and ClassifyRole turn a tag set into a Classification that
// either emits a Mapping or records why the identity was skipped.
//
// # Document
//
// ToDocument partitions mappings into the mapUsers and mapRoles lists of the
// aws-auth ConfigMap. Node roles always map to the node username template
// and the bootstrapper and node groups.
//
// # Usage
//
//	m := cloudauth.NewManager(
//	    cloudauth.WithScanner(scanner),
//	    cloudauth.WithApplierFactory(openReconciler),
//	    cloudauth.WithLogger(log),
//	)
//	result, err := m.Sync(ctx, cloudauth.SyncOptions{
//	    RolesPath: "/",
//	    UsersPath: "/",
//	    Update:    true,
//	})
//
// Backends implement IdentityScanner, DocumentApplier and TokenProvider; the
// AWS and Kubernetes implementations live under pkg/providers.
package cloudauth
