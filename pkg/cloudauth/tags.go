package cloudauth

import (
	"fmt"
	"strings"
)

// TagField is one of the per-cluster tag names read from IAM identities.
type TagField string

const (
	TagUsername TagField = "username"
	TagType     TagField = "type"
	TagGroups   TagField = "groups"
)

const (
	roleTypeUser = "user"
	roleTypeNode = "node"
)

// TagKey returns the IAM tag key holding field for cluster,
// e.g. "eks/prod/username".
func TagKey(cluster string, field TagField) string {
	return "eks/" + cluster + "/" + string(field)
}

// ClusterTags is the tag set of one IAM identity as seen by one cluster.
type ClusterTags struct {
	cluster string
	tags    map[string]string
}

// NewClusterTags wraps the raw key/value tags of an identity.
func NewClusterTags(cluster string, tags map[string]string) ClusterTags {
	if tags == nil {
		tags = map[string]string{}
	}
	return ClusterTags{cluster: cluster, tags: tags}
}

func (t ClusterTags) get(field TagField) (string, bool) {
	v, ok := t.tags[TagKey(t.cluster, field)]
	return v, ok
}

// Username returns the Kubernetes username tag. An empty value counts as
// absent.
func (t ClusterTags) Username() (string, bool) {
	v, ok := t.get(TagUsername)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Groups splits the groups tag on commas. Tokens are kept verbatim. An
// empty value counts as absent.
func (t ClusterTags) Groups() []string {
	v, ok := t.get(TagGroups)
	if !ok || v == "" {
		return []string{}
	}
	return strings.Split(v, ",")
}

// RoleType returns the role type tag, "user" when absent or empty.
func (t ClusterTags) RoleType() string {
	v, ok := t.get(TagType)
	if !ok || v == "" {
		return roleTypeUser
	}
	return v
}

// Classification is the outcome of inspecting one identity: either a
// mapping to emit or a reason it was skipped.
type Classification struct {
	mapping *Mapping
	reason  string
}

// Emit classifies an identity as producing m.
func Emit(m Mapping) Classification {
	return Classification{mapping: &m}
}

// Skip classifies an identity as producing nothing.
func Skip(reason string) Classification {
	return Classification{reason: reason}
}

// Mapping returns the emitted mapping, if any.
func (c Classification) Mapping() (Mapping, bool) {
	if c.mapping == nil {
		return Mapping{}, false
	}
	return *c.mapping, true
}

// Skipped reports whether the identity produced no mapping.
func (c Classification) Skipped() bool {
	return c.mapping == nil
}

// Reason explains a skip. It is empty for emitted mappings.
func (c Classification) Reason() string {
	return c.reason
}

// ClassifyUser decides the mapping for an IAM user.
func ClassifyUser(arn string, tags ClusterTags) Classification {
	username, ok := tags.Username()
	if !ok {
		return Skip(fmt.Sprintf("tag %s is missing", TagKey(tags.cluster, TagUsername)))
	}
	return Emit(NewMapping(arn, UserToUser, username, tags.Groups()))
}

// ClassifyRole decides the mapping for an IAM role. Node roles are emitted
// regardless of their username and groups tags.
func ClassifyRole(arn string, tags ClusterTags) Classification {
	switch roleType := tags.RoleType(); roleType {
	case roleTypeNode:
		return Emit(NewMapping(arn, RoleToNode, "", nil))
	case roleTypeUser:
		username, ok := tags.Username()
		if !ok {
			return Skip(fmt.Sprintf("tag %s is missing", TagKey(tags.cluster, TagUsername)))
		}
		return Emit(NewMapping(arn, RoleToUser, username, tags.Groups()))
	default:
		return Skip(fmt.Sprintf("unknown role type %q", roleType))
	}
}
