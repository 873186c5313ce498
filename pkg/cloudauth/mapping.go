package cloudauth

import (
	"fmt"
	"strings"
)

// MappingType describes how an IAM identity maps to a Kubernetes user.
type MappingType int

const (
	// UserToUser maps an IAM user to a normal Kubernetes user.
	UserToUser MappingType = iota + 1
	// RoleToUser maps an IAM role to a normal Kubernetes user.
	RoleToUser
	// RoleToNode maps an IAM role to a worker node identity.
	RoleToNode
)

const (
	// NodeUsername is the username template EKS expands for worker nodes.
	NodeUsername = "system:node:{{EC2PrivateDNSName}}"
)

// NodeGroups returns the groups every worker node role is placed in.
func NodeGroups() []string {
	return []string{"system:bootstrappers", "system:nodes"}
}

var mappingTypeNames = map[MappingType]string{
	UserToUser: "user-to-user",
	RoleToUser: "role-to-user",
	RoleToNode: "role-to-node",
}

// String returns the canonical form, e.g. "role-to-node".
func (t MappingType) String() string {
	if s, ok := mappingTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("MappingType(%d)", int(t))
}

// ParseMappingType converts a canonical mapping type string, ignoring case.
func ParseMappingType(s string) (MappingType, error) {
	lowered := strings.ToLower(s)
	for t, name := range mappingTypeNames {
		if lowered == name {
			return t, nil
		}
	}
	return 0, ErrValidation(fmt.Sprintf("invalid mapping type: %q", s)).
		WithDetail("allowed", "user-to-user,role-to-user,role-to-node")
}

// MarshalText implements encoding.TextMarshaler.
func (t MappingType) MarshalText() ([]byte, error) {
	s, ok := mappingTypeNames[t]
	if !ok {
		return nil, ErrValidation(fmt.Sprintf("invalid mapping type: %d", int(t)))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *MappingType) UnmarshalText(text []byte) error {
	parsed, err := ParseMappingType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Mapping is one discovered IAM identity and the Kubernetes identity it
// maps to. Mappings are built once and not modified afterwards.
type Mapping struct {
	ARN      string      `json:"arn"`
	Type     MappingType `json:"mapping_type"`
	Username string      `json:"username"`
	Groups   []string    `json:"groups"`
}

// NewMapping builds a Mapping, taking a private copy of groups.
func NewMapping(arn string, t MappingType, username string, groups []string) Mapping {
	g := make([]string, len(groups))
	copy(g, groups)
	return Mapping{
		ARN:      arn,
		Type:     t,
		Username: username,
		Groups:   g,
	}
}

// validate rejects mappings that cannot be written as an entry. Without an
// ARN the entry would carry neither userarn nor rolearn.
func (m Mapping) validate() error {
	if m.ARN == "" {
		return ErrValidation("mapping has no ARN").
			WithDetail("mapping_type", m.Type.String()).
			WithDetail("username", m.Username)
	}
	return nil
}

// IsUserMapping reports whether the mapping belongs in mapUsers.
func (m Mapping) IsUserMapping() bool {
	return m.Type == UserToUser
}

// IsRoleMapping reports whether the mapping belongs in mapRoles.
func (m Mapping) IsRoleMapping() bool {
	return m.Type == RoleToUser || m.Type == RoleToNode
}

// Entry is a single element of the mapUsers or mapRoles lists.
// Exactly one of UserARN and RoleARN is set.
type Entry struct {
	UserARN  string   `json:"userarn,omitempty"`
	RoleARN  string   `json:"rolearn,omitempty"`
	Username string   `json:"username"`
	Groups   []string `json:"groups"`
}

// Entry converts the mapping to its aws-auth form. Node roles always get
// the node username template and node groups, whatever the mapping holds.
func (m Mapping) Entry() Entry {
	groups := m.Groups
	if groups == nil {
		groups = []string{}
	}
	switch m.Type {
	case UserToUser:
		return Entry{UserARN: m.ARN, Username: m.Username, Groups: groups}
	case RoleToNode:
		return Entry{RoleARN: m.ARN, Username: NodeUsername, Groups: NodeGroups()}
	default:
		return Entry{RoleARN: m.ARN, Username: m.Username, Groups: groups}
	}
}
