package cloudauth

import (
	"sigs.k8s.io/yaml"
)

const (
	// AuthConfigMapName is the name EKS reads identity mappings from.
	AuthConfigMapName = "aws-auth"
	// AuthConfigMapNamespace is the namespace holding AuthConfigMapName.
	AuthConfigMapNamespace = "kube-system"

	// MapUsersKey and MapRolesKey are the data keys of the document.
	MapUsersKey = "mapUsers"
	MapRolesKey = "mapRoles"
)

// AuthDocument is the aws-auth ConfigMap content.
type AuthDocument struct {
	Name     string
	MapUsers string
	MapRoles string
}

// Data returns the document as ConfigMap data.
func (d *AuthDocument) Data() map[string]string {
	return map[string]string{
		MapUsersKey: d.MapUsers,
		MapRolesKey: d.MapRoles,
	}
}

// ToDocument partitions mappings into user and role entries, keeping their
// relative order, and serializes each partition.
func ToDocument(mappings []Mapping) (*AuthDocument, error) {
	users := make([]Entry, 0, len(mappings))
	roles := make([]Entry, 0, len(mappings))
	for _, m := range mappings {
		if err := m.validate(); err != nil {
			return nil, err
		}
		switch {
		case m.IsUserMapping():
			users = append(users, m.Entry())
		case m.IsRoleMapping():
			roles = append(roles, m.Entry())
		}
	}

	mapUsers, err := marshalEntries(users)
	if err != nil {
		return nil, err
	}
	mapRoles, err := marshalEntries(roles)
	if err != nil {
		return nil, err
	}

	return &AuthDocument{
		Name:     AuthConfigMapName,
		MapUsers: mapUsers,
		MapRoles: mapRoles,
	}, nil
}

// MarshalEntries renders all mappings as one flat YAML list of entries,
// in the given order.
func MarshalEntries(mappings []Mapping) (string, error) {
	entries := make([]Entry, 0, len(mappings))
	for _, m := range mappings {
		if err := m.validate(); err != nil {
			return "", err
		}
		entries = append(entries, m.Entry())
	}
	return marshalEntries(entries)
}

func marshalEntries(entries []Entry) (string, error) {
	out, err := yaml.Marshal(entries)
	if err != nil {
		return "", ErrInternal("failed to serialize mapping entries").WithCause(err)
	}
	return string(out), nil
}
