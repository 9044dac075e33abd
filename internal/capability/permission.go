package capability

// Wildcard matches any integration or capability id in a Permission.
const Wildcard = "*"

// Permission grants a caller access to capabilities.
//
// Integration and Capability are exact ids or the wildcard "*". Access
// matches exactly: a write grant does not imply read, and vice versa.
type Permission struct {
	Integration string `json:"integration"`
	Capability  string `json:"capability"`
	Access      Access `json:"access"`
}

// Grants reports whether this single permission admits the given call.
func (p Permission) Grants(integrationID, capabilityID string, access Access) bool {
	if p.Integration != Wildcard && p.Integration != integrationID {
		return false
	}
	if p.Capability != Wildcard && p.Capability != capabilityID {
		return false
	}
	return p.Access == access
}

// Allowed reports whether any permission in the set admits the call.
// An empty set admits nothing.
func Allowed(perms []Permission, integrationID, capabilityID string, access Access) bool {
	for _, p := range perms {
		if p.Grants(integrationID, capabilityID, access) {
			return true
		}
	}
	return false
}
