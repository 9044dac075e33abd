package capability

// PolicyInput is the attempted call an organization policy rules on.
// ActionType is the capability's mode as a string.
type PolicyInput struct {
	IntegrationID string `json:"integration_id"`
	CapabilityID  string `json:"capability_id"`
	ActionType    string `json:"action_type"`
}

// Decision is a policy verdict. Reason is surfaced to the caller when
// the call is denied.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Policy is an opaque organization-level rule evaluated against an
// attempted capability call, independent of user-level permissions.
// Policies must be pure: same input, same decision, no side effects.
type Policy interface {
	Evaluate(in PolicyInput) Decision
}

// PolicyFunc adapts a plain function to the Policy interface.
type PolicyFunc func(in PolicyInput) Decision

// Evaluate implements Policy.
func (f PolicyFunc) Evaluate(in PolicyInput) Decision {
	return f(in)
}

// DenyWrites is a ready-made policy denying all non-read calls against
// the named integration. Useful as a conservative default for newly
// connected integrations.
func DenyWrites(integrationID, reason string) Policy {
	return PolicyFunc(func(in PolicyInput) Decision {
		if in.IntegrationID == integrationID && in.ActionType != string(ModeRead) {
			return Decision{Allowed: false, Reason: reason}
		}
		return Decision{Allowed: true}
	})
}
