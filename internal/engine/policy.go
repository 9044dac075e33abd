package engine

import (
	"context"
	"log/slog"

	"github.com/loomworks/gantry/internal/capability"
)

// EnforcePolicies is the organization-policy middleware.
//
// Policies are evaluated in declaration order against the attempted
// call {integrationId, capabilityId, actionType}. The first denial
// short-circuits with POLICY_VIOLATION carrying the policy's reason; no
// downstream middleware and no executor runs. Policies run inside the
// permission check, so a caller without access never reaches policy
// evaluation.
func EnforcePolicies(ctx context.Context, def capability.Definition, params map[string]any, ec *capability.Context, next Handler) (any, error) {
	in := capability.PolicyInput{
		IntegrationID: def.IntegrationID,
		CapabilityID:  def.ID,
		ActionType:    string(def.Mode),
	}

	for _, p := range ec.Policies {
		decision := p.Evaluate(in)
		if !decision.Allowed {
			slog.Warn("policy violation",
				"org_id", ec.OrgID,
				"integration_id", def.IntegrationID,
				"capability_id", def.ID,
				"reason", decision.Reason)
			return nil, NewPolicyViolationError(def.IntegrationID, def.ID, decision.Reason)
		}
	}

	return next(ctx, def, params, ec)
}
