package engine

import (
	"context"
	"log/slog"

	"github.com/loomworks/gantry/internal/capability"
)

// EnforcePermissions is the permission middleware.
//
// Required access is derived from the capability's mode: write unless
// the capability is a pure read. The check is exact - a write grant
// never satisfies a read requirement.
//
// On failure the call short-circuits with PERMISSION_DENIED: no
// downstream middleware and no executor runs, and the error always
// aborts the entire call (hard failure, no retry).
func EnforcePermissions(ctx context.Context, def capability.Definition, params map[string]any, ec *capability.Context, next Handler) (any, error) {
	required := def.Mode.RequiredAccess()

	if !capability.Allowed(ec.Permissions, def.IntegrationID, def.ID, required) {
		slog.Warn("permission denied",
			"org_id", ec.OrgID,
			"integration_id", def.IntegrationID,
			"capability_id", def.ID,
			"required_access", string(required))
		return nil, NewPermissionDeniedError(def.IntegrationID, def.ID)
	}

	return next(ctx, def, params, ec)
}
