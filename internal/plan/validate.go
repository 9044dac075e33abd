package plan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// validatePlan checks a derived plan against the capability registry.
//
// Rejections (per-view, never global):
//   - unknown capability id (explicit or synthesized)
//   - integration mismatch between plan and capability
//   - missing required parameters, named by key
//
// Parameters the capability does not recognize are dropped with a
// warning, never rejected - forward compatibility over strictness.
func (c *Compiler) validatePlan(p *Plan) *ViewError {
	def, ok := c.registry.Get(p.CapabilityID)
	if !ok {
		return &ViewError{
			Code:    ErrCodeUnknownCapabilityID,
			ViewID:  p.ViewID,
			Message: fmt.Sprintf("capability %q is not registered", p.CapabilityID),
		}
	}

	// A direct capability query may omit the integration; it is bound
	// from the registered definition. When both are present they must
	// agree.
	if p.IntegrationID == "" {
		p.IntegrationID = def.IntegrationID
	} else if p.IntegrationID != def.IntegrationID {
		return &ViewError{
			Code:   ErrCodeIntegrationMismatch,
			ViewID: p.ViewID,
			Message: fmt.Sprintf("plan targets integration %q but capability %q belongs to %q",
				p.IntegrationID, p.CapabilityID, def.IntegrationID),
		}
	}

	for _, req := range def.Params.Required {
		if _, present := p.Params[req]; !present {
			return &ViewError{
				Code:    ErrCodeMissingRequiredParameter,
				ViewID:  p.ViewID,
				Message: fmt.Sprintf("required parameter %q is missing", req),
				Key:     req,
			}
		}
	}

	// Drop unrecognized parameters, in sorted order so warnings are
	// deterministic.
	keys := make([]string, 0, len(p.Params))
	for k := range p.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !def.Params.Recognizes(k) {
			delete(p.Params, k)
			p.Warnings = append(p.Warnings, fmt.Sprintf("dropped unrecognized parameter %q", k))
			slog.Warn("dropped unrecognized parameter",
				"view_id", p.ViewID,
				"capability_id", p.CapabilityID,
				"param", k)
		}
	}

	return nil
}

// ValidateSpec runs the advisory schema/connectivity validation for a
// whole specification without compiling it. Findings are report
// strings: an unconnected or unschematized integration never halts
// anything.
func (c *Compiler) ValidateSpec(ctx context.Context, spec Spec) []string {
	var findings []string

	connected := map[string]bool(nil)
	if c.connections != nil {
		if ids, err := c.connections.ListConnectedIntegrations(ctx, spec.OrgID); err == nil {
			connected = make(map[string]bool, len(ids))
			for _, id := range ids {
				connected[id] = true
			}
		}
	}

	known := map[string]bool(nil)
	if c.schemas != nil {
		if schemas, err := c.schemas.GetDiscoveredSchemas(ctx, spec.OrgID); err == nil {
			known = make(map[string]bool, len(schemas))
			for _, s := range schemas {
				known[s.IntegrationID+"/"+s.Resource] = true
			}
		}
	}

	for _, view := range spec.Views {
		if view.IntegrationID == "" {
			continue
		}
		if connected != nil && !connected[view.IntegrationID] {
			findings = append(findings,
				fmt.Sprintf("view %q: integration %q is not connected", view.ID, view.IntegrationID))
			continue
		}
		if known != nil && view.Resource != "" && !known[view.IntegrationID+"/"+view.Resource] {
			findings = append(findings,
				fmt.Sprintf("view %q: integration %q is connected but resource %q has no discovered schema",
					view.ID, view.IntegrationID, view.Resource))
		}
	}

	return findings
}
