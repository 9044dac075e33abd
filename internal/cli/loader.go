package cli

import (
	"fmt"
	"os"

	"cuelang.org/go/cue/cuecontext"

	"github.com/loomworks/gantry/internal/capability"
	"github.com/loomworks/gantry/internal/plan"
)

// specFile is the CUE shape of a declarative specification artifact.
//
// Alongside the views, an artifact declares the capability contracts it
// compiles against. Contracts registered here carry no executor - the
// CLI validates offline; live adapters register executable definitions
// at service startup.
type specFile struct {
	OrgID        string           `json:"org_id"`
	Views        []plan.View      `json:"views"`
	Capabilities []capabilityDecl `json:"capabilities"`
}

type capabilityDecl struct {
	ID            string   `json:"id"`
	IntegrationID string   `json:"integration_id"`
	Mode          string   `json:"mode"`
	Required      []string `json:"required"`
	Optional      []string `json:"optional"`
}

// LoadSpecFile parses a CUE specification artifact into a plan spec and
// a contract-only capability registry.
// The second return is the CLI error code for rendering failures.
func LoadSpecFile(path string) (plan.Spec, *capability.Registry, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return plan.Spec{}, nil, ErrCodeNotFound, fmt.Errorf("spec file not found: %s", path)
		}
		return plan.Spec{}, nil, ErrCodeGeneric, fmt.Errorf("reading spec file: %w", err)
	}

	value := cuecontext.New().CompileBytes(data)
	if err := value.Err(); err != nil {
		return plan.Spec{}, nil, ErrCodeParse, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := value.Validate(); err != nil {
		return plan.Spec{}, nil, ErrCodeParse, fmt.Errorf("validating %s: %w", path, err)
	}

	var sf specFile
	if err := value.Decode(&sf); err != nil {
		return plan.Spec{}, nil, ErrCodeParse, fmt.Errorf("decoding %s: %w", path, err)
	}
	if sf.OrgID == "" {
		return plan.Spec{}, nil, ErrCodeParse, fmt.Errorf("%s: org_id is required", path)
	}

	reg := capability.NewRegistry()
	for _, decl := range sf.Capabilities {
		reg.Register(capability.Definition{
			ID:            decl.ID,
			IntegrationID: decl.IntegrationID,
			Mode:          capability.Mode(decl.Mode),
			Params: capability.ParameterContract{
				Required: decl.Required,
				Optional: decl.Optional,
			},
		})
	}

	return plan.Spec{OrgID: sf.OrgID, Views: sf.Views}, reg, "", nil
}
