package plan

import (
	"fmt"
	"strings"
)

// Normalizer rewrites a plan's parameter map into the shape its
// capability expects. Normalizers mutate params in place.
//
// Normalization failures are NOT fatal at compile time: unresolved
// required fields are allowed to surface as execution-time errors
// instead, keeping the fail-at-the-edge policy. A failed normalizer
// records a plan warning and leaves params untouched.
type Normalizer func(params map[string]any) error

// defaultNormalizers maps capability-id prefixes to normalizers.
// Longest matching prefix wins.
var defaultNormalizers = map[string]Normalizer{
	"github_": normalizeGitHubRepo,
}

// normalizeGitHubRepo splits a combined "owner/repo" value into the
// separate owner and repo fields the capability contract declares.
func normalizeGitHubRepo(params map[string]any) error {
	raw, ok := params["repo"].(string)
	if !ok || !strings.Contains(raw, "/") {
		return nil
	}

	parts := strings.SplitN(raw, "/", 2)
	if parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("malformed owner/repo value %q", raw)
	}

	params["owner"] = parts[0]
	params["repo"] = parts[1]
	return nil
}

// normalizerFor returns the normalizer for a capability id, if any.
func normalizerFor(normalizers map[string]Normalizer, capabilityID string) (Normalizer, bool) {
	var bestPrefix string
	var best Normalizer
	for prefix, n := range normalizers {
		if strings.HasPrefix(capabilityID, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			best = n
		}
	}
	return best, best != nil
}
