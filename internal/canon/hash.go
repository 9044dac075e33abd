package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainStep  = "gantry/step/v1"
	DomainGraph = "gantry/graph/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StepHash computes the content-addressed hash of one capability call.
// The hash is stable across restarts and replays given the same
// capability id and parameters; it is the replay identity of a step.
//
// Execution context is intentionally EXCLUDED. A step hash represents
// "what was called" (logical identity), not "who called it", so a trace
// recorded under one principal can be replayed under another.
func StepHash(capabilityID string, params map[string]any) (string, error) {
	obj := map[string]any{
		"capability_id": capabilityID,
		"params":        params,
	}
	if obj["params"] == nil {
		obj["params"] = map[string]any{}
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("StepHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainStep, canonical), nil
}

// GraphFingerprint computes a content-addressed identity for an intent
// graph's node/edge shape. Used in validation reports so a caller can
// tell whether a previously rejected graph was actually changed before
// resubmission.
func GraphFingerprint(nodes []string, edges [][2]string) string {
	// Sort copies so fingerprints are independent of declaration order.
	sortedNodes := append([]string(nil), nodes...)
	sort.Strings(sortedNodes)
	sortedEdges := append([][2]string(nil), edges...)
	sort.Slice(sortedEdges, func(i, j int) bool {
		if sortedEdges[i][0] != sortedEdges[j][0] {
			return sortedEdges[i][0] < sortedEdges[j][0]
		}
		return sortedEdges[i][1] < sortedEdges[j][1]
	})

	obj := map[string]any{
		"nodes": toAnySlice(sortedNodes),
		"edges": edgePairs(sortedEdges),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		// Node ids and edge pairs are plain strings; marshaling cannot fail.
		panic(fmt.Sprintf("GraphFingerprint: %v", err))
	}
	return hashWithDomain(DomainGraph, canonical)
}

// MustStepHash is like StepHash but panics on error.
// Use only in tests or when params are known to be hashable.
func MustStepHash(capabilityID string, params map[string]any) string {
	h, err := StepHash(capabilityID, params)
	if err != nil {
		panic(err)
	}
	return h
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func edgePairs(edges [][2]string) []any {
	out := make([]any, len(edges))
	for i, e := range edges {
		out[i] = []any{e[0], e[1]}
	}
	return out
}
