package alerts

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// alertNamespace seeds deterministic alert ids.
var alertNamespace = uuid.MustParse("6f1d2c8e-3b1a-5c47-9e0d-7a2f4b6c8d10")

// DedupKey returns the identity used to decide whether a candidate is the
// same issue as an existing alert: the rule type, the rule-specific scope
// (device id, survey id or fingerprint) and the sorted set of affected
// response ids. Member order and duplicates do not change the key.
func DedupKey(t Type, scope string, members []string) string {
	sorted := slices.Clone(members)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var b strings.Builder
	b.WriteString(string(t))
	b.WriteByte('|')
	b.WriteString(scope)
	b.WriteByte('|')
	b.WriteString(strings.Join(sorted, ","))
	return b.String()
}

// IDForKey derives the alert id from a dedup key. The same key always yields
// the same id.
func IDForKey(key string) string {
	return uuid.NewSHA1(alertNamespace, []byte(key)).String()
}

// uniqueInOrder drops repeated ids while keeping first-seen order.
func uniqueInOrder(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// NewCandidate assembles a candidate alert with its dedup key and id filled
// in. Affected response ids are de-duplicated, keeping display order.
func NewCandidate(t Type, severity Severity, scope string, affected []string, message string, metadata map[string]any) RiskAlert {
	affected = uniqueInOrder(affected)
	key := DedupKey(t, scope, affected)
	if metadata == nil {
		metadata = map[string]any{}
	}
	return RiskAlert{
		ID:                IDForKey(key),
		Type:              t,
		Severity:          severity,
		Message:           message,
		AffectedResponses: affected,
		Status:            StatusActive,
		Metadata:          metadata,
		Scope:             scope,
		DedupKey:          key,
	}
}
