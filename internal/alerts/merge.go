package alerts

import "slices"

// Merge folds detection candidates into the existing alert collection and
// returns the resulting collection. Candidates are matched against alerts of
// the same rule type and scope:
//
//   - A candidate whose dedup key equals an alert's, or whose responses are all
//     already listed by one alert, is discarded whatever that alert's status.
//     Resolved alerts are never reopened by re-detection.
//   - A candidate that shares responses with an open alert but brings new ones
//     extends that alert: the responses are added, the severity is raised to
//     the higher of the two and the message and metadata are refreshed. The
//     alert keeps its id and dedup key.
//
// Remaining candidates become new active alerts. Merge is pure; neither input
// is modified.
func Merge(existing, candidates []RiskAlert) []RiskAlert {
	return reconcile(existing, candidates).all
}

// Known returns, for each candidate that matches an existing alert, the id of
// that alert. Candidates that would create a new alert are not listed.
func Known(existing, candidates []RiskAlert) []string {
	return reconcile(existing, candidates).known
}

// mergePlan is the outcome of folding one batch of candidates.
type mergePlan struct {
	// all is the existing collection with extensions applied, followed by
	// the created alerts.
	all      []RiskAlert
	created  []RiskAlert
	extended []RiskAlert
	known    []string
}

func reconcile(existing, candidates []RiskAlert) mergePlan {
	p := mergePlan{all: make([]RiskAlert, 0, len(existing)+len(candidates))}
	byKey := make(map[string]int, len(existing)+len(candidates))
	byGroup := make(map[string][]int)
	index := func(i int) {
		a := p.all[i]
		if _, ok := byKey[keyOf(a)]; !ok {
			byKey[keyOf(a)] = i
		}
		g := groupOf(a)
		byGroup[g] = append(byGroup[g], i)
	}
	for _, a := range existing {
		p.all = append(p.all, a.Clone())
		index(len(p.all) - 1)
	}

	extended := make(map[int]bool)
	for _, c := range candidates {
		key := keyOf(c)
		members := uniqueInOrder(c.AffectedResponses)
		group := byGroup[groupOf(c)]

		i, ok := byKey[key]
		if !ok {
			i, ok = covering(p.all, group, members)
		}
		if !ok {
			if i, ok = overlappingOpen(p.all, group, members); ok {
				extend(&p.all[i], c, members)
				if i < len(existing) {
					extended[i] = true
				}
			}
		}
		if ok {
			if i < len(existing) {
				p.known = append(p.known, p.all[i].ID)
			}
			continue
		}

		p.all = append(p.all, activate(c, key))
		index(len(p.all) - 1)
	}

	p.created = p.all[len(existing):]
	for i := range existing {
		if extended[i] {
			p.extended = append(p.extended, p.all[i])
		}
	}
	return p
}

// covering returns the alert among candidates that already lists every member.
func covering(all []RiskAlert, candidates []int, members []string) (int, bool) {
	for _, i := range candidates {
		if containsAll(all[i].AffectedResponses, members) {
			return i, true
		}
	}
	return 0, false
}

// overlappingOpen returns the first open alert sharing a member.
func overlappingOpen(all []RiskAlert, candidates []int, members []string) (int, bool) {
	for _, i := range candidates {
		if !all[i].Open() {
			continue
		}
		for _, id := range members {
			if slices.Contains(all[i].AffectedResponses, id) {
				return i, true
			}
		}
	}
	return 0, false
}

func containsAll(set, members []string) bool {
	for _, id := range members {
		if !slices.Contains(set, id) {
			return false
		}
	}
	return true
}

// extend grows an open alert with a candidate covering more responses.
func extend(a *RiskAlert, c RiskAlert, members []string) {
	a.AffectedResponses = uniqueInOrder(append(a.AffectedResponses, members...))
	if c.Severity.Rank() > a.Severity.Rank() {
		a.Severity = c.Severity
	}
	if c.Message != "" {
		a.Message = c.Message
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	for k, v := range c.Metadata {
		a.Metadata[k] = v
	}
	if _, ok := a.Metadata["responseCount"]; ok {
		a.Metadata["responseCount"] = len(a.AffectedResponses)
	}
	if c.Location != nil {
		loc := *c.Location
		a.Location = &loc
	}
	if a.SurveyID != c.SurveyID {
		a.SurveyID = ""
	}
}

// keyOf returns the alert's dedup key, recomputing it for candidates built
// without NewCandidate.
func keyOf(a RiskAlert) string {
	if a.DedupKey != "" {
		return a.DedupKey
	}
	return DedupKey(a.Type, scopeOf(a), a.AffectedResponses)
}

// groupOf identifies the rule type and scope an alert belongs to.
func groupOf(a RiskAlert) string {
	return string(a.Type) + "|" + scopeOf(a)
}

func scopeOf(a RiskAlert) string {
	if a.Scope != "" {
		return a.Scope
	}
	switch a.Type {
	case TypeDuplicateResponses:
		if v, ok := a.Metadata["deviceId"].(string); ok {
			return v
		}
	case TypeDeviceAnomaly:
		if v, ok := a.Metadata["fingerprint"].(string); ok {
			return v
		}
	}
	return a.SurveyID
}

func activate(c RiskAlert, key string) RiskAlert {
	a := c.Clone()
	a.DedupKey = key
	a.Scope = scopeOf(c)
	if a.ID == "" {
		a.ID = IDForKey(key)
	}
	a.AffectedResponses = uniqueInOrder(a.AffectedResponses)
	a.Status = StatusActive
	a.InvestigatedAt = nil
	a.ResolvedAt = nil
	a.Resolution = ""
	a.ResolutionNotes = ""
	a.Notes = nil
	a.Escalations = nil
	a.Contacts = nil
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	return a
}
