package algorithms

import "strings"

// Normalize canonicalizes algorithm names and their long-form aliases.
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return ""
	}
	for _, candidate := range aliasCandidates(normalized) {
		if canonical, ok := canonicalName(candidate); ok {
			return canonical
		}
	}
	return normalized
}

// aliasCandidates strips the landscape suffix used by configuration names
// such as DERosenbrock or pso-rosenbrock.
func aliasCandidates(normalized string) []string {
	candidates := []string{normalized}
	for _, suffix := range []string{"-rosenbrock", "rosenbrock", "-sphere", "sphere", "-onemax", "onemax"} {
		if trimmed := strings.TrimSuffix(normalized, suffix); trimmed != normalized && trimmed != "" {
			candidates = append(candidates, strings.Trim(trimmed, "-"))
		}
	}
	return candidates
}

func canonicalName(alias string) (string, bool) {
	switch strings.ReplaceAll(alias, "-", "") {
	case "aco", "ant", "antcolony", "antcolonyoptimisation", "antcolonyoptimization":
		return "aco", true
	case "ga", "genetic", "geneticalgorithm":
		return "ga", true
	case "de", "differential", "differentialevolution":
		return "de", true
	case "pso", "particleswarm", "particleswarmoptimisation", "particleswarmoptimization":
		return "pso", true
	}
	return "", false
}
