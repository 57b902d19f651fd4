package analyzer

import (
	"strings"

	"github.com/garnizeh/talentflow/pkg/models"
)

// Keyword lists driving the heuristic extraction when the engine output is
// not parseable.
var (
	responsibilityKeywords = []string{
		"responsible", "develop", "design", "implement", "maintain",
		"improve", "optimize", "manage", "lead", "coordinate",
	}

	kpiKeywords = []string{
		"kpi", "metric", "target", "goal", "objective", "deadline",
		"performance", "efficiency", "quality", "delivery",
	}

	techKeywords = []string{
		"python", "javascript", "typescript", "java", "c++", "golang", "go", "rust",
		"react", "vue", "angular", "django", "fastapi", "flask",
		"postgresql", "mysql", "sqlite", "mongodb", "redis", "kafka",
		"docker", "kubernetes", "terraform",
		"aws", "gcp", "azure", "git", "ci/cd", "grpc", "agile",
	}
)

const maxHeuristicItems = 5

// heuristicAnalysis extracts signals from the posting text by line and
// keyword matching. It never fails; empty lists mean nothing was found.
func heuristicAnalysis(p *models.Posting) *engineAnalysis {
	description := strings.ToLower(p.Description)

	out := &engineAnalysis{
		Responsibilities: matchLines(description, responsibilityKeywords),
		TargetMetrics:    matchLines(description, kpiKeywords),
		Seniority:        heuristicSeniority(p),
	}

	haystack := description + " " + strings.ToLower(p.Requirements)
	for _, tech := range techKeywords {
		if containsWord(haystack, tech) {
			out.TechnicalRequirements = append(out.TechnicalRequirements, tech)
		}
	}

	return out
}

// matchLines returns up to maxHeuristicItems lines containing any of the
// keywords.
func matchLines(text string, keywords []string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, kw := range keywords {
			if strings.Contains(line, kw) {
				out = append(out, strings.TrimSpace(line))
				break
			}
		}
		if len(out) == maxHeuristicItems {
			break
		}
	}
	return out
}

// containsWord matches a keyword on token boundaries so that "go" does not
// fire on "mongodb".
func containsWord(haystack, word string) bool {
	for _, tok := range strings.FieldsFunc(haystack, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == ':' || r == '\n' || r == '\t' || r == '(' || r == ')'
	}) {
		if strings.Trim(tok, ".") == word {
			return true
		}
	}
	return false
}

// heuristicSeniority mirrors the extraction order used for engine output:
// explicit junior markers first, then lead, then senior, defaulting to
// middle.
func heuristicSeniority(p *models.Posting) string {
	text := strings.ToLower(p.Description + " " + p.Title)

	switch {
	case containsAny(text, "junior", "entry", "graduate"):
		return string(models.SeniorityJunior)
	case containsAny(text, "lead", "principal", "architect"):
		return string(models.SeniorityLead)
	case containsAny(text, "senior", "expert"):
		return string(models.SenioritySenior)
	default:
		return string(models.SeniorityMiddle)
	}
}

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
