package assistant

import (
	"strings"

	"synapse/api/internal/store"
)

const maxSuggestions = 5

// Suggestion pairs two people whose expertise overlaps.
type Suggestion struct {
	UserA       string   `json:"userA"`
	UserB       string   `json:"userB"`
	UserAName   string   `json:"userAName"`
	UserBName   string   `json:"userBName"`
	SharedSkill []string `json:"sharedSkills"`
	Score       float64  `json:"score"`
}

// SuggestConnections scans every unordered pair of profiles and scores the
// overlap of their expertise: |intersection| / max(|A|, |B|). Pairs with no
// overlap are skipped. The result is the top pairs by descending score,
// capped at five; equal scores keep the order they were found in. The scan
// is exhaustive O(n²), which is fine at workforce scale.
func SuggestConnections(profiles []store.Profile) []Suggestion {
	suggestions := make([]Suggestion, 0)

	for i := 0; i < len(profiles); i++ {
		for j := i + 1; j < len(profiles); j++ {
			a, b := profiles[i], profiles[j]
			shared := sharedSkills(a.Expertise, b.Expertise)
			if len(shared) == 0 {
				continue
			}

			longest := len(a.Expertise)
			if len(b.Expertise) > longest {
				longest = len(b.Expertise)
			}
			suggestion := Suggestion{
				UserA:       a.ID,
				UserB:       b.ID,
				UserAName:   a.FullName,
				UserBName:   b.FullName,
				SharedSkill: shared,
				Score:       float64(len(shared)) / float64(longest),
			}

			// Insertion sort keeps descending order and first-found
			// priority among equal scores.
			pos := len(suggestions)
			for pos > 0 && suggestions[pos-1].Score < suggestion.Score {
				pos--
			}
			suggestions = append(suggestions, Suggestion{})
			copy(suggestions[pos+1:], suggestions[pos:])
			suggestions[pos] = suggestion
			if len(suggestions) > maxSuggestions {
				suggestions = suggestions[:maxSuggestions]
			}
		}
	}

	return suggestions
}

// sharedSkills intersects two skill lists case-insensitively, keeping the
// first list's spelling.
func sharedSkills(a, b []string) []string {
	folded := make(map[string]bool, len(b))
	for _, skill := range b {
		folded[strings.ToLower(strings.TrimSpace(skill))] = true
	}
	var shared []string
	seen := make(map[string]bool)
	for _, skill := range a {
		key := strings.ToLower(strings.TrimSpace(skill))
		if key == "" || !folded[key] || seen[key] {
			continue
		}
		seen[key] = true
		shared = append(shared, skill)
	}
	return shared
}
