// Package assistant implements the query router behind the in-app helper:
// free text goes in, an intent comes out, and each intent has its own
// handler over the profile and knowledge stores.
package assistant

import (
	"regexp"
	"strings"
)

// Intent is the classified purpose of a free-text query.
type Intent string

const (
	IntentFindExpert         Intent = "find_expert"
	IntentSuggestConnections Intent = "suggest_connections"
	IntentSearchKnowledge    Intent = "search_knowledge"
	IntentGreeting           Intent = "greeting"
	IntentHelp               Intent = "help"
	IntentUnknown            Intent = "unknown"
)

// Patterns are tried in order; the first match wins. Greeting sits above
// help so "hi, what can you do" reads as a greeting.
var intentPatterns = []struct {
	intent  Intent
	pattern *regexp.Regexp
}{
	{IntentGreeting, regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good (morning|afternoon|evening))\b`)},
	{IntentSuggestConnections, regexp.MustCompile(`(?i)\b(suggest|recommend)\b.*\b(connection|people|colleague)s?\b|\bwho should i (meet|connect with)\b`)},
	{IntentFindExpert, regexp.MustCompile(`(?i)\b(find|looking for|need|who knows|who is)\b.*\b(expert|someone|anyone|specialist)\b|\bexperts? (in|on|for)\b`)},
	{IntentSearchKnowledge, regexp.MustCompile(`(?i)\b(search|find|show|look up|lookup)\b.*\b(article|doc|document|knowledge|guide|post)s?\b|\bhow (do|to|can) i\b`)},
	{IntentHelp, regexp.MustCompile(`(?i)\b(help|what can you do|commands?|options)\b`)},
}

// Classify maps a query to an intent. It never fails; unmatched text is
// IntentUnknown.
func Classify(query string) Intent {
	for _, candidate := range intentPatterns {
		if candidate.pattern.MatchString(query) {
			return candidate.intent
		}
	}
	return IntentUnknown
}

var topicStripPattern = regexp.MustCompile(`(?i)\b(find|looking for|need|who knows|who is|an?|the|expert|experts|someone|anyone|specialist|in|on|for|with|search|show|look up|lookup|article|articles|doc|docs|document|documents|knowledge|guide|guides|post|posts|about|me|please|how|do|to|can|i)\b`)

// ExtractTopic strips the command words out of a query and returns what is
// left as the search topic. "find me an expert in react" yields "react".
func ExtractTopic(query string) string {
	cleaned := topicStripPattern.ReplaceAllString(query, " ")
	cleaned = strings.TrimSpace(strings.Join(strings.Fields(cleaned), " "))
	return strings.Trim(cleaned, "?!.,")
}
