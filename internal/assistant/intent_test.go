package assistant

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		query string
		want  Intent
	}{
		{"hi", IntentGreeting},
		{"Hello there", IntentGreeting},
		{"good morning!", IntentGreeting},
		{"find me an expert in react", IntentFindExpert},
		{"who knows someone good at kubernetes", IntentFindExpert},
		{"experts in databases", IntentFindExpert},
		{"suggest connections for me", IntentSuggestConnections},
		{"who should I connect with?", IntentSuggestConnections},
		{"recommend people to talk to", IntentSuggestConnections},
		{"search articles about testing", IntentSearchKnowledge},
		{"how do I deploy the api", IntentSearchKnowledge},
		{"show me docs on migrations", IntentSearchKnowledge},
		{"help", IntentHelp},
		{"what can you do", IntentHelp},
		{"qwerty asdf", IntentUnknown},
		{"", IntentUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.query); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.query, got, tc.want)
		}
	}
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	if got := Classify("FIND ME AN EXPERT IN REACT"); got != IntentFindExpert {
		t.Errorf("expected find_expert, got %s", got)
	}
}

func TestExtractTopic(t *testing.T) {
	cases := map[string]string{
		"find me an expert in react": "react",
		"search articles about unit testing": "unit testing",
		"who knows someone good at kubernetes?": "good at kubernetes",
	}
	for query, want := range cases {
		if got := ExtractTopic(query); got != want {
			t.Errorf("ExtractTopic(%q) = %q, want %q", query, got, want)
		}
	}
}
