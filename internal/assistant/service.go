package assistant

import (
	"context"

	"go.uber.org/zap"

	"synapse/api/internal/store"
)

// Directory lists profiles for the suggestion scan.
type Directory interface {
	ListProfiles(ctx context.Context, department string) ([]store.Profile, error)
}

// ExpertFinder resolves a topic to matching experts.
type ExpertFinder interface {
	FindExperts(ctx context.Context, topic, department string) ([]store.Profile, error)
}

// KnowledgeSearcher resolves a topic to knowledge items.
type KnowledgeSearcher interface {
	SearchKnowledge(ctx context.Context, topic string) ([]store.KnowledgeItem, error)
}

// Reply is the assistant's answer to one query.
type Reply struct {
	Intent      Intent                `json:"intent"`
	Message     string                `json:"message"`
	Experts     []store.Profile       `json:"experts,omitempty"`
	Suggestions []Suggestion          `json:"suggestions,omitempty"`
	Knowledge   []store.KnowledgeItem `json:"knowledge,omitempty"`
}

// Service routes classified queries to their handlers.
type Service struct {
	finder    ExpertFinder
	directory Directory
	knowledge KnowledgeSearcher
	responses *ResponseStore
	logger    *zap.Logger
}

func NewService(finder ExpertFinder, directory Directory, knowledge KnowledgeSearcher, responses *ResponseStore, logger *zap.Logger) *Service {
	return &Service{
		finder:    finder,
		directory: directory,
		knowledge: knowledge,
		responses: responses,
		logger:    logger,
	}
}

// Handle classifies the query and runs the matching handler. Handlers never
// propagate lookup failures to the caller: a failed fetch logs and answers
// with an empty result set.
func (s *Service) Handle(ctx context.Context, query string) Reply {
	replies := s.responses.Current()
	intent := Classify(query)

	switch intent {
	case IntentGreeting:
		return Reply{Intent: intent, Message: replies.Greeting}
	case IntentHelp:
		return Reply{Intent: intent, Message: replies.Help}
	case IntentFindExpert:
		return s.handleFindExpert(ctx, query, replies)
	case IntentSuggestConnections:
		return s.handleSuggestConnections(ctx, replies)
	case IntentSearchKnowledge:
		return s.handleSearchKnowledge(ctx, query, replies)
	default:
		return Reply{Intent: IntentUnknown, Message: replies.Unknown}
	}
}

func (s *Service) handleFindExpert(ctx context.Context, query string, replies Responses) Reply {
	topic := ExtractTopic(query)
	experts, err := s.finder.FindExperts(ctx, topic, "")
	if err != nil {
		s.logger.Warn("assistant expert lookup failed", zap.String("topic", topic), zap.Error(err))
		return Reply{Intent: IntentFindExpert, Message: replies.NoExperts, Experts: []store.Profile{}}
	}
	if len(experts) == 0 {
		return Reply{Intent: IntentFindExpert, Message: replies.NoExperts, Experts: []store.Profile{}}
	}
	return Reply{Intent: IntentFindExpert, Message: replies.ExpertsFound, Experts: experts}
}

func (s *Service) handleSuggestConnections(ctx context.Context, replies Responses) Reply {
	profiles, err := s.directory.ListProfiles(ctx, "")
	if err != nil {
		s.logger.Warn("assistant profile fetch failed", zap.Error(err))
		return Reply{Intent: IntentSuggestConnections, Message: replies.NoSuggestions, Suggestions: []Suggestion{}}
	}
	suggestions := SuggestConnections(profiles)
	if len(suggestions) == 0 {
		return Reply{Intent: IntentSuggestConnections, Message: replies.NoSuggestions, Suggestions: []Suggestion{}}
	}
	return Reply{Intent: IntentSuggestConnections, Message: replies.SuggestionsFound, Suggestions: suggestions}
}

func (s *Service) handleSearchKnowledge(ctx context.Context, query string, replies Responses) Reply {
	topic := ExtractTopic(query)
	items, err := s.knowledge.SearchKnowledge(ctx, topic)
	if err != nil {
		s.logger.Warn("assistant knowledge lookup failed", zap.String("topic", topic), zap.Error(err))
		return Reply{Intent: IntentSearchKnowledge, Message: replies.NoKnowledge, Knowledge: []store.KnowledgeItem{}}
	}
	if len(items) == 0 {
		return Reply{Intent: IntentSearchKnowledge, Message: replies.NoKnowledge, Knowledge: []store.KnowledgeItem{}}
	}
	return Reply{Intent: IntentSearchKnowledge, Message: replies.KnowledgeFound, Knowledge: items}
}
