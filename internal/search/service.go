package search

import (
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Service is the facade that tries Meilisearch first and falls back to the
// PostgreSQL ILIKE searcher. Meilisearch calls run through a circuit
// breaker so a flapping instance stops eating a timeout per request.
type Service struct {
	meili   *Meili
	pglike  *PgLike
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pglike *PgLike, logger *zap.Logger) *Service {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "meilisearch",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("search breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Service{meili: meili, pglike: pglike, breaker: breaker, logger: logger}
}

type searchHits struct {
	results []Result
	total   int
}

// Search tries Meilisearch if healthy, otherwise falls back to ILIKE. Both
// backends are driven through the Searcher contract.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		outcome, err := s.breaker.Execute(func() (any, error) {
			return runQuery(s.meili, q)
		})
		if err == nil {
			hits := outcome.(searchHits)
			return Response{Results: nonNil(hits.results), Total: hits.total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to postgres", zap.Error(err))
	}

	hits, err := runQuery(s.pglike, q)
	if err != nil {
		s.logger.Error("fallback search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(hits.results), Total: hits.total, Query: q.Text}
}

func runQuery(backend Searcher, q Query) (searchHits, error) {
	results, total, err := backend.Search(q)
	if err != nil {
		return searchHits{}, err
	}
	return searchHits{results: results, total: total}, nil
}

// IndexProfile indexes a profile (fire-and-forget to Meilisearch).
func (s *Service) IndexProfile(p ProfileRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexProfile(p); err != nil {
			s.logger.Warn("index profile", zap.String("id", p.ID), zap.Error(err))
		}
	}()
}

// IndexKnowledge indexes a knowledge item (fire-and-forget to Meilisearch).
func (s *Service) IndexKnowledge(k KnowledgeRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexKnowledge(k); err != nil {
			s.logger.Warn("index knowledge item", zap.String("id", k.ID), zap.Error(err))
		}
	}()
}

// DeleteKnowledge removes a knowledge item from the index (fire-and-forget).
func (s *Service) DeleteKnowledge(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteKnowledge(id); err != nil {
			s.logger.Warn("delete knowledge item from index", zap.String("id", id), zap.Error(err))
		}
	}()
}

// ReindexAll reads every searchable entity from PostgreSQL and pushes them
// to Meilisearch. Called during startup when Meilisearch is healthy.
func (s *Service) ReindexAll() {
	if s.meili == nil || !s.meili.Healthy() || s.pglike == nil {
		return
	}
	profiles, items, err := s.pglike.LoadAllRecords()
	if err != nil {
		s.logger.Warn("reindex load failed", zap.Error(err))
		return
	}
	if err := s.meili.IndexProfiles(profiles); err != nil {
		s.logger.Warn("reindex profiles", zap.Error(err))
	}
	if err := s.meili.IndexKnowledgeItems(items); err != nil {
		s.logger.Warn("reindex knowledge items", zap.Error(err))
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
