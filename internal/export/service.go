package export

import (
	"context"
	"fmt"
	"time"

	"synapse/api/internal/store"
)

// DataStore defines the data access the exporter needs.
type DataStore interface {
	GetKnowledgeItem(ctx context.Context, itemID string) (store.KnowledgeItem, error)
	ListPeerReviews(ctx context.Context, itemID string) ([]store.PeerReview, error)
}

// Service renders knowledge items into downloadable documents.
type Service struct {
	store DataStore
}

func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	item, err := s.store.GetKnowledgeItem(ctx, req.ItemID)
	if err != nil {
		return nil, fmt.Errorf("get knowledge item: %w", err)
	}

	data := TemplateData{
		Title:       item.Title,
		AuthorName:  item.AuthorName,
		Version:     item.Version,
		Tags:        item.Tags,
		Freshness:   store.FreshnessBand(item.FreshnessScore),
		ContentHTML: ContentToHTML(item.Content),
		GeneratedAt: time.Now().UTC(),
	}

	if req.IncludeReviews {
		reviews, err := s.store.ListPeerReviews(ctx, req.ItemID)
		if err != nil {
			return nil, fmt.Errorf("list peer reviews: %w", err)
		}
		for _, review := range reviews {
			data.Reviews = append(data.Reviews, TemplateReview{
				Reviewer: review.ReviewerName,
				Rating:   review.Rating,
				Comments: review.Comments,
			})
		}
	}

	html, err := RenderItemHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, item.Title)
	case FormatDOCX:
		return exportDOCX(html, item.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
