// Package catalog provides the browsing surface over the Xtream client:
// category listings with the synthetic "All" entry prepended, catalog and
// detail retrieval, and construction of the resolved stream target handed
// to playback.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opd-ai/go-xc-watch/internal/xtream"
)

// Backend is the slice of the Xtream client the catalog service consumes.
type Backend interface {
	ListCategories(ctx context.Context, kind xtream.Kind) ([]xtream.Category, error)
	ListStreams(ctx context.Context, kind xtream.Kind, categoryID string) ([]xtream.CatalogItem, error)
	GetVodDetail(ctx context.Context, vodID int) (*xtream.VodDetail, error)
	GetSeriesDetail(ctx context.Context, seriesID int) (*xtream.SeriesDetail, error)
	GetGuideEntries(ctx context.Context, streamID, limit int) ([]xtream.GuideEntry, error)
	ResolveStreamURL(kind xtream.Kind, streamID int, ext string) string
}

// Service answers catalog queries for the HTTP surface.
type Service struct {
	backend Backend
	logger  *slog.Logger
}

// New creates a catalog service over the given backend client.
func New(backend Backend, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: backend,
		logger:  logger,
	}
}

// allCategoryName returns the display name of the synthetic All category
// for a content kind.
func allCategoryName(kind xtream.Kind) string {
	switch kind {
	case xtream.KindLive:
		return "All Channels"
	case xtream.KindVod:
		return "All Movies"
	default:
		return "All Series"
	}
}

// Categories returns the backend's categories for a kind with the synthetic
// All category (empty ID) prepended. Backend order is otherwise preserved.
func (s *Service) Categories(ctx context.Context, kind xtream.Kind) ([]xtream.Category, error) {
	backendCategories, err := s.backend.ListCategories(ctx, kind)
	if err != nil {
		return nil, err
	}

	categories := make([]xtream.Category, 0, len(backendCategories)+1)
	categories = append(categories, xtream.Category{ID: "", Name: allCategoryName(kind)})
	categories = append(categories, backendCategories...)

	return categories, nil
}

// Streams returns the catalog for a kind. An empty categoryID (the synthetic
// All category) requests the full catalog.
func (s *Service) Streams(ctx context.Context, kind xtream.Kind, categoryID string) ([]xtream.CatalogItem, error) {
	return s.backend.ListStreams(ctx, kind, categoryID)
}

// VodDetail returns detailed metadata for one VOD title.
func (s *Service) VodDetail(ctx context.Context, vodID int) (*xtream.VodDetail, error) {
	return s.backend.GetVodDetail(ctx, vodID)
}

// SeriesDetail returns a series with its ordered seasons and episodes.
func (s *Service) SeriesDetail(ctx context.Context, seriesID int) (*xtream.SeriesDetail, error) {
	return s.backend.GetSeriesDetail(ctx, seriesID)
}

// Guide returns program-guide entries for a live stream.
func (s *Service) Guide(ctx context.Context, streamID, limit int) ([]xtream.GuideEntry, error) {
	return s.backend.GetGuideEntries(ctx, streamID, limit)
}

// Target resolves a catalog selection into the single artifact playback
// consumes: a playable URL, a title and the content kind.
func (s *Service) Target(kind xtream.Kind, streamID int, title, ext string) (xtream.ResolvedStreamTarget, error) {
	if !kind.Valid() {
		return xtream.ResolvedStreamTarget{}, fmt.Errorf("unknown content kind %q", kind)
	}
	if streamID <= 0 {
		return xtream.ResolvedStreamTarget{}, fmt.Errorf("invalid stream id %d", streamID)
	}

	url := s.backend.ResolveStreamURL(kind, streamID, ext)
	s.logger.Debug("resolved stream target", "kind", kind, "stream_id", streamID)

	return xtream.ResolvedStreamTarget{
		URL:   url,
		Title: title,
		Kind:  kind,
	}, nil
}
