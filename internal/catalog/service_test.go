package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-xc-watch/internal/xtream"
)

// fakeBackend implements Backend with canned responses.
type fakeBackend struct {
	categories map[xtream.Kind][]xtream.Category
	streams    []xtream.CatalogItem
	err        error

	lastKind       xtream.Kind
	lastCategoryID string
}

func (f *fakeBackend) ListCategories(ctx context.Context, kind xtream.Kind) ([]xtream.Category, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastKind = kind
	return f.categories[kind], nil
}

func (f *fakeBackend) ListStreams(ctx context.Context, kind xtream.Kind, categoryID string) ([]xtream.CatalogItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastKind = kind
	f.lastCategoryID = categoryID
	return f.streams, nil
}

func (f *fakeBackend) GetVodDetail(ctx context.Context, vodID int) (*xtream.VodDetail, error) {
	return &xtream.VodDetail{StreamID: vodID, Cast: []xtream.CastMember{}}, f.err
}

func (f *fakeBackend) GetSeriesDetail(ctx context.Context, seriesID int) (*xtream.SeriesDetail, error) {
	return &xtream.SeriesDetail{SeriesID: seriesID}, f.err
}

func (f *fakeBackend) GetGuideEntries(ctx context.Context, streamID, limit int) ([]xtream.GuideEntry, error) {
	return nil, f.err
}

func (f *fakeBackend) ResolveStreamURL(kind xtream.Kind, streamID int, ext string) string {
	if ext == "" {
		ext = "mp4"
	}
	return fmt.Sprintf("http://x/%s/%d.%s", kind, streamID, ext)
}

func TestCategoriesPrependsAll(t *testing.T) {
	backend := &fakeBackend{
		categories: map[xtream.Kind][]xtream.Category{
			xtream.KindLive: {{ID: "1", Name: "News"}},
		},
	}
	svc := New(backend, nil)

	categories, err := svc.Categories(context.Background(), xtream.KindLive)
	require.NoError(t, err)

	require.Len(t, categories, 2)
	assert.Equal(t, xtream.Category{ID: "", Name: "All Channels"}, categories[0])
	assert.Equal(t, xtream.Category{ID: "1", Name: "News"}, categories[1])
}

func TestCategoriesAllNamePerKind(t *testing.T) {
	tests := []struct {
		kind xtream.Kind
		want string
	}{
		{xtream.KindLive, "All Channels"},
		{xtream.KindVod, "All Movies"},
		{xtream.KindSeries, "All Series"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			svc := New(&fakeBackend{categories: map[xtream.Kind][]xtream.Category{}}, nil)

			categories, err := svc.Categories(context.Background(), tt.kind)
			require.NoError(t, err)
			require.NotEmpty(t, categories)
			assert.Equal(t, tt.want, categories[0].Name)
			assert.Empty(t, categories[0].ID)
		})
	}
}

func TestCategoriesPropagatesBackendError(t *testing.T) {
	wantErr := errors.New("backend down")
	svc := New(&fakeBackend{err: wantErr}, nil)

	_, err := svc.Categories(context.Background(), xtream.KindVod)
	assert.ErrorIs(t, err, wantErr)
}

func TestStreamsPassesCategoryThrough(t *testing.T) {
	backend := &fakeBackend{streams: []xtream.CatalogItem{{StreamID: 1, Name: "A"}}}
	svc := New(backend, nil)

	items, err := svc.Streams(context.Background(), xtream.KindVod, "12")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, xtream.KindVod, backend.lastKind)
	assert.Equal(t, "12", backend.lastCategoryID)

	// The synthetic All category maps to an empty category ID (full catalog)
	_, err = svc.Streams(context.Background(), xtream.KindVod, "")
	require.NoError(t, err)
	assert.Empty(t, backend.lastCategoryID)
}

func TestTarget(t *testing.T) {
	svc := New(&fakeBackend{}, nil)

	target, err := svc.Target(xtream.KindVod, 7, "A Film", "mkv")
	require.NoError(t, err)
	assert.Equal(t, "http://x/vod/7.mkv", target.URL)
	assert.Equal(t, "A Film", target.Title)
	assert.Equal(t, xtream.KindVod, target.Kind)
}

func TestTargetRejectsBadInput(t *testing.T) {
	svc := New(&fakeBackend{}, nil)

	_, err := svc.Target(xtream.Kind("radio"), 7, "x", "")
	assert.Error(t, err)

	_, err = svc.Target(xtream.KindLive, 0, "x", "")
	assert.Error(t, err)
}
