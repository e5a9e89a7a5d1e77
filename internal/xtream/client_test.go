package xtream

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Suppress logs during tests
	}))
}

func testClient(serverURL string) *Client {
	return New(Credentials{
		ServerURL: serverURL,
		Username:  "user",
		Password:  "pass",
	}, nil, testLogger())
}

func TestNewNormalizesServerURL(t *testing.T) {
	client := New(Credentials{
		ServerURL: "http://iptv.example.com:8080/",
		Username:  "user",
		Password:  "pass",
	}, nil, testLogger())

	assert.Equal(t, "http://iptv.example.com:8080", client.BaseURL())
}

func TestResolveStreamURL(t *testing.T) {
	client := testClient("http://iptv.example.com:8080/")

	tests := []struct {
		name     string
		kind     Kind
		streamID int
		ext      string
		want     string
	}{
		{
			name:     "live default extension",
			kind:     KindLive,
			streamID: 42,
			want:     "http://iptv.example.com:8080/live/user/pass/42.m3u8",
		},
		{
			name:     "live explicit extension",
			kind:     KindLive,
			streamID: 42,
			ext:      "ts",
			want:     "http://iptv.example.com:8080/live/user/pass/42.ts",
		},
		{
			name:     "vod default extension",
			kind:     KindVod,
			streamID: 7,
			want:     "http://iptv.example.com:8080/movie/user/pass/7.mp4",
		},
		{
			name:     "vod container extension",
			kind:     KindVod,
			streamID: 7,
			ext:      "mkv",
			want:     "http://iptv.example.com:8080/movie/user/pass/7.mkv",
		},
		{
			name:     "series default extension",
			kind:     KindSeries,
			streamID: 1001,
			want:     "http://iptv.example.com:8080/series/user/pass/1001.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := client.ResolveStreamURL(tt.kind, tt.streamID, tt.ext)
			assert.Equal(t, tt.want, got)

			// Pure and deterministic: a second call yields the identical string
			assert.Equal(t, got, client.ResolveStreamURL(tt.kind, tt.streamID, tt.ext))
		})
	}
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name              string
		body              string
		wantAuthenticated bool
		wantMaxConns      int
	}{
		{
			name:              "authenticated numeric flag",
			body:              `{"user_info":{"auth":1,"status":"Active","max_connections":"2","exp_date":"1767225600"}}`,
			wantAuthenticated: true,
			wantMaxConns:      2,
		},
		{
			name: "rejected credentials are a value, not an error",
			// Structurally valid response with auth=0
			body:              `{"user_info":{"auth":0,"status":"Disabled"}}`,
			wantAuthenticated: false,
		},
		{
			name:              "boolean auth flag",
			body:              `{"user_info":{"auth":true,"status":"Active","max_connections":1}}`,
			wantAuthenticated: true,
			wantMaxConns:      1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/player_api.php", r.URL.Path)
				assert.Equal(t, "user", r.URL.Query().Get("username"))
				assert.Equal(t, "pass", r.URL.Query().Get("password"))
				assert.Empty(t, r.URL.Query().Get("action"), "authenticate must not send an action")
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			info, err := testClient(srv.URL).Authenticate(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantAuthenticated, info.Authenticated)
			assert.Equal(t, tt.wantMaxConns, info.MaxConnections)
		})
	}
}

func TestAuthenticateExpiryParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"user_info":{"auth":1,"exp_date":"1767225600"}}`)
	}))
	defer srv.Close()

	info, err := testClient(srv.URL).Authenticate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info.ExpiresAt)
	assert.Equal(t, int64(1767225600), info.ExpiresAt.Unix())
}

func TestAuthenticateNetworkError(t *testing.T) {
	// Point at a server that is immediately closed
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	info, err := testClient(srv.URL).Authenticate(context.Background())
	assert.Zero(t, info)
	require.Error(t, err)
	assert.True(t, IsNetworkError(err), "transport failure must classify as NetworkError")
}

func TestListCategoriesActionsAndOrder(t *testing.T) {
	tests := []struct {
		kind       Kind
		wantAction string
	}{
		{KindLive, "get_live_categories"},
		{KindVod, "get_vod_categories"},
		{KindSeries, "get_series_categories"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			var gotAction string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAction = r.URL.Query().Get("action")
				// Backend order deliberately not alphabetical
				fmt.Fprint(w, `[{"category_id":"9","category_name":"Zeta"},{"category_id":"1","category_name":"Alpha"}]`)
			}))
			defer srv.Close()

			categories, err := testClient(srv.URL).ListCategories(context.Background(), tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, gotAction)

			// Backend order preserved, no synthetic entries added by the client
			require.Len(t, categories, 2)
			assert.Equal(t, Category{ID: "9", Name: "Zeta"}, categories[0])
			assert.Equal(t, Category{ID: "1", Name: "Alpha"}, categories[1])
		})
	}
}

func TestListStreamsCategoryParameter(t *testing.T) {
	tests := []struct {
		name       string
		categoryID string
		wantParam  bool
	}{
		{"with category", "12", true},
		{"full catalog omits category_id", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var query string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				query = r.URL.RawQuery
				fmt.Fprint(w, `[]`)
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).ListStreams(context.Background(), KindLive, tt.categoryID)
			require.NoError(t, err)

			if tt.wantParam {
				assert.Contains(t, query, "category_id=12")
			} else {
				assert.NotContains(t, query, "category_id")
			}
		})
	}
}

func TestListStreamsLooseTyping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// stream_id as string, rating as number: both shapes occur in the wild
		fmt.Fprint(w, `[
			{"stream_id":"101","name":"News HD","stream_icon":"http://x/icon.png","category_id":1,"epg_channel_id":"news.hd"},
			{"stream_id":102,"name":"Sports","rating":7.5,"category_id":"2","container_extension":"ts"}
		]`)
	}))
	defer srv.Close()

	items, err := testClient(srv.URL).ListStreams(context.Background(), KindLive, "")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, 101, items[0].StreamID)
	assert.Equal(t, "1", items[0].CategoryID)
	assert.Equal(t, "news.hd", items[0].EPGChannelID)

	assert.Equal(t, 102, items[1].StreamID)
	assert.Equal(t, "7.5", items[1].Rating)
	assert.Equal(t, "ts", items[1].ContainerExtension)
}

func TestListSeriesUsesSeriesID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "get_series", r.URL.Query().Get("action"))
		fmt.Fprint(w, `[{"series_id":"555","name":"Show","cover":"http://x/cover.jpg"}]`)
	}))
	defer srv.Close()

	items, err := testClient(srv.URL).ListStreams(context.Background(), KindSeries, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 555, items[0].StreamID)
	assert.Equal(t, "http://x/cover.jpg", items[0].IconURL)
}

func TestGetVodDetail(t *testing.T) {
	castJSON := `"[{\"name\":\"Jane Doe\",\"character\":\"Lead\"},{\"name\":\"John Roe\"}]"`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "get_vod_info", r.URL.Query().Get("action"))
		assert.Equal(t, "77", r.URL.Query().Get("vod_id"))
		fmt.Fprintf(w, `{
			"info":{"plot":"A film.","genre":"Drama","duration_secs":"5400","cast":%s,"backdrop_path":["http://x/b1.jpg"]},
			"movie_data":{"stream_id":"77","name":"A Film","container_extension":"mkv"}
		}`, castJSON)
	}))
	defer srv.Close()

	detail, err := testClient(srv.URL).GetVodDetail(context.Background(), 77)
	require.NoError(t, err)

	assert.Equal(t, 77, detail.StreamID)
	assert.Equal(t, "mkv", detail.ContainerExtension)
	assert.Equal(t, 5400, detail.DurationSeconds)
	require.Len(t, detail.Cast, 2)
	assert.Equal(t, "Jane Doe", detail.Cast[0].Name)
	assert.Equal(t, "Lead", detail.Cast[0].Character)
	assert.Equal(t, []string{"http://x/b1.jpg"}, detail.Backdrops)
}

func TestGetVodDetailMalformedCast(t *testing.T) {
	tests := []struct {
		name string
		cast string
	}{
		{"plain text", `"not-json"`},
		{"embedded object not array", `"{\"name\":\"x\"}"`},
		{"number", `42`},
		{"missing", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				cast := tt.cast
				if cast == "" {
					fmt.Fprint(w, `{"info":{"plot":"x"},"movie_data":{"stream_id":1}}`)
					return
				}
				fmt.Fprintf(w, `{"info":{"plot":"x","cast":%s},"movie_data":{"stream_id":1}}`, cast)
			}))
			defer srv.Close()

			detail, err := testClient(srv.URL).GetVodDetail(context.Background(), 1)
			require.NoError(t, err, "malformed cast must degrade, never error")
			assert.NotNil(t, detail.Cast)
			assert.Empty(t, detail.Cast)
		})
	}
}

func TestGetSeriesDetailSeasonOrdering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "get_series_info", r.URL.Query().Get("action"))
		assert.Equal(t, "900", r.URL.Query().Get("series_id"))
		// Season keys out of order, including a double-digit season that must
		// sort numerically after 2, not lexically before it.
		fmt.Fprint(w, `{
			"info":{"name":"Show","cover":"http://x/c.jpg","cast":"[]"},
			"episodes":{
				"10":[{"id":"3001","episode_num":1,"title":"S10E1"}],
				"1":[{"id":"1001","episode_num":"1","title":"Pilot","container_extension":"mkv"},{"id":"1002","episode_num":"2","title":"Second"}],
				"2":[{"id":"2001","episode_num":1,"title":"S2E1"}]
			}
		}`)
	}))
	defer srv.Close()

	detail, err := testClient(srv.URL).GetSeriesDetail(context.Background(), 900)
	require.NoError(t, err)

	assert.Equal(t, 900, detail.SeriesID)
	require.Len(t, detail.Seasons, 3)
	assert.Equal(t, 1, detail.Seasons[0].SeasonNumber)
	assert.Equal(t, 2, detail.Seasons[1].SeasonNumber)
	assert.Equal(t, 10, detail.Seasons[2].SeasonNumber)

	require.Len(t, detail.Seasons[0].Episodes, 2)
	assert.Equal(t, 1001, detail.Seasons[0].Episodes[0].ID)
	assert.Equal(t, "Pilot", detail.Seasons[0].Episodes[0].Title)
	assert.Equal(t, "mkv", detail.Seasons[0].Episodes[0].ContainerExtension)
}

func TestGetGuideEntries(t *testing.T) {
	title := base64.StdEncoding.EncodeToString([]byte("Evening News"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "get_simple_data_table", r.URL.Query().Get("action"))
		assert.Equal(t, "42", r.URL.Query().Get("stream_id"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"), "zero limit applies the default of 100")
		fmt.Fprintf(w, `{"epg_listings":[
			{"id":"1","title":"%s","description":"bm90LWJhc2U2NA_!!","start_timestamp":"1756700000","stop_timestamp":"1756703600"}
		]}`, title)
	}))
	defer srv.Close()

	entries, err := testClient(srv.URL).GetGuideEntries(context.Background(), 42, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, "Evening News", entries[0].Title)
	// Invalid base64 passes through unchanged rather than failing
	assert.Equal(t, "bm90LWJhc2U2NA_!!", entries[0].Description)
	require.NotNil(t, entries[0].Start)
	assert.Equal(t, int64(1756700000), entries[0].Start.Unix())
}

func TestUnexpectedStatusIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ListCategories(context.Background(), KindLive)
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
}

func TestUnknownKindRejected(t *testing.T) {
	client := testClient("http://iptv.example.com")

	_, err := client.ListCategories(context.Background(), Kind("radio"))
	assert.Error(t, err)

	_, err = client.ListStreams(context.Background(), Kind("radio"), "")
	assert.Error(t, err)
}
