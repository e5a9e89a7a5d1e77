package xtream

import (
	"encoding/base64"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies one of the three content catalogs an Xtream backend serves.
type Kind string

const (
	KindLive   Kind = "live"
	KindVod    Kind = "vod"
	KindSeries Kind = "series"
)

// Valid reports whether k is one of the three known content kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindLive, KindVod, KindSeries:
		return true
	}
	return false
}

// Credentials identifies an account on an Xtream-Codes backend.
// The server URL is normalized (trailing slash stripped) when a Client is
// constructed; Credentials themselves are plain data.
type Credentials struct {
	ServerURL   string `json:"server_url"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// AccountInfo is the result of an authentication call. A structurally valid
// response with Authenticated=false means the backend rejected the
// credentials; that is a normal value, not an error.
type AccountInfo struct {
	Authenticated  bool       `json:"authenticated"`
	Status         string     `json:"status,omitempty"`
	MaxConnections int        `json:"max_connections,omitempty"`
	ActiveConns    int        `json:"active_connections,omitempty"`
	Trial          bool       `json:"trial,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// Category is a named grouping the backend uses to partition a catalog.
// An empty ID means "all categories" and is never produced by the backend;
// the catalog service prepends it (see internal/catalog).
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CatalogItem is one playable entry in a catalog listing. Live channels,
// VOD titles and series all map onto it; series items carry the series ID
// in StreamID and resolve to a SeriesDetail before playback.
type CatalogItem struct {
	StreamID           int    `json:"stream_id"`
	Name               string `json:"name"`
	IconURL            string `json:"icon_url,omitempty"`
	CategoryID         string `json:"category_id,omitempty"`
	Rating             string `json:"rating,omitempty"`
	ContainerExtension string `json:"container_extension,omitempty"`
	EPGChannelID       string `json:"epg_channel_id,omitempty"`
}

// CastMember is one entry of the cast list embedded in detail payloads.
type CastMember struct {
	Name      string `json:"name"`
	Character string `json:"character,omitempty"`
	Image     string `json:"image,omitempty"`
}

// VodDetail is the detailed metadata for a single VOD title.
type VodDetail struct {
	StreamID           int          `json:"stream_id"`
	Name               string       `json:"name"`
	ContainerExtension string       `json:"container_extension,omitempty"`
	Plot               string       `json:"plot,omitempty"`
	Genre              string       `json:"genre,omitempty"`
	Director           string       `json:"director,omitempty"`
	ReleaseDate        string       `json:"release_date,omitempty"`
	Rating             string       `json:"rating,omitempty"`
	DurationSeconds    int          `json:"duration_seconds,omitempty"`
	Cast               []CastMember `json:"cast"`
	Backdrops          []string     `json:"backdrops,omitempty"`
}

// Episode is one playable episode inside a season.
type Episode struct {
	ID                 int    `json:"id"`
	EpisodeNumber      int    `json:"episode_number"`
	Title              string `json:"title,omitempty"`
	ContainerExtension string `json:"container_extension,omitempty"`
	Plot               string `json:"plot,omitempty"`
	DurationSeconds    int    `json:"duration_seconds,omitempty"`
}

// Season groups the episodes of one season, in backend order.
type Season struct {
	SeasonNumber int       `json:"season_number"`
	Episodes     []Episode `json:"episodes"`
}

// SeriesDetail is the detailed metadata for a series, with seasons ordered
// by ascending season number.
type SeriesDetail struct {
	SeriesID    int          `json:"series_id"`
	Name        string       `json:"name"`
	CoverURL    string       `json:"cover_url,omitempty"`
	Plot        string       `json:"plot,omitempty"`
	Genre       string       `json:"genre,omitempty"`
	ReleaseDate string       `json:"release_date,omitempty"`
	Rating      string       `json:"rating,omitempty"`
	Cast        []CastMember `json:"cast"`
	Seasons     []Season     `json:"seasons"`
}

// GuideEntry is one program-guide row for a live stream.
type GuideEntry struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
}

// ResolvedStreamTarget is the only artifact handed to the playback session:
// a playable URL, a display title and the content kind. Kind only affects
// UI affordances (live hides the seek bar).
type ResolvedStreamTarget struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Kind  Kind   `json:"kind"`
}

// --- wire types ---------------------------------------------------------
//
// Xtream backends are notoriously loose with JSON scalar types: the same
// field arrives as a number from one panel and a quoted string from another.
// flexInt and flexString absorb both shapes so decoding never depends on
// the panel software behind the URL.

// flexInt decodes from a JSON number or a numeric string. Unparsable
// values decode to zero rather than failing the whole payload.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Some panels send floats for IDs ("1234.0")
		if fl, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			*f = flexInt(int(fl))
			return nil
		}
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

// flexString decodes from a JSON string or any scalar, keeping the raw text.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	if raw == "null" {
		raw = ""
	}
	*f = flexString(raw)
	return nil
}

// flexBool decodes 1/0, "1"/"0" and true/false.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch s {
	case "1", "true":
		*f = true
	default:
		*f = false
	}
	return nil
}

type authResponse struct {
	UserInfo struct {
		Auth           flexBool   `json:"auth"`
		Status         flexString `json:"status"`
		MaxConnections flexInt    `json:"max_connections"`
		ActiveConns    flexInt    `json:"active_cons"`
		IsTrial        flexBool   `json:"is_trial"`
		ExpDate        flexString `json:"exp_date"`
	} `json:"user_info"`
}

func (r *authResponse) toAccountInfo() AccountInfo {
	info := AccountInfo{
		Authenticated:  bool(r.UserInfo.Auth),
		Status:         string(r.UserInfo.Status),
		MaxConnections: int(r.UserInfo.MaxConnections),
		ActiveConns:    int(r.UserInfo.ActiveConns),
		Trial:          bool(r.UserInfo.IsTrial),
	}
	if secs, err := strconv.ParseInt(string(r.UserInfo.ExpDate), 10, 64); err == nil && secs > 0 {
		t := time.Unix(secs, 0).UTC()
		info.ExpiresAt = &t
	}
	return info
}

type categoryWire struct {
	CategoryID   flexString `json:"category_id"`
	CategoryName string     `json:"category_name"`
}

type catalogItemWire struct {
	StreamID           flexInt    `json:"stream_id"`
	SeriesID           flexInt    `json:"series_id"`
	Name               string     `json:"name"`
	StreamIcon         string     `json:"stream_icon"`
	Cover              string     `json:"cover"`
	CategoryID         flexString `json:"category_id"`
	Rating             flexString `json:"rating"`
	ContainerExtension string     `json:"container_extension"`
	EPGChannelID       string     `json:"epg_channel_id"`
}

func (w *catalogItemWire) toCatalogItem() CatalogItem {
	id := int(w.StreamID)
	if id == 0 {
		id = int(w.SeriesID)
	}
	icon := w.StreamIcon
	if icon == "" {
		icon = w.Cover
	}
	return CatalogItem{
		StreamID:           id,
		Name:               w.Name,
		IconURL:            icon,
		CategoryID:         string(w.CategoryID),
		Rating:             string(w.Rating),
		ContainerExtension: w.ContainerExtension,
		EPGChannelID:       w.EPGChannelID,
	}
}

type vodInfoWire struct {
	Info struct {
		Plot         string          `json:"plot"`
		Genre        string          `json:"genre"`
		Director     string          `json:"director"`
		ReleaseDate  string          `json:"releasedate"`
		Rating       flexString      `json:"rating"`
		DurationSecs flexInt         `json:"duration_secs"`
		Cast         json.RawMessage `json:"cast"`
		BackdropPath json.RawMessage `json:"backdrop_path"`
	} `json:"info"`
	MovieData struct {
		StreamID           flexInt `json:"stream_id"`
		Name               string  `json:"name"`
		ContainerExtension string  `json:"container_extension"`
	} `json:"movie_data"`
}

type episodeWire struct {
	ID                 flexInt `json:"id"`
	EpisodeNum         flexInt `json:"episode_num"`
	Title              string  `json:"title"`
	ContainerExtension string  `json:"container_extension"`
	Info               struct {
		Plot         string  `json:"plot"`
		DurationSecs flexInt `json:"duration_secs"`
	} `json:"info"`
}

type seriesInfoWire struct {
	Info struct {
		Name        string          `json:"name"`
		Cover       string          `json:"cover"`
		Plot        string          `json:"plot"`
		Genre       string          `json:"genre"`
		ReleaseDate string          `json:"releaseDate"`
		Rating      flexString      `json:"rating"`
		Cast        json.RawMessage `json:"cast"`
	} `json:"info"`
	Episodes map[string][]episodeWire `json:"episodes"`
}

type guideEntryWire struct {
	ID             flexString `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	StartTimestamp flexString `json:"start_timestamp"`
	StopTimestamp  flexString `json:"stop_timestamp"`
}

type guideResponse struct {
	EPGListings []guideEntryWire `json:"epg_listings"`
}

// decodeCastList defensively parses the cast field of a detail payload.
// Backends embed it as a JSON string containing a JSON array; some send the
// array directly, others a plain text blob. Anything that does not decode
// to an array degrades to an empty list, never an error.
func decodeCastList(raw json.RawMessage) []CastMember {
	if len(raw) == 0 {
		return []CastMember{}
	}

	// Most common shape: a JSON string whose content is itself JSON.
	var embedded string
	if err := json.Unmarshal(raw, &embedded); err == nil {
		var members []CastMember
		if err := json.Unmarshal([]byte(embedded), &members); err == nil {
			return members
		}
		return []CastMember{}
	}

	// Some panels skip the string wrapping and send the array directly.
	var members []CastMember
	if err := json.Unmarshal(raw, &members); err == nil {
		return members
	}

	return []CastMember{}
}

// decodeBackdrops parses the backdrop_path field, which is usually an array
// of URLs but occasionally a single string or garbage. Failures yield nil.
func decodeBackdrops(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil && one != "" {
		return []string{one}
	}
	return nil
}

// decodeGuideText decodes the base64 the protocol uses for EPG titles and
// descriptions. Values that are not valid base64 pass through unchanged.
func decodeGuideText(s string) string {
	if s == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	return string(decoded)
}

func (w *guideEntryWire) toGuideEntry() GuideEntry {
	entry := GuideEntry{
		ID:          string(w.ID),
		Title:       decodeGuideText(w.Title),
		Description: decodeGuideText(w.Description),
	}
	if secs, err := strconv.ParseInt(string(w.StartTimestamp), 10, 64); err == nil && secs > 0 {
		t := time.Unix(secs, 0).UTC()
		entry.Start = &t
	}
	if secs, err := strconv.ParseInt(string(w.StopTimestamp), 10, 64); err == nil && secs > 0 {
		t := time.Unix(secs, 0).UTC()
		entry.End = &t
	}
	return entry
}

func (w *seriesInfoWire) toSeriesDetail(seriesID int) *SeriesDetail {
	detail := &SeriesDetail{
		SeriesID:    seriesID,
		Name:        w.Info.Name,
		CoverURL:    w.Info.Cover,
		Plot:        w.Info.Plot,
		Genre:       w.Info.Genre,
		ReleaseDate: w.Info.ReleaseDate,
		Rating:      string(w.Info.Rating),
		Cast:        decodeCastList(w.Info.Cast),
		Seasons:     []Season{},
	}

	// Episode map keys are season numbers as strings; order them numerically.
	numbers := make([]int, 0, len(w.Episodes))
	for key := range w.Episodes {
		if n, err := strconv.Atoi(key); err == nil {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)

	for _, n := range numbers {
		wires := w.Episodes[strconv.Itoa(n)]
		season := Season{SeasonNumber: n, Episodes: make([]Episode, 0, len(wires))}
		for _, ew := range wires {
			season.Episodes = append(season.Episodes, Episode{
				ID:                 int(ew.ID),
				EpisodeNumber:      int(ew.EpisodeNum),
				Title:              ew.Title,
				ContainerExtension: ew.ContainerExtension,
				Plot:               ew.Info.Plot,
				DurationSeconds:    int(ew.Info.DurationSecs),
			})
		}
		detail.Seasons = append(detail.Seasons, season)
	}

	return detail
}
