package playback

// Engine is the media decoder the session drives. The daemon never decodes
// media itself: the engine is a black box (in production, the web player
// bridged over a websocket) that accepts commands and reports lifecycle
// events back through Session.HandleEngineEvent.
type Engine interface {
	Load(url string) error
	Play() error
	Pause() error
	SeekTo(seconds float64) error
	SetRate(rate float64) error
	Stop() error
}

// EngineEventType tags an engine lifecycle event.
type EngineEventType string

const (
	EngineLoaded    EngineEventType = "loaded"
	EngineProgress  EngineEventType = "progress"
	EngineBuffering EngineEventType = "buffering"
	EngineError     EngineEventType = "error"
)

// EngineEvent is one asynchronous report from the media engine. Fields are
// populated per type: Duration for loaded, Position/Duration for progress,
// Buffering for buffering, Code/Message for error.
type EngineEvent struct {
	Type      EngineEventType `json:"type"`
	Position  float64         `json:"position,omitempty"`
	Duration  float64         `json:"duration,omitempty"`
	Buffering bool            `json:"buffering,omitempty"`
	Code      ErrorCode       `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// ErrorCode identifies the failure class reported by the engine.
type ErrorCode string

const (
	// Transient origin problems: a bad HTTP status from the media origin or
	// a dropped connection, typically a short-lived auth/session hiccup.
	ErrCodeBadHTTPStatus ErrorCode = "BAD_HTTP_STATUS"
	ErrCodeNetwork       ErrorCode = "NETWORK"

	// Unrecoverable decode problems.
	ErrCodeDecode            ErrorCode = "DECODE"
	ErrCodeFormatUnsupported ErrorCode = "FORMAT_UNSUPPORTED"
)

// ErrorClass partitions engine errors into those worth an automatic retry
// and those that end the session.
type ErrorClass int

const (
	ClassTransient ErrorClass = iota
	ClassFatal
)

// ClassifyEngineError maps an engine error code to its recovery class.
// Origin/transport hiccups are transient; decoder and format failures are
// fatal. Unknown codes are treated as fatal: retrying an unclassified
// failure risks looping on something that will never succeed.
func ClassifyEngineError(code ErrorCode) ErrorClass {
	switch code {
	case ErrCodeBadHTTPStatus, ErrCodeNetwork:
		return ClassTransient
	default:
		return ClassFatal
	}
}
