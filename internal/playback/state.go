package playback

// State is the externally visible phase of a playback session.
type State string

const (
	StateIdle             State = "idle"
	StateLoading          State = "loading"
	StatePlaying          State = "playing"
	StatePaused           State = "paused"
	StateBuffering        State = "buffering"
	StateErrorRecoverable State = "error_recoverable"
	StateErrorFatal       State = "error_fatal"
	StateTerminated       State = "terminated"
)

// Menu identifies one of the mutually exclusive player overlay menus.
type Menu string

const (
	MenuNone      Menu = ""
	MenuSpeed     Menu = "speed"
	MenuSubtitles Menu = "subtitles"
	MenuQuality   Menu = "quality"
)

// Snapshot is an immutable view of session state, published to observers
// after every transition and served to API clients.
type Snapshot struct {
	State           State   `json:"state"`
	Playing         bool    `json:"playing"`
	Title           string  `json:"title"`
	Kind            string  `json:"kind"`
	Position        float64 `json:"position"`
	Duration        float64 `json:"duration"`
	Rate            float64 `json:"rate"`
	Seeking         bool    `json:"seeking"`
	RetryCount      int     `json:"retry_count"`
	ControlsVisible bool    `json:"controls_visible"`
	ActiveMenu      Menu    `json:"active_menu,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}
