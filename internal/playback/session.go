// Package playback implements the playback session controller: the state
// machine that owns one watch session and mediates between user intent,
// the resolved stream target and the media engine's asynchronous events.
//
// All state transitions are serialized through a single event queue: user
// intents, engine callbacks and timer expirations are all inbound events
// handled by one goroutine. No two sessions share mutable state; timers and
// the retry counter are scoped to the session and torn down on exit. Late
// callbacks arriving after termination are dropped, never applied.
package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opd-ai/go-xc-watch/internal/xtream"
)

// Default session policy. MaxRetries bounds consecutive transient engine
// errors with no intervening progress before the session gives up.
const (
	DefaultMaxRetries        = 2
	DefaultRetryBackoff      = 1 * time.Second
	DefaultControlsHideDelay = 5 * time.Second
	DefaultSkipInterval      = 10 * time.Second

	eventQueueSize = 64
)

// Policy tunes session behavior. Zero values take the defaults above.
type Policy struct {
	MaxRetries        int
	RetryBackoff      time.Duration
	ControlsHideDelay time.Duration
	SkipInterval      time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.RetryBackoff == 0 {
		p.RetryBackoff = DefaultRetryBackoff
	}
	if p.ControlsHideDelay == 0 {
		p.ControlsHideDelay = DefaultControlsHideDelay
	}
	if p.SkipInterval == 0 {
		p.SkipInterval = DefaultSkipInterval
	}
	return p
}

// StateFunc observes the session: it is invoked with a fresh snapshot after
// every transition, from the session goroutine.
type StateFunc func(Snapshot)

// inbound events, one type per intent/callback

type engineEv struct{ ev EngineEvent }
type togglePlayEv struct{}
type seekBeginEv struct{}
type seekCommitEv struct{ pos float64 }
type skipEv struct{ forward bool }
type toggleControlsEv struct{}
type openMenuEv struct{ menu Menu }
type closeMenuEv struct{}
type setRateEv struct{ rate float64 }
type retryEv struct{}
type hideTimerEv struct{}
type resumeTimerEv struct{}
type exitEv struct{}

type errState int

const (
	errNone errState = iota
	errRecoverable
	errFatal
)

// Session owns one watch session from load to termination.
type Session struct {
	target  xtream.ResolvedStreamTarget
	engine  Engine
	release func()
	policy  Policy
	logger  *slog.Logger

	events   chan interface{}
	done     chan struct{}
	observer StateFunc

	// Loop-owned state. Only the constructor (before the loop starts) and
	// the event loop touch these.
	loading        bool
	playing        bool
	buffering      bool
	seeking        bool
	preSeekPlaying bool
	position       float64
	duration       float64
	rate           float64
	retryCount     int
	errPhase       errState
	errMessage     string
	controlsShown  bool
	activeMenu     Menu
	terminated     bool
	hideTimer      *time.Timer
	resumeTimer    *time.Timer

	snapMu sync.RWMutex
	snap   Snapshot
}

// NewSession acquires the playback guard, issues load to the engine and
// starts the session event loop in Loading state with controls visible.
// The guard is released on every exit path, including load failure here.
func NewSession(target xtream.ResolvedStreamTarget, engine Engine, guard Guard, policy Policy, observer StateFunc, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	release, err := guard.Acquire()
	if err != nil {
		return nil, err
	}

	s := &Session{
		target:        target,
		engine:        engine,
		release:       release,
		policy:        policy.withDefaults(),
		logger:        logger,
		events:        make(chan interface{}, eventQueueSize),
		done:          make(chan struct{}),
		observer:      observer,
		loading:       true,
		playing:       true,
		rate:          1.0,
		controlsShown: true,
	}

	if err := engine.Load(target.URL); err != nil {
		release()
		return nil, fmt.Errorf("failed to load stream: %w", err)
	}

	s.logger.Info("playback session started",
		"title", target.Title,
		"kind", target.Kind)

	// Controls are visible on entry; the auto-hide countdown starts now.
	s.scheduleHide()
	s.updateSnapshot()

	go s.loop()

	return s, nil
}

// Target returns the stream target this session plays.
func (s *Session) Target() xtream.ResolvedStreamTarget {
	return s.target
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// Done is closed once the session has fully terminated and released its
// resources.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// HandleEngineEvent feeds an asynchronous engine report into the session.
// Events arriving after termination are dropped.
func (s *Session) HandleEngineEvent(ev EngineEvent) { s.post(engineEv{ev}) }

// TogglePlay flips between playing and paused and resets the controls-hide
// countdown.
func (s *Session) TogglePlay() { s.post(togglePlayEv{}) }

// SeekBegin enters the seeking sub-state: progress events no longer move
// the position until SeekCommit.
func (s *Session) SeekBegin() { s.post(seekBeginEv{}) }

// SeekCommit issues the seek to the engine, clamped to [0, duration], and
// returns to the pre-seek play/pause state.
func (s *Session) SeekCommit(position float64) { s.post(seekCommitEv{position}) }

// SkipForward jumps ahead by the configured skip interval, clamped to the
// duration. Ignored for live streams.
func (s *Session) SkipForward() { s.post(skipEv{forward: true}) }

// SkipBack jumps back by the configured skip interval, clamped to zero.
func (s *Session) SkipBack() { s.post(skipEv{forward: false}) }

// ToggleControls flips controls visibility; becoming visible restarts the
// auto-hide countdown unless a menu is open.
func (s *Session) ToggleControls() { s.post(toggleControlsEv{}) }

// OpenMenu opens one overlay menu, closing any other and suspending the
// auto-hide countdown.
func (s *Session) OpenMenu(menu Menu) { s.post(openMenuEv{menu}) }

// CloseMenu closes the open menu and starts a fresh auto-hide countdown.
func (s *Session) CloseMenu() { s.post(closeMenuEv{}) }

// SetRate changes the playback rate without touching play/pause state.
func (s *Session) SetRate(rate float64) { s.post(setRateEv{rate}) }

// Retry resets the retry budget after a fatal error and reloads the stream.
func (s *Session) Retry() { s.post(retryEv{}) }

// Exit tears the session down: cancels timers, stops the engine and
// releases the playback guard. Idempotent; calling Exit on a terminated
// session is a no-op.
func (s *Session) Exit() { s.post(exitEv{}) }

// post enqueues an event unless the session has terminated.
func (s *Session) post(ev interface{}) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case <-s.done:
	case s.events <- ev:
	}
}

func (s *Session) loop() {
	for {
		ev := <-s.events
		s.handle(ev)
		s.updateSnapshot()
		if s.observer != nil {
			s.observer(s.Snapshot())
		}
		if s.terminated {
			close(s.done)
			return
		}
	}
}

func (s *Session) handle(ev interface{}) {
	switch e := ev.(type) {
	case engineEv:
		s.handleEngine(e.ev)
	case togglePlayEv:
		s.playing = !s.playing
		if s.playing {
			s.command(s.engine.Play, "play")
		} else {
			s.command(s.engine.Pause, "pause")
		}
		s.restartHide()
	case seekBeginEv:
		if s.isLive() || s.seeking {
			return
		}
		s.seeking = true
		s.preSeekPlaying = s.playing
	case seekCommitEv:
		if !s.seeking {
			return
		}
		pos := clamp(e.pos, 0, s.duration)
		s.command(func() error { return s.engine.SeekTo(pos) }, "seek")
		s.position = pos
		s.seeking = false
		s.playing = s.preSeekPlaying
		if s.playing {
			s.command(s.engine.Play, "play")
		} else {
			s.command(s.engine.Pause, "pause")
		}
	case skipEv:
		if s.isLive() {
			return
		}
		delta := s.policy.SkipInterval.Seconds()
		if !e.forward {
			delta = -delta
		}
		pos := clamp(s.position+delta, 0, s.duration)
		s.command(func() error { return s.engine.SeekTo(pos) }, "seek")
		s.position = pos
	case toggleControlsEv:
		s.controlsShown = !s.controlsShown
		if s.controlsShown {
			s.restartHide()
		} else {
			s.stopHide()
		}
	case openMenuEv:
		// Opening one menu closes any other; the hide countdown never runs
		// while a menu is open.
		s.activeMenu = e.menu
		s.controlsShown = true
		s.stopHide()
	case closeMenuEv:
		if s.activeMenu == MenuNone {
			return
		}
		s.activeMenu = MenuNone
		s.restartHide()
	case setRateEv:
		if e.rate <= 0 {
			return
		}
		s.rate = e.rate
		s.command(func() error { return s.engine.SetRate(e.rate) }, "set_rate")
	case retryEv:
		if s.errPhase != errFatal {
			return
		}
		s.errPhase = errNone
		s.errMessage = ""
		s.retryCount = 0
		s.loading = true
		s.playing = true
		s.command(func() error { return s.engine.Load(s.target.URL) }, "load")
	case hideTimerEv:
		// Defensive: a menu may have opened, or buffering begun, between
		// the timer being scheduled and firing.
		if s.activeMenu != MenuNone || s.buffering {
			return
		}
		s.controlsShown = false
	case resumeTimerEv:
		if s.errPhase != errRecoverable {
			return
		}
		// The recoverable state auto-clears on the delayed resume; the
		// retry counter only resets once forward progress confirms it.
		s.errPhase = errNone
		s.playing = true
		s.command(s.engine.Play, "play")
	case exitEv:
		s.teardown()
	}
}

func (s *Session) handleEngine(ev EngineEvent) {
	switch ev.Type {
	case EngineLoaded:
		s.loading = false
		s.duration = ev.Duration
		s.errPhase = errNone
		s.errMessage = ""
		s.retryCount = 0
		if s.playing {
			s.command(s.engine.Play, "play")
		}
	case EngineProgress:
		if s.seeking {
			// Drop stale progress while a seek is in flight to avoid jitter.
			return
		}
		if ev.Duration > 0 && !s.isLive() {
			s.duration = ev.Duration
		}
		pos := ev.Position
		if !s.isLive() && s.duration > 0 {
			pos = clamp(pos, 0, s.duration)
		}
		s.position = pos
		if pos > 0 {
			// Forward progress confirms recovery. The retry budget resets
			// even after the delayed resume already cleared the error phase,
			// so only consecutive errors without progress count against it.
			s.errPhase = errNone
			s.errMessage = ""
			s.retryCount = 0
		}
	case EngineBuffering:
		s.buffering = ev.Buffering
		if s.buffering {
			// The buffering overlay replaces the controls; suspend the
			// hide countdown while it is up.
			s.stopHide()
		} else {
			s.restartHide()
		}
	case EngineError:
		s.handleEngineError(ev)
	}
}

func (s *Session) handleEngineError(ev EngineEvent) {
	class := ClassifyEngineError(ev.Code)

	if class == ClassTransient {
		s.retryCount++
		if s.retryCount < s.policy.MaxRetries {
			s.logger.Info("transient playback error, retrying",
				"code", ev.Code,
				"retry", s.retryCount,
				"backoff", s.policy.RetryBackoff)
			s.errPhase = errRecoverable
			s.errMessage = ev.Message
			s.command(s.engine.Pause, "pause")
			s.scheduleResume()
			return
		}
		s.logger.Warn("playback retry budget exhausted",
			"code", ev.Code,
			"retries", s.retryCount)
	} else {
		s.logger.Warn("fatal playback error",
			"code", ev.Code,
			"message", ev.Message)
	}

	s.errPhase = errFatal
	s.errMessage = ev.Message
	s.stopResume()
	s.command(s.engine.Pause, "pause")
}

// teardown cancels timers, stops the engine and releases the guard. It runs
// exactly once; the loop exits right after.
func (s *Session) teardown() {
	s.stopHide()
	s.stopResume()
	s.command(s.engine.Stop, "stop")
	s.release()
	s.terminated = true
	s.logger.Info("playback session terminated", "title", s.target.Title)
}

func (s *Session) command(cmd func() error, name string) {
	if err := cmd(); err != nil {
		s.logger.Warn("engine command failed", "command", name, "error", err)
	}
}

func (s *Session) isLive() bool {
	return s.target.Kind == xtream.KindLive
}

// scheduleHide (re)arms the controls auto-hide timer.
func (s *Session) scheduleHide() {
	s.stopHide()
	s.hideTimer = time.AfterFunc(s.policy.ControlsHideDelay, func() {
		s.post(hideTimerEv{})
	})
}

// restartHide restarts the hide countdown if it is allowed to run: controls
// visible, no menu open, not buffering.
func (s *Session) restartHide() {
	if !s.controlsShown || s.activeMenu != MenuNone || s.buffering {
		s.stopHide()
		return
	}
	s.scheduleHide()
}

func (s *Session) stopHide() {
	if s.hideTimer != nil {
		s.hideTimer.Stop()
		s.hideTimer = nil
	}
}

func (s *Session) scheduleResume() {
	s.stopResume()
	s.resumeTimer = time.AfterFunc(s.policy.RetryBackoff, func() {
		s.post(resumeTimerEv{})
	})
}

func (s *Session) stopResume() {
	if s.resumeTimer != nil {
		s.resumeTimer.Stop()
		s.resumeTimer = nil
	}
}

func (s *Session) currentState() State {
	switch {
	case s.terminated:
		return StateTerminated
	case s.errPhase == errFatal:
		return StateErrorFatal
	case s.errPhase == errRecoverable:
		return StateErrorRecoverable
	case s.loading:
		return StateLoading
	case s.buffering:
		return StateBuffering
	case s.playing:
		return StatePlaying
	default:
		return StatePaused
	}
}

func (s *Session) updateSnapshot() {
	snap := Snapshot{
		State:           s.currentState(),
		Playing:         s.playing,
		Title:           s.target.Title,
		Kind:            string(s.target.Kind),
		Position:        s.position,
		Duration:        s.duration,
		Rate:            s.rate,
		Seeking:         s.seeking,
		RetryCount:      s.retryCount,
		ControlsVisible: s.controlsShown,
		ActiveMenu:      s.activeMenu,
		ErrorMessage:    s.errMessage,
	}

	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
