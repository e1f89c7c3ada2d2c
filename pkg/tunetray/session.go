package tunetray

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// PlaybackStatus mirrors the media-control protocol's playback states
type PlaybackStatus string

const (
	StatusPlaying PlaybackStatus = "Playing"
	StatusPaused  PlaybackStatus = "Paused"
	StatusStopped PlaybackStatus = "Stopped"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2."
	mprisObjectPath = "/org/mpris/MediaPlayer2"

	identityProp       = "org.mpris.MediaPlayer2.Identity"
	playbackStatusProp = "org.mpris.MediaPlayer2.Player.PlaybackStatus"
	metadataProp       = "org.mpris.MediaPlayer2.Player.Metadata"
	volumeProp         = "org.mpris.MediaPlayer2.Player.Volume"

	playPauseMethod = "org.mpris.MediaPlayer2.Player.PlayPause"
	nextMethod      = "org.mpris.MediaPlayer2.Player.Next"
	previousMethod  = "org.mpris.MediaPlayer2.Player.Previous"
	stopMethod      = "org.mpris.MediaPlayer2.Player.Stop"
)

// statusPriority orders statuses by relevance; lower is more relevant
func statusPriority(s PlaybackStatus) int {
	switch s {
	case StatusPlaying:
		return 0
	case StatusPaused:
		return 1
	default:
		return 2
	}
}

// parsePlaybackStatus maps the on-bus status string to a PlaybackStatus,
// treating anything unrecognized as Stopped
func parsePlaybackStatus(s string) PlaybackStatus {
	switch s {
	case "Playing":
		return StatusPlaying
	case "Paused":
		return StatusPaused
	default:
		return StatusStopped
	}
}

// SessionHandle is a non-owning handle to one media-control session on the
// bus. Handles live for a single discovery cycle; they are discarded and
// re-fetched on every tick.
type SessionHandle struct {
	logger *zap.SugaredLogger
	bus    BusClient

	wellKnownName string
	busName       string
	identity      string
}

func newSessionHandle(logger *zap.SugaredLogger, bus BusClient, wellKnownName string) *SessionHandle {
	s := &SessionHandle{
		logger:        logger,
		bus:           bus,
		wellKnownName: wellKnownName,
		busName:       strings.TrimPrefix(wellKnownName, mprisPrefix),
	}

	// the identity is a human-readable application name, not unique across
	// sessions. fall back to the bus name part when the property is missing
	variant, err := bus.GetProperty(wellKnownName, mprisObjectPath, identityProp)
	if err == nil {
		if name, ok := variant.Value().(string); ok && name != "" {
			s.identity = name
		}
	}
	if s.identity == "" {
		s.identity = s.busName
	}

	return s
}

// BusName returns the unique bus identifier part distinguishing this session
// from otherwise-identical ones (e.g. two tabs of the same browser)
func (s *SessionHandle) BusName() string {
	return s.busName
}

// Identity returns the session's human-readable application name
func (s *SessionHandle) Identity() string {
	return s.identity
}

// PlaybackStatus queries the session's current playback state
func (s *SessionHandle) PlaybackStatus() (PlaybackStatus, error) {
	variant, err := s.bus.GetProperty(s.wellKnownName, mprisObjectPath, playbackStatusProp)
	if err != nil {
		return StatusStopped, fmt.Errorf("get playback status: %w", err)
	}

	status, ok := variant.Value().(string)
	if !ok {
		return StatusStopped, fmt.Errorf("unexpected playback status type %T", variant.Value())
	}

	return parsePlaybackStatus(status), nil
}

// Metadata returns the raw metadata map for the current track
func (s *SessionHandle) Metadata() (map[string]dbus.Variant, error) {
	variant, err := s.bus.GetProperty(s.wellKnownName, mprisObjectPath, metadataProp)
	if err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}

	metadata, ok := variant.Value().(map[string]dbus.Variant)
	if !ok {
		// some players return nil or odd types when nothing is loaded
		return nil, fmt.Errorf("unexpected metadata type %T", variant.Value())
	}

	return metadata, nil
}

// Volume reads the session's native volume. Not every session implements it.
func (s *SessionHandle) Volume() (float64, error) {
	variant, err := s.bus.GetProperty(s.wellKnownName, mprisObjectPath, volumeProp)
	if err != nil {
		return 0, fmt.Errorf("get volume: %w", err)
	}

	volume, ok := variant.Value().(float64)
	if !ok {
		return 0, fmt.Errorf("unexpected volume type %T", variant.Value())
	}

	return volume, nil
}

// SetVolume writes the session's native volume
func (s *SessionHandle) SetVolume(v float64) error {
	if err := s.bus.SetProperty(s.wellKnownName, mprisObjectPath, volumeProp, v); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	return nil
}

// PlayPause toggles playback
func (s *SessionHandle) PlayPause() error {
	return s.call(playPauseMethod)
}

// Next skips to the next track
func (s *SessionHandle) Next() error {
	return s.call(nextMethod)
}

// Previous skips to the previous track
func (s *SessionHandle) Previous() error {
	return s.call(previousMethod)
}

// Stop halts playback
func (s *SessionHandle) Stop() error {
	return s.call(stopMethod)
}

func (s *SessionHandle) call(method string) error {
	if err := s.bus.Call(s.wellKnownName, mprisObjectPath, method); err != nil {
		s.logger.Warnw("Transport call failed", "method", method, "session", s.busName, "error", err)
		return fmt.Errorf("call %s: %w", method, err)
	}
	return nil
}

func (s *SessionHandle) String() string {
	return fmt.Sprintf("<session: %s (%s)>", s.identity, s.busName)
}
