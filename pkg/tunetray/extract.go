package tunetray

import (
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/tunetray/tunetray/pkg/tunetray/util"
	"go.uber.org/zap"
)

const (
	unknownTitle     = "Unknown"
	unknownArtist    = "Unknown Artist"
	placeholderTitle = "No music playing"

	defaultSessionVolume = 0.5
)

// PlayerInfo is the fully resolved, display-ready snapshot of one session.
// Every field has a usable default, so a PlayerInfo is always renderable.
type PlayerInfo struct {
	Title    string
	Artist   string
	Status   PlaybackStatus
	Volume   float64
	ArtURL   string
	BusName  string
	Identity string

	// always true: volume control is guaranteed for every session through
	// the native-or-mixer fallback chain
	CanControlVolume bool
}

// defaultPlayerInfo is the placeholder shown when no session is selected
func defaultPlayerInfo() PlayerInfo {
	return PlayerInfo{
		Title:            placeholderTitle,
		Status:           StatusStopped,
		Volume:           defaultSessionVolume,
		CanControlVolume: true,
	}
}

// Extractor pulls a PlayerInfo out of a session handle. It never fails:
// each field degrades to its default when the underlying query errors.
type Extractor struct {
	logger *zap.SugaredLogger
	mixer  Mixer
}

// NewExtractor creates an extractor; mixer may be nil when no audio server
// adapter could be initialized
func NewExtractor(logger *zap.SugaredLogger, mixer Mixer) *Extractor {
	return &Extractor{
		logger: logger.Named("extract"),
		mixer:  mixer,
	}
}

// Extract resolves the display snapshot for a session. The caller is
// expected to have refreshed the mixer's stream list for this tick.
func (e *Extractor) Extract(s *SessionHandle) PlayerInfo {
	info := PlayerInfo{
		Title:            unknownTitle,
		Artist:           unknownArtist,
		Status:           StatusStopped,
		Volume:           defaultSessionVolume,
		BusName:          s.BusName(),
		Identity:         s.Identity(),
		CanControlVolume: true,
	}

	if metadata, err := s.Metadata(); err == nil {
		applyMetadata(&info, metadata)
	} else {
		e.logger.Debugw("Failed to read metadata, using defaults",
			"session", s.BusName(), "error", err)
	}

	if status, err := s.PlaybackStatus(); err == nil {
		info.Status = status
	}

	// native volume reads land in [0, 1]
	if volume, err := s.Volume(); err == nil {
		info.Volume = util.Clamp(volume, 0, 1)
	}

	// when a mixer stream matches the identity, its volume wins
	// unconditionally: for browser sessions the native report is often a
	// stale default while the mixer tracks the real level
	if e.mixer != nil {
		if sinkInput, ok := e.mixer.FindByName(info.Identity); ok {
			info.Volume = sinkInput.Volume
		}
	}

	return info
}

// applyMetadata fills title, artist and art URL from the raw metadata map
func applyMetadata(info *PlayerInfo, metadata map[string]dbus.Variant) {
	if variant, ok := metadata["xesam:title"]; ok {
		if title, ok := variant.Value().(string); ok && title != "" {
			info.Title = title
		}
	}

	if variant, ok := metadata["xesam:artist"]; ok {
		switch artists := variant.Value().(type) {
		case []string:
			if len(artists) > 0 {
				info.Artist = strings.Join(artists, ", ")
			}
		case string:
			// some non-compliant players send a plain string
			if artists != "" {
				info.Artist = artists
			}
		}
	}

	if variant, ok := metadata["mpris:artUrl"]; ok {
		if artURL, ok := variant.Value().(string); ok {
			info.ArtURL = artURL
		}
	}
}
