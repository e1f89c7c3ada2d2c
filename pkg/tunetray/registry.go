package tunetray

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DiscoveredPlayer is the reduced per-identity view used by selection UI.
// Two sessions sharing an identity collapse into a single entry here, even
// though both remain controllable through their bus identifiers.
type DiscoveredPlayer struct {
	Identity string
	IsActive bool
}

// Registry enumerates media-control sessions on the bus and keeps the two
// maps the rest of the applet works from: identity -> DiscoveredPlayer for
// selection, and bus identifier -> session handle for control dispatch.
// Both maps are always rebuilt together; a failed enumeration leaves the
// previous cycle's state untouched.
type Registry struct {
	logger        *zap.SugaredLogger
	sessionLogger *zap.SugaredLogger
	bus           BusClient

	discovered map[string]DiscoveredPlayer
	sessions   map[string]*SessionHandle
	selected   *SessionHandle
}

// NewRegistry creates a registry on top of an established bus connection
func NewRegistry(logger *zap.SugaredLogger, bus BusClient) *Registry {
	return &Registry{
		logger:        logger.Named("registry"),
		sessionLogger: logger.Named("sessions"),
		bus:           bus,
		discovered:    make(map[string]DiscoveredPlayer),
		sessions:      make(map[string]*SessionHandle),
	}
}

// enumerate performs one full bus scan and returns fresh session handles,
// sorted by bus identifier so that downstream collision and tie-break
// behavior is stable across ticks
func (r *Registry) enumerate() ([]*SessionHandle, error) {
	names, err := r.bus.ListNames()
	if err != nil {
		return nil, fmt.Errorf("list bus names: %w", err)
	}

	var handles []*SessionHandle
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		handles = append(handles, newSessionHandle(r.sessionLogger, r.bus, name))
	}

	sort.Slice(handles, func(i, j int) bool {
		return handles[i].BusName() < handles[j].BusName()
	})

	return handles, nil
}

// DiscoverAll replaces both registry maps with the result of a fresh bus
// enumeration. On failure the previous maps stay as they were and the error
// is returned; the caller decides whether stale data is acceptable (it is).
func (r *Registry) DiscoverAll() error {
	handles, err := r.enumerate()
	if err != nil {
		r.logger.Warnw("Failed to enumerate sessions", "error", err)
		return fmt.Errorf("discover sessions: %w", err)
	}

	discovered := make(map[string]DiscoveredPlayer, len(handles))
	sessions := make(map[string]*SessionHandle, len(handles))

	for _, handle := range handles {
		status, err := handle.PlaybackStatus()
		if err != nil {
			status = StatusStopped
		}

		// last-write-wins on identity collision; enumeration order is
		// sorted by bus identifier so the collapse is deterministic
		discovered[handle.Identity()] = DiscoveredPlayer{
			Identity: handle.Identity(),
			IsActive: status == StatusPlaying,
		}

		sessions[handle.BusName()] = handle
	}

	r.discovered = discovered
	r.sessions = sessions

	r.logger.Debugw("Discovered sessions", "count", len(sessions))

	return nil
}

// FindDefault selects a single session for single-player mode: the first
// playing one, else the first available. Clears the selection when the bus
// has no sessions at all.
func (r *Registry) FindDefault() error {
	handles, err := r.enumerate()
	if err != nil {
		return fmt.Errorf("find default session: %w", err)
	}

	var fallback *SessionHandle
	for _, handle := range handles {
		if fallback == nil {
			fallback = handle
		}
		if status, err := handle.PlaybackStatus(); err == nil && status == StatusPlaying {
			r.selected = handle
			return nil
		}
	}

	r.selected = fallback
	return nil
}

// FindByIdentity selects the session whose identity matches exactly. When no
// session matches, the current selection is cleared rather than left stale:
// selecting an unavailable player yields "no player", not the previous one.
func (r *Registry) FindByIdentity(name string) error {
	handles, err := r.enumerate()
	if err != nil {
		return fmt.Errorf("find session by identity: %w", err)
	}

	for _, handle := range handles {
		if handle.Identity() == name {
			r.selected = handle
			return nil
		}
	}

	r.selected = nil
	return nil
}

// Selected returns the session chosen by FindDefault/FindByIdentity, or nil
func (r *Registry) Selected() *SessionHandle {
	return r.selected
}

// Session returns the handle for a bus identifier, if it was present in the
// last discovery pass
func (r *Registry) Session(busName string) (*SessionHandle, bool) {
	s, ok := r.sessions[busName]
	return s, ok
}

// Sessions returns the current cycle's handles ordered by bus identifier
func (r *Registry) Sessions() []*SessionHandle {
	handles := make([]*SessionHandle, 0, len(r.sessions))
	for _, handle := range r.sessions {
		handles = append(handles, handle)
	}

	sort.Slice(handles, func(i, j int) bool {
		return handles[i].BusName() < handles[j].BusName()
	})

	return handles
}

// Discovered returns the per-identity selection entries from the last pass
func (r *Registry) Discovered() []DiscoveredPlayer {
	players := make([]DiscoveredPlayer, 0, len(r.discovered))
	for _, p := range r.discovered {
		players = append(players, p)
	}

	sort.Slice(players, func(i, j int) bool {
		return players[i].Identity < players[j].Identity
	})

	return players
}

// Release closes the underlying bus connection
func (r *Registry) Release() error {
	if err := r.bus.Close(); err != nil {
		r.logger.Warnw("Failed to close bus connection", "error", err)
		return fmt.Errorf("close bus connection: %w", err)
	}

	r.logger.Debug("Released registry instance")

	return nil
}
