package tunetray

import (
	"sync"

	"go.uber.org/zap"
)

// Controller owns all mutable session/mixer/art state and drives it from
// the refresh tick. Every query and action goes through here; nothing else
// holds session handles across calls.
type Controller struct {
	logger *zap.SugaredLogger
	config *CanonicalConfig

	registry   *Registry
	mixer      Mixer
	extractor  *Extractor
	aggregator *Aggregator
	volumes    *VolumeResolver
	art        *ArtFetcher

	mu       sync.Mutex
	players  []PlayerInfo
	current  PlayerInfo
	artCache map[string][]byte
	artURLs  map[string]string
}

// NewController wires the discovery, extraction, aggregation, volume and
// art components over an established bus connection. mixer may be nil when
// no audio server adapter could be initialized; volume control then runs on
// the native plane only.
func NewController(logger *zap.SugaredLogger, config *CanonicalConfig, bus BusClient, mixer Mixer) *Controller {
	logger = logger.Named("controller")

	extractor := NewExtractor(logger, mixer)

	c := &Controller{
		logger:     logger,
		config:     config,
		registry:   NewRegistry(logger, bus),
		mixer:      mixer,
		extractor:  extractor,
		aggregator: NewAggregator(logger, extractor),
		volumes:    NewVolumeResolver(logger, mixer),
		art:        NewArtFetcher(logger),
		current:    defaultPlayerInfo(),
		artCache:   make(map[string][]byte),
		artURLs:    make(map[string]string),
	}

	logger.Debug("Created controller instance")

	return c
}

// Refresh runs one full discovery cycle: registry refresh, then extraction
// per session, then aggregation, in that order. A failed enumeration keeps
// the previous cycle's data; the applet shows stale info rather than none.
func (c *Controller) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.registry.DiscoverAll(); err != nil {
		c.logger.Warnw("Discovery failed, keeping last known sessions", "error", err)
	}

	for _, player := range c.registry.Discovered() {
		c.config.AddDiscoveredPlayer(player.Identity)
	}

	if c.mixer != nil {
		if err := c.mixer.Refresh(); err != nil {
			c.logger.Warnw("Mixer refresh failed, volume overrides may be stale", "error", err)
		}
	}

	infos := c.aggregator.Aggregate(c.registry.Sessions())
	c.players = c.filterPlayers(infos)

	c.refreshSelected()

	c.requestArt()
}

// filterPlayers applies the enabled-player set and the hide-inactive flag
func (c *Controller) filterPlayers(infos []PlayerInfo) []PlayerInfo {
	filtered := make([]PlayerInfo, 0, len(infos))
	for _, info := range infos {
		if !c.config.PlayerEnabled(info.Identity) {
			continue
		}
		if c.config.HideInactivePlayers && info.Status == StatusStopped {
			continue
		}
		filtered = append(filtered, info)
	}
	return filtered
}

// refreshSelected re-resolves the single-player selection for this cycle;
// handles never survive a tick, so the selection is re-fetched every time
func (c *Controller) refreshSelected() {
	var err error
	if selected := c.config.SelectedPlayer; selected != "" {
		err = c.registry.FindByIdentity(selected)
	} else {
		err = c.registry.FindDefault()
	}
	if err != nil {
		c.logger.Warnw("Failed to resolve selected session", "error", err)
	}

	if session := c.registry.Selected(); session != nil {
		c.current = c.extractor.Extract(session)
	} else {
		c.current = defaultPlayerInfo()
	}
}

// requestArt dispatches background fetches for every player whose art
// reference changed since the last cycle
func (c *Controller) requestArt() {
	for _, info := range c.players {
		c.requestArtFor(info)
	}
	if c.current.BusName != "" {
		c.requestArtFor(c.current)
	}
}

func (c *Controller) requestArtFor(info PlayerInfo) {
	if info.ArtURL == "" {
		if c.artURLs[info.BusName] != "" {
			delete(c.artURLs, info.BusName)
			delete(c.artCache, info.BusName)
		}
		return
	}

	if c.artURLs[info.BusName] == info.ArtURL {
		return
	}

	c.artURLs[info.BusName] = info.ArtURL
	c.art.FetchAsync(info.BusName, info.ArtURL)
}

// ArtResults exposes the fetcher's completion channel to the run loop
func (c *Controller) ArtResults() <-chan ArtResult {
	return c.art.Results()
}

// HandleArtResult stores a completed fetch, silently discarding results
// superseded by a newer request for the same player
func (c *Controller) HandleArtResult(result ArtResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.art.Stale(result) {
		c.logger.Debugw("Discarding stale art result", "url", result.URL)
		return
	}

	if result.Data == nil {
		delete(c.artCache, result.BusName)
		return
	}

	c.artCache[result.BusName] = result.Data
}

// Players returns the current cycle's aggregated, filtered display list
func (c *Controller) Players() []PlayerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	players := make([]PlayerInfo, len(c.players))
	copy(players, c.players)
	return players
}

// Current returns the single-player-mode snapshot
func (c *Controller) Current() PlayerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Display returns what the presentation layer should render: the full
// aggregated list when show-all is on, otherwise just the current snapshot
func (c *Controller) Display() []PlayerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.ShowAllPlayers {
		players := make([]PlayerInfo, len(c.players))
		copy(players, c.players)
		return players
	}

	return []PlayerInfo{c.current}
}

// DiscoveredPlayers returns the per-identity selection entries from the last
// cycle, for building the selection menu
func (c *Controller) DiscoveredPlayers() []DiscoveredPlayer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Discovered()
}

// Art returns the cached album art for a player, if any
func (c *Controller) Art(busName string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.artCache[busName]
	return data, ok
}

// SelectPlayer persists and applies a single-player selection by identity.
// Selecting an identity no session currently has yields "no player".
func (c *Controller) SelectPlayer(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.config.SetSelectedPlayer(identity)
	c.refreshSelected()
}

// SelectDefault clears the persisted selection and falls back to the
// host-defined active session
func (c *Controller) SelectDefault() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.config.SetSelectedPlayer("")
	c.refreshSelected()
}

// PlayPause toggles playback on the session with the given bus identifier.
// An unknown identifier is a no-op; the session may have vanished between
// ticks and that is not an error.
func (c *Controller) PlayPause(busName string) error {
	return c.transport(busName, (*SessionHandle).PlayPause)
}

// Next skips the session to its next track
func (c *Controller) Next(busName string) error {
	return c.transport(busName, (*SessionHandle).Next)
}

// Previous skips the session to its previous track
func (c *Controller) Previous(busName string) error {
	return c.transport(busName, (*SessionHandle).Previous)
}

// Stop halts playback on the session
func (c *Controller) Stop(busName string) error {
	return c.transport(busName, (*SessionHandle).Stop)
}

func (c *Controller) transport(busName string, op func(*SessionHandle) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.registry.Session(busName)
	if !ok {
		c.logger.Debugw("Transport action on unknown session, ignoring", "busName", busName)
		return nil
	}

	return op(session)
}

// SetVolume writes a volume target through the resolution chain
func (c *Controller) SetVolume(busName string, target float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.registry.Session(busName)
	if !ok {
		c.logger.Debugw("Volume set on unknown session, ignoring", "busName", busName)
		return nil
	}

	outcome, err := c.volumes.Set(session, target)
	c.logger.Debugw("Volume set resolved",
		"busName", busName,
		"target", target,
		"outcome", outcome.String())

	return err
}

// Release frees the registry's bus connection and the mixer backend
func (c *Controller) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mixer != nil {
		if err := c.mixer.Release(); err != nil {
			c.logger.Warnw("Failed to release mixer", "error", err)
		}
	}

	return c.registry.Release()
}
