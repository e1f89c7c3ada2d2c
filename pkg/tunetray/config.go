package tunetray

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/thoas/go-funk"
	"github.com/tunetray/tunetray/pkg/tunetray/util"
	"go.uber.org/zap"
)

// CanonicalConfig provides application-wide access to the persisted
// settings, write-through setters, and file watching. When the backing
// store can't be used the applet keeps running on in-memory defaults;
// persistence is simply disabled.
type CanonicalConfig struct {
	EnabledPlayers       []string
	AutoDetectNewPlayers bool
	SelectedPlayer       string
	ShowAllPlayers       bool
	HideInactivePlayers  bool
	MixerBackend         string

	logger   *zap.SugaredLogger
	notifier Notifier

	configDir  string
	persistent bool

	stopWatcherChannel chan bool
	reloadConsumers    []chan bool

	v *viper.Viper
}

const (
	configName = "config"
	configType = "yaml"

	configVersion = 1

	configKey_Version              = "version"
	configKey_EnabledPlayers       = "enabled_players"
	configKey_AutoDetectNewPlayers = "auto_detect_new_players"
	configKey_SelectedPlayer       = "selected_player"
	configKey_ShowAllPlayers       = "show_all_players"
	configKey_HideInactivePlayers  = "hide_inactive_players"
	configKey_MixerBackend         = "mixer_backend"

	// MixerBackendCLI selects the pactl subprocess adapter (default)
	MixerBackendCLI = "cli"
	// MixerBackendNative selects the in-process PulseAudio client
	MixerBackendNative = "native"
)

// NewConfig creates a config instance rooted at the user config directory
func NewConfig(logger *zap.SugaredLogger, notifier Notifier) (*CanonicalConfig, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}

	return newConfigAt(logger, notifier, filepath.Join(dir, "tunetray")), nil
}

func newConfigAt(logger *zap.SugaredLogger, notifier Notifier, configDir string) *CanonicalConfig {
	logger = logger.Named("config")

	cc := &CanonicalConfig{
		logger:             logger,
		notifier:           notifier,
		configDir:          configDir,
		stopWatcherChannel: make(chan bool),
		reloadConsumers:    []chan bool{},
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(configDir)

	v.SetDefault(configKey_Version, configVersion)
	v.SetDefault(configKey_EnabledPlayers, []string{})
	v.SetDefault(configKey_AutoDetectNewPlayers, true)
	v.SetDefault(configKey_SelectedPlayer, "")
	v.SetDefault(configKey_ShowAllPlayers, false)
	v.SetDefault(configKey_HideInactivePlayers, false)
	v.SetDefault(configKey_MixerBackend, MixerBackendCLI)

	cc.v = v

	logger.Debug("Created config instance")

	return cc
}

// Load reads the config file from disk, creating it with defaults on first
// run. Store unavailability is not fatal: the applet continues with
// in-memory defaults and setters stop persisting.
func (cc *CanonicalConfig) Load() error {
	configFilepath := filepath.Join(cc.configDir, configName+"."+configType)
	cc.logger.Debugw("Loading config", "path", configFilepath)

	if err := util.EnsureDirExists(cc.configDir); err != nil {
		cc.logger.Warnw("Config directory unavailable, persistence disabled", "error", err)
		cc.persistent = false
		cc.populateFromViper()
		return nil
	}

	if !util.FileExists(configFilepath) {
		if err := cc.v.WriteConfigAs(configFilepath); err != nil {
			cc.logger.Warnw("Failed to write initial config, persistence disabled", "error", err)
			cc.persistent = false
			cc.populateFromViper()
			return nil
		}
		cc.logger.Infow("Wrote initial config", "path", configFilepath)
	}

	if err := cc.v.ReadInConfig(); err != nil {
		cc.logger.Warnw("Failed to read config, continuing with defaults", "error", err)
		cc.notifier.Notify("Invalid configuration!",
			fmt.Sprintf("Please make sure %s is valid YAML.", configFilepath))
		cc.persistent = false
		cc.populateFromViper()
		return nil
	}

	cc.persistent = true
	cc.populateFromViper()

	cc.logger.Info("Loaded config successfully")
	cc.logger.Infow("Config values",
		"enabledPlayers", cc.EnabledPlayers,
		"autoDetectNewPlayers", cc.AutoDetectNewPlayers,
		"selectedPlayer", cc.SelectedPlayer,
		"showAllPlayers", cc.ShowAllPlayers,
		"hideInactivePlayers", cc.HideInactivePlayers,
		"mixerBackend", cc.MixerBackend,
	)

	return nil
}

func (cc *CanonicalConfig) populateFromViper() {
	cc.EnabledPlayers = cc.v.GetStringSlice(configKey_EnabledPlayers)
	sort.Strings(cc.EnabledPlayers)
	cc.AutoDetectNewPlayers = cc.v.GetBool(configKey_AutoDetectNewPlayers)
	cc.SelectedPlayer = cc.v.GetString(configKey_SelectedPlayer)
	cc.ShowAllPlayers = cc.v.GetBool(configKey_ShowAllPlayers)
	cc.HideInactivePlayers = cc.v.GetBool(configKey_HideInactivePlayers)
	cc.MixerBackend = cc.v.GetString(configKey_MixerBackend)

	cc.logger.Debug("Populated config fields from viper")
}

// persist writes the current viper state through to disk immediately
func (cc *CanonicalConfig) persist() {
	if !cc.persistent {
		return
	}

	if err := cc.v.WriteConfig(); err != nil {
		cc.logger.Warnw("Failed to persist config", "error", err)
	}
}

// PlayerEnabled reports whether an identity is in the enabled set. An empty
// set means nothing was ever enabled and every player is shown.
func (cc *CanonicalConfig) PlayerEnabled(identity string) bool {
	if len(cc.EnabledPlayers) == 0 {
		return true
	}
	return funk.ContainsString(cc.EnabledPlayers, identity)
}

// AddDiscoveredPlayer records a newly seen identity in the enabled set,
// honoring the auto-detect flag
func (cc *CanonicalConfig) AddDiscoveredPlayer(identity string) {
	if !cc.AutoDetectNewPlayers {
		return
	}
	if funk.ContainsString(cc.EnabledPlayers, identity) {
		return
	}

	cc.EnabledPlayers = append(cc.EnabledPlayers, identity)
	sort.Strings(cc.EnabledPlayers)
	cc.v.Set(configKey_EnabledPlayers, cc.EnabledPlayers)
	cc.persist()
}

// SetSelectedPlayer persists the identity chosen for single-player mode;
// empty clears the selection
func (cc *CanonicalConfig) SetSelectedPlayer(identity string) {
	cc.SelectedPlayer = identity
	cc.v.Set(configKey_SelectedPlayer, identity)
	cc.persist()
}

// SetAutoDetectNewPlayers persists the auto-detect flag
func (cc *CanonicalConfig) SetAutoDetectNewPlayers(autoDetect bool) {
	cc.AutoDetectNewPlayers = autoDetect
	cc.v.Set(configKey_AutoDetectNewPlayers, autoDetect)
	cc.persist()
}

// SetShowAllPlayers persists the show-all flag
func (cc *CanonicalConfig) SetShowAllPlayers(showAll bool) {
	cc.ShowAllPlayers = showAll
	cc.v.Set(configKey_ShowAllPlayers, showAll)
	cc.persist()
}

// SetHideInactivePlayers persists the hide-inactive flag
func (cc *CanonicalConfig) SetHideInactivePlayers(hideInactive bool) {
	cc.HideInactivePlayers = hideInactive
	cc.v.Set(configKey_HideInactivePlayers, hideInactive)
	cc.persist()
}

// SubscribeToChanges allows external components to receive updates when the
// config is reloaded from disk. The channel holds one pending notification;
// back-to-back reloads coalesce rather than queue.
func (cc *CanonicalConfig) SubscribeToChanges() chan bool {
	c := make(chan bool, 1)
	cc.reloadConsumers = append(cc.reloadConsumers, c)

	return c
}

// WatchConfigFileChanges starts watching the config file for out-of-band
// edits and reloads when they happen
func (cc *CanonicalConfig) WatchConfigFileChanges() {
	if !cc.persistent {
		cc.logger.Debug("Persistence disabled, not watching config file")
		<-cc.stopWatcherChannel
		return
	}

	cc.logger.Debugw("Starting to watch config file for changes", "dir", cc.configDir)

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)

	lastAttemptedReload := time.Now()

	cc.v.WatchConfig()
	cc.v.OnConfigChange(func(event fsnotify.Event) {
		if event.Op&fsnotify.Write == fsnotify.Write {
			now := time.Now()

			// many editors write a file twice; ignore the duplicate
			if lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {
				cc.logger.Debugw("Config file modified, attempting reload", "event", event)

				// let the editor flush the new contents to disk
				<-time.After(delayBetweenEventAndReload)

				cc.populateFromViper()
				cc.logger.Info("Reloaded config successfully")
				cc.onConfigReloaded()

				lastAttemptedReload = now
			}
		}
	})

	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopping config file watcher")
	cc.v.OnConfigChange(nil)
}

// StopWatchingConfigFile signals the filesystem watcher to stop
func (cc *CanonicalConfig) StopWatchingConfigFile() {
	cc.stopWatcherChannel <- true

	for _, ch := range cc.reloadConsumers {
		close(ch)
	}
	cc.reloadConsumers = nil
}

func (cc *CanonicalConfig) onConfigReloaded() {
	cc.logger.Debug("Notifying consumers about configuration reload")

	for _, consumer := range cc.reloadConsumers {
		select {
		case consumer <- true:
		default:
		}
	}
}
