// Package tunetray provides a panel applet that discovers media players on
// the session bus and exposes unified playback and volume controls for them.
package tunetray

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tunetray/tunetray/pkg/tunetray/util"
)

const (

	// when this is set to anything, tunetray won't use a tray icon
	envNoTray = "TUNETRAY_NO_TRAY_ICON"

	// fixed discovery interval; deliberately not configurable
	refreshInterval = time.Second
)

// TuneTray is the main entity managing access to all sub-components
type TuneTray struct {
	logger     *zap.SugaredLogger
	notifier   Notifier
	config     *CanonicalConfig
	controller *Controller

	stopChannel chan bool
	version     string
	verbose     bool
	stopping    sync.Once
}

// NewTuneTray creates a TuneTray instance
func NewTuneTray(logger *zap.SugaredLogger, verbose bool) (*TuneTray, error) {
	logger = logger.Named("tunetray")

	notifier, err := NewToastNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create ToastNotifier", "error", err)
		return nil, fmt.Errorf("create new ToastNotifier: %w", err)
	}

	config, err := NewConfig(logger, notifier)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	// Load keeps every key's default on failure, so the mixer backend key
	// is always usable afterwards
	if err := config.Load(); err != nil {
		logger.Errorw("Failed to load config", "error", err)
		return nil, fmt.Errorf("load config: %w", err)
	}

	bus, err := NewSessionBusClient()
	if err != nil {
		logger.Errorw("Failed to connect to session bus", "error", err)
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}

	// a missing audio server is not fatal: the applet runs with native
	// volume control only
	mixer := newMixer(logger, config.MixerBackend)

	t := &TuneTray{
		logger:      logger,
		notifier:    notifier,
		config:      config,
		controller:  NewController(logger, config, bus, mixer),
		stopChannel: make(chan bool),
		verbose:     verbose,
	}

	logger.Debug("Created tunetray instance")

	return t, nil
}

// newMixer picks the adapter backend from config, falling back to nil when
// the native backend can't connect
func newMixer(logger *zap.SugaredLogger, backend string) Mixer {
	if backend == MixerBackendNative {
		mixer, err := NewPulseMixer(logger)
		if err != nil {
			logger.Warnw("Failed to initialize native mixer, volume fallback disabled", "error", err)
			return nil
		}
		return mixer
	}

	return NewCLIMixer(logger)
}

// Initialize sets up components and starts to run in the background
func (t *TuneTray) Initialize() error {
	t.logger.Debug("Initializing")

	// populate the display before the first tick fires
	t.controller.Refresh()

	// decide whether to run with/without tray
	if _, noTraySet := os.LookupEnv(envNoTray); noTraySet {

		t.logger.Debugw("Running without tray icon", "reason", "envvar set")

		t.setupInterruptHandler()
		t.run()

	} else {
		t.setupInterruptHandler()
		t.initializeTray(t.run)
	}

	return nil
}

// SetVersion causes tunetray to add a version string to its tray menu if
// called before Initialize
func (t *TuneTray) SetVersion(version string) {
	t.version = version
}

// Verbose returns a boolean indicating whether tunetray is running in
// verbose mode
func (t *TuneTray) Verbose() bool {
	return t.verbose
}

// Controller exposes the applet's state and actions to the display layer
func (t *TuneTray) Controller() *Controller {
	return t.controller
}

func (t *TuneTray) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		t.logger.Debugw("Interrupted", "signal", signal)
		t.signalStop()
	}()
}

func (t *TuneTray) run() {
	t.logger.Info("Run loop starting")

	configReloads := t.config.SubscribeToChanges()
	go t.config.WatchConfigFileChanges()

	// the applet is single-threaded by design: discovery ticks, art fetch
	// completions and stop all arrive in this one select loop. Within a
	// tick, registry refresh strictly precedes extraction, which strictly
	// precedes aggregation.
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChannel:
			t.logger.Debug("Stop channel signaled, terminating")

			if err := t.stop(); err != nil {
				t.logger.Warnw("Failed to stop tunetray", "error", err)
				os.Exit(1)
			} else {
				os.Exit(0)
			}

		case <-ticker.C:
			t.controller.Refresh()

		case <-configReloads:
			// apply edited filters immediately instead of waiting a tick
			t.logger.Debug("Config reloaded, refreshing")
			t.controller.Refresh()

		case result := <-t.controller.ArtResults():
			t.controller.HandleArtResult(result)
		}
	}
}

func (t *TuneTray) signalStop() {
	t.stopping.Do(func() {
		t.logger.Debug("Signalling stop channel")
		select {
		case t.stopChannel <- true:
		default:
		}
	})
}

func (t *TuneTray) stop() error {
	t.logger.Info("Stopping")

	t.config.StopWatchingConfigFile()

	if err := t.controller.Release(); err != nil {
		t.logger.Errorw("Failed to release controller", "error", err)
		return fmt.Errorf("release controller: %w", err)
	}

	t.stopTray()

	// attempt to sync on exit - this won't necessarily work but can't harm
	t.logger.Sync()

	return nil
}
