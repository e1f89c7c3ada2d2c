package tunetray

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/tunetray/tunetray/pkg/tunetray/icon"
)

// selection submenu slot count; discovered players beyond this stay reachable
// through the selected_player config key
const maxPlayerMenuSlots = 8

// playerMenuSlot is one reusable entry in the selection submenu. systray
// menus can't remove items, so a fixed pool is resized by hiding and
// retitling slots as the discovered set changes.
type playerMenuSlot struct {
	item *systray.MenuItem

	mu       sync.Mutex
	identity string
}

func (s *playerMenuSlot) setIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
}

func (s *playerMenuSlot) getIdentity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (t *TuneTray) initializeTray(onDone func()) {
	logger := t.logger.Named("tray")

	onReady := func() {
		logger.Debug("Tray instance ready")

		systray.SetTemplateIcon(icon.Logo, icon.Logo)
		systray.SetTitle("TuneTray")
		systray.SetTooltip("TuneTray")

		playPause := systray.AddMenuItem("Play / Pause", "Toggle playback on the current player")
		next := systray.AddMenuItem("Next", "Skip to the next track")
		previous := systray.AddMenuItem("Previous", "Skip to the previous track")

		systray.AddSeparator()

		selectMenu := systray.AddMenuItem("Select player", "Choose which player the controls drive")
		defaultItem := selectMenu.AddSubMenuItemCheckbox("Default (active player)",
			"Follow whichever player is currently playing", t.config.SelectedPlayer == "")

		slots := make([]*playerMenuSlot, maxPlayerMenuSlots)
		for i := range slots {
			item := selectMenu.AddSubMenuItemCheckbox("", "", false)
			item.Hide()
			slots[i] = &playerMenuSlot{item: item}
		}

		rediscover := systray.AddMenuItem("Re-discover players", "Manually re-scan the bus for media players")
		showAll := systray.AddMenuItemCheckbox("Show all players", "List every discovered player instead of just the active one", t.config.ShowAllPlayers)
		hideInactive := systray.AddMenuItemCheckbox("Hide inactive players", "Hide players that are stopped", t.config.HideInactivePlayers)

		if t.version != "" {
			systray.AddSeparator()
			versionInfo := systray.AddMenuItem(t.version, "")
			versionInfo.Disable()
		}

		systray.AddSeparator()
		quit := systray.AddMenuItem("Quit", "Stop tunetray and quit")

		// one goroutine per selection slot; the slot pool is fixed, so these
		// live for the lifetime of the tray
		for _, slot := range slots {
			slot := slot
			go func() {
				for range slot.item.ClickedCh {
					if identity := slot.getIdentity(); identity != "" {
						logger.Infow("Player selected from tray", "identity", identity)
						t.controller.SelectPlayer(identity)
					}
				}
			}()
		}

		// keep the selection submenu and tooltip in step with discovery
		go func() {
			ticker := time.NewTicker(refreshInterval)
			defer ticker.Stop()

			for range ticker.C {
				t.syncSelectionMenu(defaultItem, slots)
				t.syncTooltip()
			}
		}()

		t.syncSelectionMenu(defaultItem, slots)
		t.syncTooltip()

		// wait on things to happen
		go func() {
			for {
				select {

				case <-quit.ClickedCh:
					logger.Info("Quit menu item clicked, stopping")

					t.signalStop()

				case <-playPause.ClickedCh:
					current := t.controller.Current()
					if err := t.controller.PlayPause(current.BusName); err != nil {
						logger.Warnw("Failed to toggle playback", "error", err)
					}

				case <-next.ClickedCh:
					current := t.controller.Current()
					if err := t.controller.Next(current.BusName); err != nil {
						logger.Warnw("Failed to skip to next track", "error", err)
					}

				case <-previous.ClickedCh:
					current := t.controller.Current()
					if err := t.controller.Previous(current.BusName); err != nil {
						logger.Warnw("Failed to skip to previous track", "error", err)
					}

				case <-defaultItem.ClickedCh:
					logger.Info("Default player selected from tray")

					t.controller.SelectDefault()

				case <-rediscover.ClickedCh:
					logger.Info("Re-discover menu item clicked, refreshing")

					t.controller.Refresh()

				case <-showAll.ClickedCh:
					if showAll.Checked() {
						showAll.Uncheck()
						t.config.SetShowAllPlayers(false)
					} else {
						showAll.Check()
						t.config.SetShowAllPlayers(true)
					}

				case <-hideInactive.ClickedCh:
					if hideInactive.Checked() {
						hideInactive.Uncheck()
						t.config.SetHideInactivePlayers(false)
					} else {
						hideInactive.Check()
						t.config.SetHideInactivePlayers(true)
					}
				}
			}
		}()

		// actually start the main runtime
		onDone()
	}

	onExit := func() {
		logger.Debug("Tray exited")
	}

	// start the tray icon
	logger.Debug("Running in tray")
	systray.Run(onReady, onExit)
}

// syncSelectionMenu retitles and shows/hides the slot pool to mirror the
// currently discovered players, and moves the checkmark to the selection
func (t *TuneTray) syncSelectionMenu(defaultItem *systray.MenuItem, slots []*playerMenuSlot) {
	players := t.controller.DiscoveredPlayers()
	selected := t.config.SelectedPlayer

	if selected == "" {
		defaultItem.Check()
	} else {
		defaultItem.Uncheck()
	}

	for i, slot := range slots {
		if i >= len(players) {
			slot.setIdentity("")
			slot.item.Hide()
			continue
		}

		identity := players[i].Identity
		slot.setIdentity(identity)
		slot.item.SetTitle(identity)
		slot.item.Show()

		if identity == selected {
			slot.item.Check()
		} else {
			slot.item.Uncheck()
		}
	}
}

// syncTooltip renders the display snapshot into the tray tooltip: one line
// per player with show-all on, just the current player otherwise
func (t *TuneTray) syncTooltip() {
	display := t.controller.Display()

	lines := make([]string, 0, len(display))
	for _, info := range display {
		line := info.Title
		if info.Artist != "" {
			line = fmt.Sprintf("%s - %s", info.Title, info.Artist)
		}
		if info.Identity != "" {
			line = fmt.Sprintf("%s: %s", info.Identity, line)
		}
		lines = append(lines, line)
	}

	systray.SetTooltip(strings.Join(lines, "\n"))
}

func (t *TuneTray) stopTray() {
	t.logger.Debug("Quitting tray")
	systray.Quit()
}
