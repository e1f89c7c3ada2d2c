package tunetray

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/tunetray/tunetray/pkg/tunetray/mocks"
)

const testWellKnownName = "org.mpris.MediaPlayer2.spotify"

func newTestSession(t *testing.T, bus *mocks.MockBusClient) *SessionHandle {
	t.Helper()
	return newSessionHandle(zap.NewNop().Sugar(), bus, testWellKnownName)
}

func TestExtractDefaultsWhenEveryQueryFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := mocks.NewMockBusClient(ctrl)

	bus.EXPECT().
		GetProperty(testWellKnownName, mprisObjectPath, gomock.Any()).
		Return(dbus.Variant{}, errors.New("no reply")).
		AnyTimes()

	session := newTestSession(t, bus)
	info := NewExtractor(zap.NewNop().Sugar(), nil).Extract(session)

	if info.Title != unknownTitle {
		t.Errorf("expected default title %q, got %q", unknownTitle, info.Title)
	}
	if info.Artist != unknownArtist {
		t.Errorf("expected default artist %q, got %q", unknownArtist, info.Artist)
	}
	if info.Status != StatusStopped {
		t.Errorf("expected Stopped, got %s", info.Status)
	}
	if info.Volume != defaultSessionVolume {
		t.Errorf("expected default volume %.2f, got %.2f", defaultSessionVolume, info.Volume)
	}
	if !info.CanControlVolume {
		t.Error("volume control must always be reported as available")
	}
	if info.BusName != "spotify" {
		t.Errorf("expected bus identifier spotify, got %q", info.BusName)
	}
	// identity query failed too, so it falls back to the bus identifier
	if info.Identity != "spotify" {
		t.Errorf("expected identity fallback to bus identifier, got %q", info.Identity)
	}
}

func TestExtractFullMetadata(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := mocks.NewMockBusClient(ctrl)

	metadata := map[string]dbus.Variant{
		"xesam:title":  dbus.MakeVariant("Paranoid Android"),
		"xesam:artist": dbus.MakeVariant([]string{"Radiohead"}),
		"mpris:artUrl": dbus.MakeVariant("https://example.com/ok-computer.jpg"),
	}

	bus.EXPECT().
		GetProperty(testWellKnownName, mprisObjectPath, identityProp).
		Return(dbus.MakeVariant("Spotify"), nil).
		AnyTimes()
	bus.EXPECT().
		GetProperty(testWellKnownName, mprisObjectPath, metadataProp).
		Return(dbus.MakeVariant(metadata), nil)
	bus.EXPECT().
		GetProperty(testWellKnownName, mprisObjectPath, playbackStatusProp).
		Return(dbus.MakeVariant("Playing"), nil)
	bus.EXPECT().
		GetProperty(testWellKnownName, mprisObjectPath, volumeProp).
		Return(dbus.MakeVariant(0.8), nil)

	session := newTestSession(t, bus)
	info := NewExtractor(zap.NewNop().Sugar(), nil).Extract(session)

	if info.Title != "Paranoid Android" {
		t.Errorf("unexpected title %q", info.Title)
	}
	if info.Artist != "Radiohead" {
		t.Errorf("unexpected artist %q", info.Artist)
	}
	if info.ArtURL != "https://example.com/ok-computer.jpg" {
		t.Errorf("unexpected art URL %q", info.ArtURL)
	}
	if info.Status != StatusPlaying {
		t.Errorf("unexpected status %s", info.Status)
	}
	if info.Volume != 0.8 {
		t.Errorf("unexpected volume %.2f", info.Volume)
	}
	if info.Identity != "Spotify" {
		t.Errorf("unexpected identity %q", info.Identity)
	}
}

func TestExtractJoinsMultipleArtists(t *testing.T) {
	info := PlayerInfo{Title: unknownTitle, Artist: unknownArtist}
	applyMetadata(&info, map[string]dbus.Variant{
		"xesam:artist": dbus.MakeVariant([]string{"Daft Punk", "Pharrell Williams"}),
	})

	if info.Artist != "Daft Punk, Pharrell Williams" {
		t.Errorf("expected joined artists, got %q", info.Artist)
	}
}

func TestExtractAcceptsPlainStringArtist(t *testing.T) {
	info := PlayerInfo{Artist: unknownArtist}
	applyMetadata(&info, map[string]dbus.Variant{
		"xesam:artist": dbus.MakeVariant("CHVRCHES"),
	})

	if info.Artist != "CHVRCHES" {
		t.Errorf("expected plain string artist to be accepted, got %q", info.Artist)
	}
}

func TestExtractEmptyMetadataFieldsKeepDefaults(t *testing.T) {
	info := PlayerInfo{Title: unknownTitle, Artist: unknownArtist}
	applyMetadata(&info, map[string]dbus.Variant{
		"xesam:title":  dbus.MakeVariant(""),
		"xesam:artist": dbus.MakeVariant([]string{}),
	})

	if info.Title != unknownTitle {
		t.Errorf("empty title should keep default, got %q", info.Title)
	}
	if info.Artist != unknownArtist {
		t.Errorf("empty artist list should keep default, got %q", info.Artist)
	}
}

func TestExtractNativeVolumeIsClamped(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := mocks.NewMockBusClient(ctrl)

	bus.EXPECT().
		GetProperty(testWellKnownName, mprisObjectPath, identityProp).
		Return(dbus.MakeVariant("Spotify"), nil).
		AnyTimes()
	bus.EXPECT().
		GetProperty(testWellKnownName, mprisObjectPath, metadataProp).
		Return(dbus.Variant{}, errors.New("no metadata"))
	bus.EXPECT().
		GetProperty(testWellKnownName, mprisObjectPath, playbackStatusProp).
		Return(dbus.MakeVariant("Paused"), nil)
	bus.EXPECT().
		GetProperty(testWellKnownName, mprisObjectPath, volumeProp).
		Return(dbus.MakeVariant(1.7), nil)

	session := newTestSession(t, bus)
	info := NewExtractor(zap.NewNop().Sugar(), nil).Extract(session)

	if info.Volume != 1.0 {
		t.Errorf("expected native volume clamped to 1.0, got %.2f", info.Volume)
	}
}

func TestExtractMixerVolumeOverridesNative(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := mocks.NewMockBusClient(ctrl)

	bus.EXPECT().
		GetProperty(testWellKnownName, mprisObjectPath, identityProp).
		Return(dbus.MakeVariant("Firefox"), nil).
		AnyTimes()
	bus.EXPECT().
		GetProperty(testWellKnownName, mprisObjectPath, metadataProp).
		Return(dbus.Variant{}, errors.New("no metadata"))
	bus.EXPECT().
		GetProperty(testWellKnownName, mprisObjectPath, playbackStatusProp).
		Return(dbus.MakeVariant("Playing"), nil)
	bus.EXPECT().
		GetProperty(testWellKnownName, mprisObjectPath, volumeProp).
		Return(dbus.MakeVariant(1.0), nil)

	mixer := &fakeMixer{
		hasMatch: true,
		match:    SinkInput{Index: 42, ApplicationName: "Firefox", Volume: 1.3},
	}

	session := newTestSession(t, bus)
	info := NewExtractor(zap.NewNop().Sugar(), mixer).Extract(session)

	// the mixer is the source of truth whenever a stream matches, even when
	// the native read succeeded
	if info.Volume != 1.3 {
		t.Errorf("expected mixer volume 1.3 to win, got %.2f", info.Volume)
	}
}

func TestDefaultPlayerInfoPlaceholder(t *testing.T) {
	info := defaultPlayerInfo()

	if info.Title != placeholderTitle {
		t.Errorf("expected placeholder title %q, got %q", placeholderTitle, info.Title)
	}
	if info.Volume != defaultSessionVolume {
		t.Errorf("expected default volume %.2f, got %.2f", defaultSessionVolume, info.Volume)
	}
	if !info.CanControlVolume {
		t.Error("placeholder must still report volume control as available")
	}
}
