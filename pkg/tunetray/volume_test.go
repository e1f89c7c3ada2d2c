package tunetray

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

type fakeVolumeSession struct {
	identity string
	setErr   error
	written  []float64
}

func (s *fakeVolumeSession) Identity() string { return s.identity }

func (s *fakeVolumeSession) SetVolume(v float64) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.written = append(s.written, v)
	return nil
}

type volumeWrite struct {
	index  uint32
	volume float64
}

type fakeMixer struct {
	refreshErr error
	refreshed  int

	match    SinkInput
	hasMatch bool

	setErr    error
	setCalls  []volumeWrite
	released  bool
}

func (m *fakeMixer) Refresh() error {
	m.refreshed++
	return m.refreshErr
}

func (m *fakeMixer) FindByName(pattern string) (SinkInput, bool) {
	return m.match, m.hasMatch
}

func (m *fakeMixer) SetVolume(index uint32, volume float64) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.setCalls = append(m.setCalls, volumeWrite{index: index, volume: volume})
	return nil
}

func (m *fakeMixer) Release() error {
	m.released = true
	return nil
}

func newTestResolver(mixer Mixer) *VolumeResolver {
	return NewVolumeResolver(zap.NewNop().Sugar(), mixer)
}

func TestVolumeResolver_NativeSuccessStopsChain(t *testing.T) {
	mixer := &fakeMixer{hasMatch: true, match: SinkInput{Index: 3}}
	session := &fakeVolumeSession{identity: "Spotify"}

	outcome, err := newTestResolver(mixer).Set(session, 0.7)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != VolumeNativeOK {
		t.Errorf("expected native outcome, got %s", outcome)
	}
	if mixer.refreshed != 0 || len(mixer.setCalls) != 0 {
		t.Error("mixer must not be touched when the native call succeeds")
	}
	if len(session.written) != 1 || session.written[0] != 0.7 {
		t.Errorf("expected one native write of 0.7, got %v", session.written)
	}
}

func TestVolumeResolver_FallsBackToMixerOnNativeError(t *testing.T) {
	mixer := &fakeMixer{hasMatch: true, match: SinkInput{Index: 11, ApplicationName: "Firefox"}}
	session := &fakeVolumeSession{identity: "Firefox", setErr: errors.New("not supported")}

	outcome, err := newTestResolver(mixer).Set(session, 0.4)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != VolumeFallbackOK {
		t.Errorf("expected fallback outcome, got %s", outcome)
	}
	if mixer.refreshed != 1 {
		t.Errorf("expected one mixer refresh before matching, got %d", mixer.refreshed)
	}
	if len(mixer.setCalls) != 1 || mixer.setCalls[0] != (volumeWrite{index: 11, volume: 0.4}) {
		t.Errorf("expected mixer write {11 0.4}, got %v", mixer.setCalls)
	}
}

func TestVolumeResolver_NoMatchIsSilentNoOp(t *testing.T) {
	tests := []struct {
		name  string
		mixer Mixer
	}{
		{"no mixer configured", nil},
		{"no matching stream", &fakeMixer{hasMatch: false}},
		{"refresh fails and no match", &fakeMixer{refreshErr: errors.New("tool missing")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeVolumeSession{identity: "Kodi", setErr: errors.New("no native volume")}

			outcome, err := newTestResolver(tt.mixer).Set(session, 0.9)

			if err != nil {
				t.Fatalf("silent no-op contract violated: %v", err)
			}
			if outcome != VolumeFallbackMiss {
				t.Errorf("expected miss outcome, got %s", outcome)
			}
		})
	}
}

func TestVolumeResolver_MixerWriteFailurePropagates(t *testing.T) {
	mixer := &fakeMixer{hasMatch: true, match: SinkInput{Index: 2}, setErr: errors.New("exit status 1")}
	session := &fakeVolumeSession{identity: "Firefox", setErr: errors.New("not supported")}

	if _, err := newTestResolver(mixer).Set(session, 0.5); err == nil {
		t.Fatal("expected mixer write failure to propagate")
	}
}
