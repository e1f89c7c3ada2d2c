package tunetray

import (
	"fmt"

	"go.uber.org/zap"
)

// VolumeOutcome reports which control plane resolved a volume write
type VolumeOutcome int

const (
	// VolumeNativeOK means the session's native volume call succeeded
	VolumeNativeOK VolumeOutcome = iota

	// VolumeFallbackOK means the native call failed and a matching mixer
	// stream took the write instead
	VolumeFallbackOK

	// VolumeFallbackMiss means neither plane could take the write; this is
	// not an error, the operation is a silent no-op
	VolumeFallbackMiss
)

func (o VolumeOutcome) String() string {
	switch o {
	case VolumeNativeOK:
		return "native"
	case VolumeFallbackOK:
		return "fallback"
	default:
		return "miss"
	}
}

// volumeSession is the slice of SessionHandle the resolver needs
type volumeSession interface {
	Identity() string
	SetVolume(v float64) error
}

// VolumeResolver implements the two-step write chain: try the session's
// native volume interface first; only when that call itself errors, fall
// through to the mixer by fuzzy identity match. There is no verification
// read-back on the native path. A session with no native support and no
// mixer match never surfaces an error to the caller.
type VolumeResolver struct {
	logger *zap.SugaredLogger
	mixer  Mixer
}

// NewVolumeResolver creates a resolver; mixer may be nil
func NewVolumeResolver(logger *zap.SugaredLogger, mixer Mixer) *VolumeResolver {
	return &VolumeResolver{
		logger: logger.Named("volume"),
		mixer:  mixer,
	}
}

// Set writes the target volume through the resolution chain
func (r *VolumeResolver) Set(s volumeSession, target float64) (VolumeOutcome, error) {
	if err := s.SetVolume(target); err == nil {
		return VolumeNativeOK, nil
	} else {
		r.logger.Debugw("Native volume set failed, trying mixer fallback",
			"identity", s.Identity(), "error", err)
	}

	if r.mixer == nil {
		return VolumeFallbackMiss, nil
	}

	// the stream list may be stale; rebuild before matching. A failed
	// refresh still falls through to matching against the previous list.
	if err := r.mixer.Refresh(); err != nil {
		r.logger.Warnw("Mixer refresh failed during volume fallback", "error", err)
	}

	sinkInput, ok := r.mixer.FindByName(s.Identity())
	if !ok {
		r.logger.Debugw("No mixer stream matches session, volume set is a no-op",
			"identity", s.Identity())
		return VolumeFallbackMiss, nil
	}

	if err := r.mixer.SetVolume(sinkInput.Index, target); err != nil {
		return VolumeFallbackMiss, fmt.Errorf("mixer volume fallback: %w", err)
	}

	return VolumeFallbackOK, nil
}
