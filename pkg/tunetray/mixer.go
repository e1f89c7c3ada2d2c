package tunetray

import (
	"bufio"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/tunetray/tunetray/pkg/tunetray/util"
	"go.uber.org/zap"
)

// SinkInput is one audio output stream tracked by the system audio server,
// matched to a media session by fuzzy name comparison
type SinkInput struct {
	Index           uint32
	ApplicationName string
	Volume          float64
}

// Mixer abstracts the audio server's per-stream volume plane. It is the
// fallback control path for sessions whose native volume interface is
// missing or unreliable (browsers, mostly).
type Mixer interface {
	// Refresh rebuilds the stream list wholesale from the audio server
	Refresh() error

	// FindByName locates a stream by case-insensitive substring match in
	// either direction (stream name contains pattern, or vice versa)
	FindByName(pattern string) (SinkInput, bool)

	// SetVolume sets a stream's volume, clamped to [0.0, 1.5]
	SetVolume(index uint32, volume float64) error

	// Release frees any resources held by the mixer backend
	Release() error
}

// mixerMaxVolume is the upper write clamp (150%)
const mixerMaxVolume = 1.5

// nameMatches implements the fuzzy identity-to-stream comparison shared by
// both mixer backends
func nameMatches(applicationName, pattern string) bool {
	appLower := strings.ToLower(applicationName)
	patternLower := strings.ToLower(pattern)
	return strings.Contains(appLower, patternLower) || strings.Contains(patternLower, appLower)
}

// commandRunner abstracts subprocess invocation for tests
type commandRunner interface {
	Run(name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

const (
	pactlBinary = "pactl"

	recordStartMarker = "Sink Input #"
	appNameMarker     = "application.name = "
	volumeMarker      = "Volume:"

	// substituted when a record's volume line is missing or malformed
	defaultStreamVolume = 1.0
)

// CLIMixer wraps the pactl command-line tool: a text listing for reads and a
// set-volume subcommand for writes
type CLIMixer struct {
	logger *zap.SugaredLogger
	runner commandRunner

	sinkInputs map[uint32]SinkInput
}

// NewCLIMixer creates a pactl-backed mixer adapter
func NewCLIMixer(logger *zap.SugaredLogger) *CLIMixer {
	m := &CLIMixer{
		logger:     logger.Named("mixer"),
		runner:     execRunner{},
		sinkInputs: make(map[uint32]SinkInput),
	}

	m.logger.Debug("Created CLI mixer instance")

	return m
}

// Refresh invokes `pactl list sink-inputs` and rebuilds the stream map from
// its output. Individual malformed fields fall back to defaults; a failed
// invocation fails the whole refresh and leaves the previous map in place.
func (m *CLIMixer) Refresh() error {
	out, err := m.runner.Run(pactlBinary, "list", "sink-inputs")
	if err != nil {
		m.logger.Warnw("Failed to list sink inputs", "error", err)
		return fmt.Errorf("list sink inputs: %w", err)
	}

	m.sinkInputs = parseSinkInputs(out)

	m.logger.Debugw("Refreshed sink inputs", "count", len(m.sinkInputs))

	return nil
}

// parseSinkInputs walks the listing line by line with a tiny state machine:
// a record-start marker opens a new stream entry, and the name/volume
// markers fill in the current one
func parseSinkInputs(out []byte) map[uint32]SinkInput {
	sinkInputs := make(map[uint32]SinkInput)

	var (
		inRecord      bool
		currentIndex  uint32
		currentName   string
		currentVolume = defaultStreamVolume
	)

	flush := func() {
		if !inRecord {
			return
		}
		sinkInputs[currentIndex] = SinkInput{
			Index:           currentIndex,
			ApplicationName: currentName,
			Volume:          currentVolume,
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, recordStartMarker):
			flush()

			inRecord = false
			currentName = ""
			currentVolume = defaultStreamVolume

			indexStr := strings.TrimPrefix(line, recordStartMarker)
			if index, err := strconv.ParseUint(strings.TrimSpace(indexStr), 10, 32); err == nil {
				currentIndex = uint32(index)
				inRecord = true
			}

		case inRecord && strings.HasPrefix(line, appNameMarker):
			name := strings.TrimPrefix(line, appNameMarker)
			currentName = strings.Trim(name, `"`)

		case inRecord && strings.HasPrefix(line, volumeMarker):
			// e.g. `Volume: front-left: 65536 / 100% / 0.00 dB, ...`
			currentVolume = parseVolumePercent(line)
		}
	}

	flush()

	return sinkInputs
}

// parseVolumePercent extracts the first percentage from a volume line,
// returning the default when none parses
func parseVolumePercent(line string) float64 {
	percentPos := strings.Index(line, "%")
	if percentPos < 0 {
		return defaultStreamVolume
	}

	beforePercent := line[:percentPos]
	lastSpace := strings.LastIndex(beforePercent, " ")
	if lastSpace < 0 {
		return defaultStreamVolume
	}

	percent, err := strconv.ParseFloat(strings.TrimSpace(beforePercent[lastSpace+1:]), 64)
	if err != nil {
		return defaultStreamVolume
	}

	return percent / 100.0
}

// FindByName scans streams in ascending index order so matches are stable
// across refreshes
func (m *CLIMixer) FindByName(pattern string) (SinkInput, bool) {
	indices := make([]uint32, 0, len(m.sinkInputs))
	for index := range m.sinkInputs {
		indices = append(indices, index)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	for _, index := range indices {
		sinkInput := m.sinkInputs[index]
		if nameMatches(sinkInput.ApplicationName, pattern) {
			return sinkInput, true
		}
	}

	return SinkInput{}, false
}

// SetVolume clamps the target to [0, 1.5] and issues the pactl set command
func (m *CLIMixer) SetVolume(index uint32, volume float64) error {
	clamped := util.Clamp(volume, 0, mixerMaxVolume)
	percent := uint32(clamped * 100)

	_, err := m.runner.Run(pactlBinary,
		"set-sink-input-volume",
		strconv.FormatUint(uint64(index), 10),
		fmt.Sprintf("%d%%", percent),
	)
	if err != nil {
		m.logger.Warnw("Failed to set sink input volume",
			"index", index,
			"percent", percent,
			"error", err)
		return fmt.Errorf("set sink input volume: %w", err)
	}

	m.logger.Debugw("Set sink input volume", "index", index, "percent", percent)

	return nil
}

// Release is a no-op for the subprocess-based adapter
func (m *CLIMixer) Release() error {
	return nil
}
