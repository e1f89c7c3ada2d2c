package tunetray

import (
	"fmt"
	"net"
	"sort"

	"github.com/jfreymuth/pulse/proto"
	"github.com/tunetray/tunetray/pkg/tunetray/util"
	"go.uber.org/zap"
)

// normal PulseAudio volume (100%)
const pulseFullVolume = 0x10000

// PulseMixer talks the native PulseAudio protocol instead of shelling out
// to pactl. Same adapter contract, fewer subprocesses per tick. Selected
// with the `mixer_backend: native` config key.
type PulseMixer struct {
	logger *zap.SugaredLogger

	client *proto.Client
	conn   net.Conn

	sinkInputs map[uint32]pulseSinkInput
}

type pulseSinkInput struct {
	SinkInput
	channels byte
}

// NewPulseMixer establishes a native PulseAudio connection
func NewPulseMixer(logger *zap.SugaredLogger) (*PulseMixer, error) {
	logger = logger.Named("mixer")

	client, conn, err := proto.Connect("")
	if err != nil {
		logger.Warnw("Failed to establish PulseAudio connection", "error", err)
		return nil, fmt.Errorf("establish PulseAudio connection: %w", err)
	}

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString("tunetray"),
		},
	}
	reply := proto.SetClientNameReply{}

	if err := client.Request(&request, &reply); err != nil {
		return nil, err
	}

	m := &PulseMixer{
		logger:     logger,
		client:     client,
		conn:       conn,
		sinkInputs: make(map[uint32]pulseSinkInput),
	}

	m.logger.Debug("Created native mixer instance")

	return m, nil
}

// Refresh rebuilds the stream map from a sink-input list request
func (m *PulseMixer) Refresh() error {
	request := proto.GetSinkInputInfoList{}
	reply := proto.GetSinkInputInfoListReply{}

	if err := m.client.Request(&request, &reply); err != nil {
		m.logger.Warnw("Failed to get sink input list", "error", err)
		return fmt.Errorf("get sink input list: %w", err)
	}

	sinkInputs := make(map[uint32]pulseSinkInput, len(reply))

	for _, info := range reply {
		if info == nil {
			continue
		}

		name := ""
		if prop, ok := info.Properties["application.name"]; ok {
			name = prop.String()
		} else if prop, ok := info.Properties["application.process.binary"]; ok {
			name = prop.String()
		}

		sinkInputs[info.SinkInputIndex] = pulseSinkInput{
			SinkInput: SinkInput{
				Index:           info.SinkInputIndex,
				ApplicationName: name,
				Volume:          parseChannelVolumes(info.ChannelVolumes),
			},
			channels: info.Channels,
		}
	}

	m.sinkInputs = sinkInputs

	m.logger.Debugw("Refreshed sink inputs", "count", len(m.sinkInputs))

	return nil
}

// FindByName scans streams in ascending index order, same contract as the
// CLI adapter
func (m *PulseMixer) FindByName(pattern string) (SinkInput, bool) {
	indices := make([]uint32, 0, len(m.sinkInputs))
	for index := range m.sinkInputs {
		indices = append(indices, index)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	for _, index := range indices {
		sinkInput := m.sinkInputs[index]
		if nameMatches(sinkInput.ApplicationName, pattern) {
			return sinkInput.SinkInput, true
		}
	}

	return SinkInput{}, false
}

// SetVolume clamps the target to [0, 1.5] and issues a native set request
func (m *PulseMixer) SetVolume(index uint32, volume float64) error {
	clamped := util.Clamp(volume, 0, mixerMaxVolume)

	channels := byte(2)
	if sinkInput, ok := m.sinkInputs[index]; ok {
		channels = sinkInput.channels
	}

	request := proto.SetSinkInputVolume{
		SinkInputIndex: index,
		ChannelVolumes: createChannelVolumes(channels, clamped),
	}

	if err := m.client.Request(&request, nil); err != nil {
		m.logger.Warnw("Failed to set sink input volume",
			"index", index,
			"volume", fmt.Sprintf("%.2f", clamped),
			"error", err)
		return fmt.Errorf("set sink input volume: %w", err)
	}

	m.logger.Debugw("Set sink input volume", "index", index, "volume", fmt.Sprintf("%.2f", clamped))

	return nil
}

// Release closes the PulseAudio connection
func (m *PulseMixer) Release() error {
	if err := m.conn.Close(); err != nil {
		m.logger.Warnw("Failed to close PulseAudio connection", "error", err)
		return fmt.Errorf("close PulseAudio connection: %w", err)
	}

	m.logger.Debug("Released native mixer instance")

	return nil
}

func createChannelVolumes(channels byte, volume float64) []uint32 {
	volumes := make([]uint32, channels)

	for i := range volumes {
		volumes[i] = uint32(volume * pulseFullVolume)
	}

	return volumes
}

func parseChannelVolumes(volumes []uint32) float64 {
	if len(volumes) == 0 {
		return 0
	}

	var level uint32
	for _, volume := range volumes {
		level += volume
	}

	return float64(level) / float64(len(volumes)) / float64(pulseFullVolume)
}
