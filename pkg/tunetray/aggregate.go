package tunetray

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// firefoxIdentityMarker classifies sessions subject to dedup: one browser
// exposes one session per tab, all sharing an identity
const firefoxIdentityMarker = "firefox"

// Aggregator merges per-session snapshots into the ordered display list
type Aggregator struct {
	logger    *zap.SugaredLogger
	extractor *Extractor
}

// NewAggregator creates an aggregator over the given extractor
func NewAggregator(logger *zap.SugaredLogger, extractor *Extractor) *Aggregator {
	return &Aggregator{
		logger:    logger.Named("aggregate"),
		extractor: extractor,
	}
}

// Aggregate extracts info for every session and applies the dedup and
// ordering policy. Sessions must arrive ordered by bus identifier; that
// order is the deterministic tie-break for equal-status duplicates.
func (a *Aggregator) Aggregate(sessions []*SessionHandle) []PlayerInfo {
	infos := make([]PlayerInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, a.extractor.Extract(session))
	}

	return dedupAndSort(infos)
}

// dedupAndSort collapses all firefox-identified entries down to the single
// most relevant one (Playing > Paused > Stopped, ties by input order), then
// sorts the combined list by case-insensitive identity ascending. That final
// sort is the only ordering guarantee exposed to the display layer.
func dedupAndSort(infos []PlayerInfo) []PlayerInfo {
	players := make([]PlayerInfo, 0, len(infos))
	var firefox []PlayerInfo

	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Identity), firefoxIdentityMarker) {
			firefox = append(firefox, info)
		} else {
			players = append(players, info)
		}
	}

	if len(firefox) > 0 {
		sort.SliceStable(firefox, func(i, j int) bool {
			return statusPriority(firefox[i].Status) < statusPriority(firefox[j].Status)
		})
		players = append(players, firefox[0])
	}

	sort.SliceStable(players, func(i, j int) bool {
		return strings.ToLower(players[i].Identity) < strings.ToLower(players[j].Identity)
	})

	return players
}
