// ABOUTME: Resolves the desired track from beacon proximity and points
// ABOUTME: Ranks candidates, applies hysteresis, and falls back to default
package selector

import (
	"context"
	"math"
	"sort"

	"github.com/Izu-lab/tsukimi-node/internal/assets"
	"github.com/Izu-lab/tsukimi-node/internal/fabric"
	"github.com/sirupsen/logrus"
)

const (
	// RSSIThreshold is the minimum RSSI a candidate must exceed to be
	// considered for selection.
	RSSIThreshold int16 = -70

	// HysteresisMargin is how much a new candidate must beat the
	// current selection by before a switch occurs.
	HysteresisMargin int16 = 3
)

type candidate struct {
	address string
	rssi    int16
	primary int32
}

// Selector resolves the currently-desired track for the audio engine
// (spec.md §4.4) and fires proximity interactions along the way.
type Selector struct {
	fab         *fabric.Fabric
	table       *Table
	interaction *interactionTracker
	log         *logrus.Logger

	currentAddress string
	hasCurrent     bool
}

// New constructs a Selector wired to fab. incrementHost is the host the
// interaction tracker sends its side-channel increment POSTs to.
func New(fab *fabric.Fabric, incrementHost string, log *logrus.Logger) *Selector {
	if log == nil {
		log = logrus.New()
	}
	return &Selector{
		fab:         fab,
		table:       NewTable(),
		interaction: newInteractionTracker(fab, incrementHost, log),
		log:         log,
	}
}

// Run consumes the observation fan-out, maintaining the device table
// and detecting proximity crossings, until ctx is cancelled. Resolve
// may be called concurrently from the audio engine's thread.
func (s *Selector) Run(ctx context.Context) {
	ch, cancel := s.fab.ObservationsFanout.Subscribe(fabric.ChannelCapacity)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case obs, ok := <-ch:
			if !ok {
				return
			}
			s.table.MaybeSweep(obs.ObservedAt)
			s.interaction.observe(obs)
			s.table.Insert(obs.Address, obs.RSSI, obs.ObservedAt)
		}
	}
}

// Resolve returns the asset name the audio engine should currently be
// playing: the ranked, hysteresis-gated candidate if one qualifies,
// otherwise the default track (spec.md §4.4).
func (s *Selector) Resolve() string {
	soundMap := s.fab.State.SoundMapSnapshot()
	self, _ := s.fab.State.SelfIdentity()
	points := s.fab.State.Points()

	candidates := s.buildCandidates(soundMap, self, points)
	if len(candidates) > 0 {
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].primary != candidates[j].primary {
				return candidates[i].primary > candidates[j].primary
			}
			return candidates[i].rssi > candidates[j].rssi
		})

		top := candidates[0]
		currentRSSI := s.currentRSSIOrMin()
		if !s.hasCurrent || top.rssi > currentRSSI+HysteresisMargin {
			s.currentAddress = top.address
			s.hasCurrent = true
		}
	}

	if s.hasCurrent {
		if rssi, ok := s.table.RSSI(s.currentAddress); ok && rssi > RSSIThreshold {
			if asset, ok := soundMap[s.currentAddress]; ok {
				return asset
			}
		}
	}

	return assets.DefaultTrackName(points)
}

func (s *Selector) buildCandidates(soundMap map[string]string, self string, points int32) []candidate {
	var out []candidate
	for address := range soundMap {
		rssi, ok := s.table.RSSI(address)
		if !ok || rssi <= RSSIThreshold {
			continue
		}
		var primary int32
		if self != "" && address == self {
			primary = points
		}
		out = append(out, candidate{address: address, rssi: rssi, primary: primary})
	}
	return out
}

// CurrentRSSI returns the live RSSI of whichever address Resolve last
// selected. Only meaningful when called from the same goroutine that
// calls Resolve, since both read currentAddress/hasCurrent unsynchronized.
func (s *Selector) CurrentRSSI() (int16, bool) {
	if !s.hasCurrent {
		return 0, false
	}
	return s.table.RSSI(s.currentAddress)
}

func (s *Selector) currentRSSIOrMin() int16 {
	if !s.hasCurrent {
		return math.MinInt16
	}
	if rssi, ok := s.table.RSSI(s.currentAddress); ok {
		return rssi
	}
	return math.MinInt16
}
