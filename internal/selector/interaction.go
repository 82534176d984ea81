// ABOUTME: Detects proximity crossings into interactive place types
// ABOUTME: Fires a sound effect and an HTTP increment, cooldown-gated
package selector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Izu-lab/tsukimi-node/internal/assets"
	"github.com/Izu-lab/tsukimi-node/internal/fabric"
	"github.com/sirupsen/logrus"
)

const (
	// InteractionRSSIThreshold is the proximity-crossing edge.
	InteractionRSSIThreshold int16 = -45

	// InteractionCooldown bounds repeat firing per place_type.
	InteractionCooldown = 10 * time.Second

	httpPostTimeout = 5 * time.Second
)

// interactionTracker watches per-address RSSI for crossings into
// InteractionRSSIThreshold and fires the proximity SE + HTTP increment
// described in spec.md §4.4.
type interactionTracker struct {
	fab  *fabric.Fabric
	host string
	log  *logrus.Logger

	client *http.Client

	mu         sync.Mutex
	prevRSSI   map[string]int16
	cooldownAt map[string]time.Time
}

func newInteractionTracker(fab *fabric.Fabric, host string, log *logrus.Logger) *interactionTracker {
	return &interactionTracker{
		fab:        fab,
		host:       host,
		log:        log,
		client:     &http.Client{Timeout: httpPostTimeout},
		prevRSSI:   make(map[string]int16),
		cooldownAt: make(map[string]time.Time),
	}
}

// observe applies one DeviceObservation, firing a proximity interaction
// if this is a crossing into an interactive place_type outside its
// cooldown window.
func (it *interactionTracker) observe(obs fabric.DeviceObservation) {
	it.mu.Lock()
	prev, known := it.prevRSSI[obs.Address]
	it.prevRSSI[obs.Address] = obs.RSSI
	it.mu.Unlock()

	if !known || prev > InteractionRSSIThreshold || obs.RSSI <= InteractionRSSIThreshold {
		return
	}

	placeType, ok := it.fab.State.PlaceType(obs.Address)
	if !ok || !assets.IsInteractive(placeType) {
		return
	}

	if !it.enterCooldown(placeType, obs.ObservedAt) {
		return
	}

	se, _ := assets.InteractionSE(placeType)
	select {
	case it.fab.SEPlay <- fabric.SEPlayRequest{AssetName: se}:
	default:
		it.log.WithField("asset", se).Warn("selector: se_play channel full, dropping request")
	}

	self, _ := it.fab.State.SelfIdentity()
	go it.postIncrement(self, placeType)
}

// enterCooldown reports whether placeType is outside its cooldown
// window, starting a new window if so.
func (it *interactionTracker) enterCooldown(placeType string, now time.Time) bool {
	it.mu.Lock()
	defer it.mu.Unlock()

	if last, ok := it.cooldownAt[placeType]; ok && now.Sub(last) < InteractionCooldown {
		return false
	}
	it.cooldownAt[placeType] = now
	return true
}

// postIncrement fires the fire-and-forget HTTP side-channel POST
// (spec.md §6.3). Failures are logged and swallowed.
func (it *interactionTracker) postIncrement(selfIdentity, placeType string) {
	if it.host == "" || selfIdentity == "" {
		return
	}

	body, err := json.Marshal(struct {
		LocationType string `json:"location_type"`
	}{LocationType: placeType})
	if err != nil {
		it.log.WithError(err).Warn("selector: failed to encode increment body")
		return
	}

	url := fmt.Sprintf("https://%s/players/%s/increment", it.host, selfIdentity)
	ctx, cancel := context.WithTimeout(context.Background(), httpPostTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		it.log.WithError(err).Warn("selector: failed to build increment request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := it.client.Do(req)
	if err != nil {
		it.log.WithError(err).Warn("selector: increment POST failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		it.log.WithField("status", resp.StatusCode).Warn("selector: increment POST returned non-2xx")
	}
}
