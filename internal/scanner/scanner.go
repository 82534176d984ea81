// ABOUTME: Drives the local BLE central in perpetual passive discovery
// ABOUTME: Translates raw advertisements into deduplicated observations
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/Izu-lab/tsukimi-node/internal/fabric"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
)

// Scanner discovers BLE advertisements and emits deduplicated
// observations onto a Fabric's BTScan channel.
type Scanner struct {
	fab    *fabric.Fabric
	log    *logrus.Logger
	dedup  *dedupCache
	device ble.Device

	// selfAddress, when known, is reported by platformInit.
	selfAddress string
}

// New constructs a Scanner. platformInit (scanner_linux.go /
// scanner_other.go) supplies the adapter and, where available, its
// reported address.
func New(fab *fabric.Fabric, log *logrus.Logger) *Scanner {
	if log == nil {
		log = logrus.New()
	}
	return &Scanner{
		fab:   fab,
		log:   log,
		dedup: newDedupCache(),
	}
}

// Start obtains the first adapter and begins scanning. It blocks until
// ctx is cancelled or the adapter is lost. Failure to obtain an adapter
// is fatal-at-startup per spec.md §4.1/§7.
func (s *Scanner) Start(ctx context.Context) error {
	dev, selfAddr, err := platformInit(ctx, s.log)
	if err != nil {
		return fmt.Errorf("scanner: no BLE adapter available: %w", err)
	}
	s.device = dev
	s.selfAddress = selfAddr
	ble.SetDefaultDevice(dev)

	if selfAddr != "" {
		s.fab.State.SetSelfIdentity(selfAddr)
		s.log.WithField("address", selfAddr).Info("scanner: resolved local adapter address")
	}

	go s.runCacheSweeper(ctx)

	filter := func(adv ble.Advertisement) bool { return true }
	err = ble.Scan(ctx, true, s.handleAdvertisement, filter)
	if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return fmt.Errorf("scanner: scan terminated: %w", err)
	}
	return nil
}

// handleAdvertisement is the per-event callback from ble.Scan. Missing
// properties are dropped silently (spec.md §4.1 per-event transient).
func (s *Scanner) handleAdvertisement(adv ble.Advertisement) {
	if adv == nil {
		return
	}
	address := adv.Addr().String()
	if address == "" {
		return
	}

	// Mandatory pre-filter: only addresses known to SoundMap are ever
	// considered, and this must happen before expensive property reads
	// when cheaply possible.
	if !s.fab.State.SoundMapHas(address) {
		return
	}

	rssi := int16(adv.RSSI())
	now := time.Now()

	if !s.dedup.shouldEmit(address, rssi, now) {
		return
	}

	obs := fabric.DeviceObservation{
		Address:    address,
		RSSI:       rssi,
		ObservedAt: now,
	}

	select {
	case s.fab.BTScan <- obs:
	default:
		s.log.WithField("address", address).Warn("scanner: bt_scan channel full, dropping observation")
	}
}

// runCacheSweeper drops stale dedup entries every CacheSweepInterval.
func (s *Scanner) runCacheSweeper(ctx context.Context) {
	ticker := time.NewTicker(CacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.dedup.sweep(now)
		}
	}
}
