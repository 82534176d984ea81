// ABOUTME: Tests for the advertisement handler and dedup cache sweeper
// ABOUTME: Uses a fake ble.Advertisement to drive handleAdvertisement directly
package scanner

import (
	"testing"
	"time"

	"github.com/Izu-lab/tsukimi-node/internal/fabric"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
)

// fakeAdvertisement implements ble.Advertisement with only the fields
// handleAdvertisement actually reads.
type fakeAdvertisement struct {
	addr ble.Addr
	rssi int
}

func (f fakeAdvertisement) LocalName() string                       { return "" }
func (f fakeAdvertisement) ManufacturerData() []byte                 { return nil }
func (f fakeAdvertisement) ServiceData() []ble.ServiceData           { return nil }
func (f fakeAdvertisement) Services() []ble.UUID                     { return nil }
func (f fakeAdvertisement) OverflowService() []ble.UUID              { return nil }
func (f fakeAdvertisement) TxPowerLevel() int                        { return 0 }
func (f fakeAdvertisement) Connectable() bool                        { return false }
func (f fakeAdvertisement) SolicitedService() []ble.UUID             { return nil }
func (f fakeAdvertisement) RSSI() int                                { return f.rssi }
func (f fakeAdvertisement) Addr() ble.Addr                           { return f.addr }

func newScannerForTest() *Scanner {
	fab := fabric.New()
	return &Scanner{
		fab:   fab,
		log:   logrus.New(),
		dedup: newDedupCache(),
	}
}

func TestHandleAdvertisementIgnoresUnknownAddress(t *testing.T) {
	s := newScannerForTest()
	adv := fakeAdvertisement{addr: ble.NewAddr("aa:bb:cc:dd:ee:ff"), rssi: -60}

	s.handleAdvertisement(adv)

	select {
	case <-s.fab.BTScan:
		t.Fatal("observation emitted for an address absent from the sound map")
	default:
	}
}

func TestHandleAdvertisementEmitsKnownAddress(t *testing.T) {
	s := newScannerForTest()
	s.fab.State.ApplyLocationUpdate(map[string]string{"aa:bb:cc:dd:ee:ff": "buddhas_bowl"})
	adv := fakeAdvertisement{addr: ble.NewAddr("aa:bb:cc:dd:ee:ff"), rssi: -60}

	s.handleAdvertisement(adv)

	select {
	case obs := <-s.fab.BTScan:
		if obs.Address != "aa:bb:cc:dd:ee:ff" || obs.RSSI != -60 {
			t.Errorf("unexpected observation: %+v", obs)
		}
	default:
		t.Fatal("expected an observation to be emitted")
	}
}

func TestHandleAdvertisementDedupSuppressesRepeats(t *testing.T) {
	s := newScannerForTest()
	s.fab.State.ApplyLocationUpdate(map[string]string{"aa:bb:cc:dd:ee:ff": "buddhas_bowl"})
	adv := fakeAdvertisement{addr: ble.NewAddr("aa:bb:cc:dd:ee:ff"), rssi: -60}

	s.handleAdvertisement(adv)
	<-s.fab.BTScan

	s.handleAdvertisement(adv) // identical RSSI, immediately after: must be suppressed.

	select {
	case <-s.fab.BTScan:
		t.Fatal("dedup should have suppressed the repeated observation")
	default:
	}
}

func TestCacheSweeperDropsStaleEntries(t *testing.T) {
	c := newDedupCache()
	c.shouldEmit("aa", -50, time.Now().Add(-2*time.Minute))
	c.sweep(time.Now())

	if _, known := c.entries["aa"]; known {
		t.Error("sweep should have dropped an entry older than CacheEntryTTL")
	}
}
