// ABOUTME: Tests for proximity crossing detection and the cooldown gate
// ABOUTME: Verifies the increment POST fires against a test HTTP server
package selector

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Izu-lab/tsukimi-node/internal/fabric"
	"github.com/sirupsen/logrus"
)

func TestObserveFiresSEOnCrossingIntoInteractivePlace(t *testing.T) {
	fab := fabric.New()
	fab.State.ApplyLocationUpdate(map[string]string{"aa": "buddhas_bowl"})
	it := newInteractionTracker(fab, "", logrus.New())

	now := time.Now()
	it.observe(fabric.DeviceObservation{Address: "aa", RSSI: -60, ObservedAt: now})          // below threshold, establishes prev
	it.observe(fabric.DeviceObservation{Address: "aa", RSSI: -30, ObservedAt: now.Add(time.Second)}) // crosses

	select {
	case req := <-fab.SEPlay:
		if req.AssetName != "se-hotoke.mp3" {
			t.Errorf("asset = %q, want se-hotoke.mp3", req.AssetName)
		}
	default:
		t.Fatal("expected a proximity SE to be fired")
	}
}

func TestObserveIgnoresNonInteractivePlaceType(t *testing.T) {
	fab := fabric.New()
	fab.State.ApplyLocationUpdate(map[string]string{"aa": "projection_mapping"})
	it := newInteractionTracker(fab, "", logrus.New())

	now := time.Now()
	it.observe(fabric.DeviceObservation{Address: "aa", RSSI: -60, ObservedAt: now})
	it.observe(fabric.DeviceObservation{Address: "aa", RSSI: -30, ObservedAt: now.Add(time.Second)})

	select {
	case <-fab.SEPlay:
		t.Fatal("a non-interactive place_type must never fire an SE")
	default:
	}
}

func TestObserveRespectsCooldown(t *testing.T) {
	fab := fabric.New()
	fab.State.ApplyLocationUpdate(map[string]string{"aa": "buddhas_bowl"})
	it := newInteractionTracker(fab, "", logrus.New())

	now := time.Now()
	it.observe(fabric.DeviceObservation{Address: "aa", RSSI: -60, ObservedAt: now})
	it.observe(fabric.DeviceObservation{Address: "aa", RSSI: -30, ObservedAt: now.Add(time.Second)})
	<-fab.SEPlay

	// Drop back out and cross again within the cooldown window.
	it.observe(fabric.DeviceObservation{Address: "aa", RSSI: -60, ObservedAt: now.Add(2 * time.Second)})
	it.observe(fabric.DeviceObservation{Address: "aa", RSSI: -30, ObservedAt: now.Add(3 * time.Second)})

	select {
	case <-fab.SEPlay:
		t.Fatal("a second crossing inside the cooldown window must not fire again")
	default:
	}
}

func TestPostIncrementSendsExpectedBody(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			LocationType string `json:"location_type"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		received <- body.LocationType
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "ok"})
	}))
	defer srv.Close()

	host := srv.Listener.Addr().String()
	it := newInteractionTracker(fabric.New(), host, logrus.New())
	it.client = srv.Client()

	it.postIncrement("me", "buddhas_bowl")

	select {
	case got := <-received:
		if got != "buddhas_bowl" {
			t.Errorf("location_type = %q, want buddhas_bowl", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for increment POST")
	}
}
