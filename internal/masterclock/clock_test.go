// ABOUTME: Tests for offset smoothing and server/local time conversions
// ABOUTME: Covers the exponential moving average and round-trip conversions
package masterclock

import (
	"testing"
	"time"
)

func TestObserveFirstSampleSetsOffsetDirectly(t *testing.T) {
	c := New()
	c.Observe(1_002_000, 1_000_000)

	if got := c.Offset(); got != 2_000 {
		t.Errorf("offset = %d, want 2000", got)
	}
	if !c.Synced() {
		t.Error("expected Synced() true after one sample")
	}
}

func TestObserveSmoothsSubsequentSamples(t *testing.T) {
	c := New()
	c.Observe(1_002_000, 1_000_000) // raw offset 2000
	c.Observe(2_001_000, 2_000_000) // raw offset 1000

	// smoothed = 2000*0.9 + 1000*0.1 = 1900
	if got, want := c.Offset(), int64(1900); got != want {
		t.Errorf("smoothed offset = %d, want %d", got, want)
	}
}

func TestQualityDegradesWithoutSamples(t *testing.T) {
	c := New()
	if q := c.Quality(); q != QualityLost {
		t.Errorf("quality before any sample = %v, want %v", q, QualityLost)
	}

	c.Observe(1_000_000, 1_000_000)
	if q := c.Quality(); q != QualityGood {
		t.Errorf("quality right after a sample = %v, want %v", q, QualityGood)
	}

	c.lastSample = time.Now().Add(-(staleAfter + time.Second))
	if q := c.Quality(); q != QualityDegraded {
		t.Errorf("quality after staleAfter without a sample = %v, want %v", q, QualityDegraded)
	}

	c.lastSample = time.Now().Add(-(lostAfter + time.Second))
	if q := c.Quality(); q != QualityLost {
		t.Errorf("quality after lostAfter without a sample = %v, want %v", q, QualityLost)
	}
}

func TestServerLocalConversionsRoundTrip(t *testing.T) {
	c := New()
	c.Observe(1_000_500, 1_000_000) // offset = 500

	serverNS := int64(5_000_000)
	localNS := c.ServerToLocalNS(serverNS)
	if back := c.LocalToServerNS(time.Unix(0, localNS)); back != serverNS {
		t.Errorf("round trip = %d, want %d", back, serverNS)
	}
}
