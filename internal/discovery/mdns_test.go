// ABOUTME: Tests for mDNS discovery
// ABOUTME: Covers default timeout and the no-responder error path
package discovery

import (
	"strings"
	"testing"
	"time"
)

func TestNewManagerAppliesDefaultTimeout(t *testing.T) {
	mgr := NewManager(Config{})
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	if mgr.config.BrowseTimeoutSeconds != queryTimeout {
		t.Errorf("default timeout = %d, want %d", mgr.config.BrowseTimeoutSeconds, queryTimeout)
	}
}

func TestNewManagerKeepsExplicitTimeout(t *testing.T) {
	mgr := NewManager(Config{BrowseTimeoutSeconds: 1})
	if mgr.config.BrowseTimeoutSeconds != 1 {
		t.Errorf("timeout = %d, want 1", mgr.config.BrowseTimeoutSeconds)
	}
}

func TestFindServerErrorsWithNoResponders(t *testing.T) {
	mgr := NewManager(Config{BrowseTimeoutSeconds: 1})
	defer mgr.Stop()

	start := time.Now()
	_, err := mgr.FindServer()
	if err == nil {
		t.Fatal("expected an error with no network responders")
	}
	if !strings.Contains(err.Error(), serviceType) {
		t.Errorf("error = %q, want it to name the service type", err.Error())
	}
	if time.Since(start) > 5*time.Second {
		t.Error("FindServer took far longer than its configured timeout")
	}
}
