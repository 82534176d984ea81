//go:build !linux

// ABOUTME: Non-Linux BLE adapter init
// ABOUTME: Uses the platform adapter's own reported address directly
package scanner

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"
)

// platformInit obtains the default platform BLE device. Outside Linux
// there is no system-bus adapter lookup, so the adapter's own reported
// identifier is used directly as the self address (spec.md §4.1).
func platformInit(ctx context.Context, log *logrus.Logger) (ble.Device, string, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		return nil, "", err
	}

	var address string
	if a, ok := dev.(interface{ Addr() ble.Addr }); ok {
		address = a.Addr().String()
	} else {
		log.Debug("scanner: platform adapter does not report its own address")
	}

	return dev, address, nil
}
