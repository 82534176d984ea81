// ABOUTME: Batches fanout observations into timed-chunk uplink requests
// ABOUTME: Up to 10 items or 50ms, whichever comes first (spec.md §4.3)
package session

import (
	"context"
	"time"

	"github.com/Izu-lab/tsukimi-node/internal/fabric"
	"google.golang.org/grpc"
)

const (
	// UplinkBatchSize is the item-count half of the timed-chunk rule.
	UplinkBatchSize = 10

	// UplinkBatchWindow is the time half of the timed-chunk rule.
	UplinkBatchWindow = 50 * time.Millisecond
)

// runDeviceInfoStream opens the DeviceService stream and runs the
// uplink batcher and downlink demux concurrently until either the
// stream or ctx ends.
func (c *Client) runDeviceInfoStream(ctx context.Context, conn *grpc.ClientConn) error {
	stream, err := conn.NewStream(ctx, deviceInfoStreamDesc, deviceInfoMethod,
		grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- c.runUplink(ctx, stream) }()
	go func() { errCh <- c.runDownlink(ctx, stream) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// runUplink subscribes to the observation fan-out and flushes a
// StreamDeviceInfoRequest whenever UplinkBatchSize items accumulate or
// UplinkBatchWindow elapses, whichever first.
func (c *Client) runUplink(ctx context.Context, stream grpc.ClientStream) error {
	ch, cancel := c.Fab.ObservationsFanout.Subscribe(fabric.ChannelCapacity)
	defer cancel()

	ticker := time.NewTicker(UplinkBatchWindow)
	defer ticker.Stop()

	batch := make([]LocationRssi, 0, UplinkBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		userID, _ := c.Fab.State.SelfIdentity()
		req := &StreamDeviceInfoRequest{UserID: userID, Locations: batch}
		batch = make([]LocationRssi, 0, UplinkBatchSize)
		return stream.SendMsg(req)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case obs, ok := <-ch:
			if !ok {
				return nil
			}
			if !c.Fab.State.SoundMapHas(obs.Address) {
				continue
			}
			batch = append(batch, LocationRssi{Address: obs.Address, RSSI: int32(obs.RSSI)})
			if len(batch) >= UplinkBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}

		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		}
	}
}
