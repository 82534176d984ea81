// ABOUTME: Forwards the TimeService stream's samples onto the fabric
// ABOUTME: One request, then a continuous stream of elapsed-time ticks
package session

import (
	"context"
	"time"

	"github.com/Izu-lab/tsukimi-node/internal/fabric"
	"google.golang.org/grpc"
)

// runTimeStream opens the TimeService stream and forwards every
// received timestamp onto fabric.TimeSync; the audio engine is the
// sole consumer that folds these samples into its clock (spec.md
// §4.2, §4.3).
func (c *Client) runTimeStream(ctx context.Context, conn *grpc.ClientConn) error {
	stream, err := conn.NewStream(ctx, streamTimeStreamDesc, streamTimeMethod,
		grpc.CallContentSubtype(jsonCodecName))
	if err != nil {
		return err
	}

	if err := stream.SendMsg(&StreamTimeRequest{}); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var resp StreamTimeResponse
		if err := stream.RecvMsg(&resp); err != nil {
			return err
		}

		now := time.Now()

		select {
		case c.Fab.TimeSync <- fabric.TimeSync{ServerElapsedNanos: resp.ElapsedNanoseconds, ReceivedAt: now}:
		default:
			c.Log.Warn("session: time_sync channel full, dropping sample")
		}
	}
}
