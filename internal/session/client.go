// ABOUTME: Dials the server and keeps both gRPC streams running
// ABOUTME: Reconnects on a fixed 5s backoff, forever, until ctx is cancelled
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/Izu-lab/tsukimi-node/internal/fabric"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	// ConnectTimeout bounds a single dial attempt (spec.md §4.3/§7).
	ConnectTimeout = 5 * time.Second

	// RetryInterval is the fixed (not exponential) wait between
	// connection attempts.
	RetryInterval = 5 * time.Second
)

const (
	deviceInfoMethod = "/tsukimi.DeviceService/StreamDeviceInfo"
	streamTimeMethod = "/tsukimi.TimeService/StreamTime"
)

var deviceInfoStreamDesc = &grpc.StreamDesc{
	StreamName:    "StreamDeviceInfo",
	ServerStreams: true,
	ClientStreams: true,
}

var streamTimeStreamDesc = &grpc.StreamDesc{
	StreamName:    "StreamTime",
	ServerStreams: true,
	ClientStreams: true,
}

// Client maintains the session connection to the Tsukimi server: one
// DeviceService stream carrying observations up and location/point/sound
// events down, and one TimeService stream carrying the master clock.
//
// Neither stream touches a masterclock.Clock directly: both forward
// their raw samples onto Fab.TimeSync, which the audio engine alone
// consumes and folds into its clock (spec.md §4.2's single-consumer
// topology for time_sync).
type Client struct {
	Addr string
	Fab  *fabric.Fabric
	Log  *logrus.Logger

	// pointUpdateSeen tracks whether any PointUpdate for this node has
	// been applied yet; the very first one is initialization and must
	// not trigger the point-gain SE (spec.md §4.3). Only ever touched
	// from the single downlink goroutine.
	pointUpdateSeen bool
}

// New constructs a Client. log may be nil, in which case a default
// logrus logger is used.
func New(addr string, fab *fabric.Fabric, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	return &Client{Addr: addr, Fab: fab, Log: log}
}

// Run connects and drives both streams, reconnecting on a fixed
// RetryInterval until ctx is cancelled (spec.md §4.3).
func (c *Client) Run(ctx context.Context) error {
	b := backoff.WithContext(backoff.NewConstantBackOff(RetryInterval), ctx)

	return backoff.Retry(func() error {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err != nil {
			c.Log.WithError(err).Warn("session: connection attempt failed, will retry")
		}
		return fmt.Errorf("session: round ended: %w", err)
	}, b)
}

// runOnce dials once and runs both streams concurrently until either
// one ends, per spec.md §4.3's "if either returns, log and exit".
func (c *Client) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, c.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.Addr, err)
	}
	defer conn.Close()

	c.Log.WithField("addr", c.Addr).Info("session: connected")

	streamCtx, cancelStreams := context.WithCancel(ctx)
	defer cancelStreams()

	g, gctx := errgroup.WithContext(streamCtx)
	g.Go(func() error { return c.runDeviceInfoStream(gctx, conn) })
	g.Go(func() error { return c.runTimeStream(gctx, conn) })

	return g.Wait()
}
