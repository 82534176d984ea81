// ABOUTME: A fake grpc.ClientStream driving uplink/downlink tests
// ABOUTME: Records sent messages and replays a scripted receive queue
package session

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/grpc/metadata"
)

var errFakeStreamClosed = errors.New("session: fake stream closed")

type fakeClientStream struct {
	ctx context.Context

	mu   sync.Mutex
	sent []*StreamDeviceInfoRequest

	recvQueue []StreamDeviceInfoResponse
	recvIdx   int
}

func (f *fakeClientStream) Header() (metadata.MD, error) { return nil, nil }
func (f *fakeClientStream) Trailer() metadata.MD         { return nil }
func (f *fakeClientStream) CloseSend() error             { return nil }
func (f *fakeClientStream) Context() context.Context     { return f.ctx }

func (f *fakeClientStream) SendMsg(m any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := m.(*StreamDeviceInfoRequest)
	if !ok {
		return nil
	}
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeClientStream) RecvMsg(m any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recvIdx >= len(f.recvQueue) {
		return errFakeStreamClosed
	}
	resp, ok := m.(*StreamDeviceInfoResponse)
	if !ok {
		return nil
	}
	*resp = f.recvQueue[f.recvIdx]
	f.recvIdx++
	return nil
}

func (f *fakeClientStream) sentRequests() []*StreamDeviceInfoRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*StreamDeviceInfoRequest, len(f.sent))
	copy(out, f.sent)
	return out
}
