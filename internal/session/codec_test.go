// ABOUTME: Tests for the JSON grpc codec
// ABOUTME: Round-trips a request struct through Marshal/Unmarshal
package session

import "testing"

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	want := StreamDeviceInfoRequest{
		UserID:    "aa:bb:cc",
		Locations: []LocationRssi{{Address: "11:22", RSSI: -60}},
	}

	data, err := c.Marshal(&want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got StreamDeviceInfoRequest
	if err := c.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.UserID != want.UserID || len(got.Locations) != 1 || got.Locations[0] != want.Locations[0] {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestJSONCodecName(t *testing.T) {
	if (jsonCodec{}).Name() != "json" {
		t.Errorf("codec name = %q, want %q", (jsonCodec{}).Name(), "json")
	}
}
