package rtc

import (
	"context"
	"testing"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
)

func TestDecodeFlags(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.MediaFlags
		wantErr bool
	}{
		{`{"mic":true}`, domain.MediaFlags{Mic: true}, false},
		{`{"mic":true,"cam":true,"screen":true}`, domain.MediaFlags{Mic: true, Camera: true, Screen: true}, false},
		{`{}`, domain.MediaFlags{}, false},
		{`not json`, domain.MediaFlags{}, true},
	}
	for _, test := range tests {
		got, err := decodeFlags([]byte(test.in))
		if (err != nil) != test.wantErr {
			t.Errorf("decodeFlags(%s) err = %v", test.in, err)
			continue
		}
		if got != test.want {
			t.Errorf("decodeFlags(%s) = %+v, want %+v", test.in, got, test.want)
		}
	}
}

func TestWebRTCConnection_CloseOnce(t *testing.T) {
	c, err := NewWebRTCConnection(webrtc.Configuration{}, "c1")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	closed := 0
	c.OnClosed(func() { closed++ })
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	c.Close()
	c.Close()
	if closed != 1 {
		t.Fatalf("onClosed fired %d times", closed)
	}
}
