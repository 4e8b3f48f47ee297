package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		Mode:     "test",
		Secret:   "test-secret",
		LogLevel: "warn",
		Admission: config.AdmissionConfig{
			Policy:  "open",
			Timeout: time.Minute,
		},
		Recording: config.RecordingConfig{AckTimeout: time.Second, Backoff: []time.Duration{time.Second}},
		Recorder:  config.RecorderConfig{Latency: time.Millisecond},
		Signal:    config.SignalConfig{JoinLimit: 3, JoinInterval: time.Minute, SendBuffer: 8},
	}
}

func TestConfigCmd(t *testing.T) {
	cmd := NewRootCmd(&Dependencies{Config: testConfig()})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, want := range []string{"policy: open", "timeout: 1m0s", "send_buffer: 8"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestBuild(t *testing.T) {
	o, ctl := Build(testConfig())
	if ctl.SendBuffer != 8 || ctl.Orch != o {
		t.Fatalf("controller = %+v", ctl)
	}
	s := o.Sessions.Create("")
	if s.Info().Policy != domain.AdmissionOpen {
		t.Fatalf("policy = %s", s.Info().Policy)
	}
	if _, err := o.JoinSession("host", s.ID(), "Host"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := o.SetRecording("host", true); err != nil {
		t.Fatalf("recording with configured recorder: %v", err)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, testConfig()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
