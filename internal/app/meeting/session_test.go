package meeting

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

func TestSession_JoinValidation(t *testing.T) {
	s := New("s1", testOptions())
	tests := []struct {
		pid  domain.ParticipantID
		name string
		want error
	}{
		{"h", "", domain.ErrNameEmpty},
		{"h", strings.Repeat("x", domain.MaxDisplayNameLen+1), domain.ErrNameTooLong},
		{"", "Host", domain.ErrInvalidParticipantID},
	}
	for _, test := range tests {
		if _, err := s.Join(test.pid, test.name); !errors.Is(err, test.want) {
			t.Errorf("Join(%q, %q) err = %v, want %v", test.pid, test.name, err, test.want)
		}
	}
	if s.Info().Lifecycle != domain.LifecycleLobby {
		t.Fatal("failed joins changed the lifecycle")
	}
}

func TestSession_ListKeepsJoinOrder(t *testing.T) {
	s := openSession(t, testOptions(), "c", "a", "b")
	want := []domain.ParticipantID{"h", "c", "a", "b"}
	got := s.List()
	if len(got) != len(want) {
		t.Fatalf("list = %+v", got)
	}
	for i, p := range got {
		if p.ID != want[i] || p.JoinSeq != uint64(i+1) {
			t.Errorf("#%d = %s/%d, want %s/%d", i, p.ID, p.JoinSeq, want[i], i+1)
		}
	}
}

func TestSession_RegistryOperations(t *testing.T) {
	opts := testOptions()
	opts.AdmissionPolicy = domain.AdmissionOpen
	s := New("s1", opts)
	if _, err := s.AddParticipant("h", "Host", domain.RoleHost); err != nil {
		t.Fatalf("add host: %v", err)
	}
	if _, err := s.AddParticipant("h2", "Other", domain.RoleHost); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second host err = %v", err)
	}
	if _, err := s.AddParticipant("h", "Host", domain.RoleGuest); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("duplicate err = %v", err)
	}
	p, err := s.AddParticipant("g", "G", domain.RoleGuest)
	if err != nil || p.Conn != domain.ConnConnecting {
		t.Fatalf("add guest = %+v, %v", p, err)
	}
	if err := s.UpdateConnectionState("g", domain.ConnConnected); err != nil {
		t.Fatalf("connect guest: %v", err)
	}
	if err := s.UpdateConnectionState("ghost", domain.ConnConnected); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown update err = %v", err)
	}
	if err := s.RemoveParticipant("ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown remove err = %v", err)
	}
	if err := s.RemoveParticipant("g"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := len(s.List()); got != 1 {
		t.Fatalf("list size = %d", got)
	}
}

func TestSession_HostHandoff(t *testing.T) {
	ended := make(chan domain.SessionID, 1)
	opts := testOptions()
	opts.OnEnded = func(id domain.SessionID) { ended <- id }
	s := openSession(t, opts, "g1", "g2")
	s.UpdateConnectionState("g1", domain.ConnReconnecting)

	if err := s.Leave("h"); err != nil {
		t.Fatalf("host leave: %v", err)
	}
	if host := s.Info().Host; host != "g2" {
		t.Fatalf("host = %q, want the earliest connected guest g2", host)
	}
	s.Leave("g2")
	if host := s.Info().Host; host != "g1" {
		t.Fatalf("host = %q, want g1", host)
	}
	s.Leave("g1")

	select {
	case id := <-ended:
		if id != "s1" {
			t.Fatalf("ended id = %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("session did not end")
	}
	if s.Info().Lifecycle != domain.LifecycleEnded {
		t.Fatalf("lifecycle = %s", s.Info().Lifecycle)
	}
}

func TestSession_TransferHost(t *testing.T) {
	s := openSession(t, testOptions(), "g")
	if err := s.TransferHost("g", "h"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("guest transfer err = %v", err)
	}
	if err := s.TransferHost("h", "g"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	hosts := 0
	for _, p := range s.List() {
		if p.Role == domain.RoleHost {
			hosts++
		}
	}
	if hosts != 1 || s.Info().Host != "g" {
		t.Fatalf("hosts = %d, host = %q", hosts, s.Info().Host)
	}
}

func TestSession_KickAndEnd(t *testing.T) {
	s := New("s1", testOptions())
	s.Join("h", "Host")
	s.Join("pending", "P")
	s.SetAdmissionPolicy("h", domain.AdmissionOpen)
	s.Join("g", "G")

	if err := s.Kick("g", "h"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("guest kick err = %v", err)
	}
	if err := s.Kick("h", "h"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("self kick err = %v", err)
	}
	if err := s.Kick("h", "g"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if _, ok := s.Participant("g"); ok {
		t.Fatal("kicked guest still registered")
	}

	sub, _ := s.Subscribe(0, "observer")
	if err := s.End("h"); err != nil {
		t.Fatalf("end: %v", err)
	}
	evs := drain(sub)
	if len(evs) == 0 {
		t.Fatal("no events before the stream closed")
	}
	if ar, ok := evs[0].Payload.(domain.AdmissionResolved); !ok || ar.Decision != domain.DecisionDenied {
		t.Fatalf("first event = %+v", evs[0])
	}
	if !errors.Is(sub.Err(), domain.ErrSessionEnded) {
		t.Fatalf("stream err = %v", sub.Err())
	}
	if _, err := s.Join("late", "Late"); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Errorf("join after end err = %v", err)
	}
	if _, err := s.Subscribe(0, "late"); !errors.Is(err, domain.ErrSessionEnded) {
		t.Errorf("subscribe after end err = %v", err)
	}
}

func TestSession_ReconnectGrace(t *testing.T) {
	opts := testOptions()
	opts.ReconnectGrace = 20 * time.Millisecond
	s := openSession(t, opts, "g1", "g2")

	s.UpdateConnectionState("g1", domain.ConnReconnecting)
	res, err := s.Join("g1", "g1")
	if err != nil || res.Participant.Conn != domain.ConnConnected {
		t.Fatalf("rejoin = %+v, %v", res, err)
	}

	s.UpdateConnectionState("g2", domain.ConnReconnecting)
	waitFor(t, "grace expiry", func() bool {
		_, ok := s.Participant("g2")
		return !ok
	})
	time.Sleep(40 * time.Millisecond)
	if _, ok := s.Participant("g1"); !ok {
		t.Fatal("resumed participant removed by a stale grace timer")
	}
}

func TestSession_PendingCannotConnect(t *testing.T) {
	s := New("s1", testOptions())
	s.Join("h", "Host")
	s.Join("g", "G")
	if err := s.UpdateConnectionState("g", domain.ConnConnected); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v", err)
	}
	if err := s.SetHandRaised("g", true); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("hand err = %v", err)
	}
}

func TestSession_AddParticipantRespectsWaitingRoom(t *testing.T) {
	s := New("s1", testOptions())
	if _, err := s.AddParticipant("p", "P", domain.RolePendingGuest); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("pending guest before host err = %v", err)
	}
	if _, err := s.AddParticipant("h", "Host", domain.RoleHost); err != nil {
		t.Fatalf("add host: %v", err)
	}

	if _, err := s.AddParticipant("g", "G", domain.RoleGuest); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("admitted guest under approval err = %v", err)
	}
	if err := s.UpdateConnectionState("g", domain.ConnConnected); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("connect rejected guest err = %v", err)
	}

	p, err := s.AddParticipant("p", "P", domain.RolePendingGuest)
	if err != nil || p.Role != domain.RolePendingGuest {
		t.Fatalf("add pending guest = %+v, %v", p, err)
	}
	if got := s.PendingRequests(); len(got) != 1 || got[0].ParticipantID != "p" {
		t.Fatalf("pending = %+v", got)
	}
	req, err := s.RequestEntry("p", "P")
	if err != nil || req.Decision != domain.DecisionPending {
		t.Fatalf("request entry = %+v, %v", req, err)
	}
	res, err := s.Join("p", "P")
	if err != nil || !res.Pending {
		t.Fatalf("join = %+v, %v", res, err)
	}
	if err := s.UpdateConnectionState("p", domain.ConnConnected); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("connect pending guest err = %v", err)
	}
	if err := s.RespondEntry("h", "p", domain.DecisionAllowed); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if p, _ := s.Participant("p"); p.Role != domain.RoleGuest || p.Conn != domain.ConnConnected {
		t.Fatalf("admitted = %+v", p)
	}
}
