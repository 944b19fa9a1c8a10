package simulator

import (
	"math"
	"testing"
)

func newTestSim() *Simulator {
	return New("code", []Device{
		{ID: "blind", Position: 100, Battery: 80},
		{ID: "remote", Battery: 50, Remote: true},
	}, nil)
}

func TestDriveMotor_RampsAndClamps(t *testing.T) {
	s := newTestSim()
	m := s.motors["blind"]
	m.target = 50

	if !s.driveMotor(m, 2) {
		t.Fatalf("expected change while moving")
	}
	if want := 100 - RampPercentPerSec*2; m.position != want {
		t.Fatalf("got %.2f, want %.2f", m.position, want)
	}
	if m.sentPosition != 80 {
		t.Fatalf("sentPosition = %d, want 80", m.sentPosition)
	}

	_ = s.driveMotor(m, 60)
	if m.position != 50 {
		t.Fatalf("expected clamp to target, got %.2f", m.position)
	}
	if s.driveMotor(m, 1) {
		t.Fatalf("did not expect change at target")
	}
}

func TestDriveMotor_DrainsBattery(t *testing.T) {
	s := newTestSim()
	m := s.motors["blind"]
	m.target = 0

	_ = s.driveMotor(m, 4)
	want := 80 - BatteryDrainPerSec*4
	if math.Abs(m.battery-want) > 1e-9 {
		t.Fatalf("battery = %.3f, want %.3f", m.battery, want)
	}
	if m.sentBattery != 80 {
		t.Fatalf("sentBattery = %d, want ceil to 80", m.sentBattery)
	}
}

func TestAdvance_SkipsRemotesAndIdle(t *testing.T) {
	s := newTestSim()
	if got := s.advance(1); len(got) != 0 {
		t.Fatalf("idle simulator reported %d changes", len(got))
	}

	s.motors["blind"].target = 0
	got := s.advance(1)
	if len(got) != 1 || got[0].ID != "blind" {
		t.Fatalf("unexpected changes %+v", got)
	}
	if *got[0].Position != 90 {
		t.Fatalf("position = %d, want 90", *got[0].Position)
	}
}

func TestCommand_Rejections(t *testing.T) {
	s := newTestSim()

	cases := []struct {
		name     string
		device   string
		position int
		wantErr  bool
	}{
		{"accepted", "blind", 30, false},
		{"unknown device", "ghost", 30, true},
		{"remote has no motor", "remote", 30, true},
		{"out of range", "blind", 130, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason := s.command(tc.device, tc.position)
			if (reason != "") != tc.wantErr {
				t.Fatalf("command(%s, %d) reason=%q", tc.device, tc.position, reason)
			}
		})
	}

	if tgt, _ := s.Target("blind"); tgt != 30 {
		t.Fatalf("target = %d, want 30", tgt)
	}

	s.Reject("blind", "jammed")
	if reason := s.command("blind", 10); reason != "jammed" {
		t.Fatalf("reason = %q, want jammed", reason)
	}
	s.Reject("blind", "")
	if reason := s.command("blind", 10); reason != "" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestSnapshot_RemoteHasNoPosition(t *testing.T) {
	s := newTestSim()
	for _, st := range s.snapshot() {
		switch st.ID {
		case "blind":
			if st.Position == nil || *st.Position != 100 {
				t.Fatalf("blind position %+v", st.Position)
			}
		case "remote":
			if st.Position != nil {
				t.Fatalf("remote reported position %d", *st.Position)
			}
			if st.Battery == nil || *st.Battery != 50 {
				t.Fatalf("remote battery %+v", st.Battery)
			}
		}
	}
}
