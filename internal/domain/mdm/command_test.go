package mdm

import "testing"

func TestCommandStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to CommandStatus
		ok       bool
	}{
		{CommandQueued, CommandSent, true},
		{CommandQueued, CommandAcknowledged, false},
		{CommandSent, CommandAcknowledged, true},
		{CommandSent, CommandFailed, true},
		{CommandSent, CommandQueued, false},
		{CommandAcknowledged, CommandFailed, false},
		{CommandFailed, CommandSent, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: want %v got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestCommandPayloadValidate(t *testing.T) {
	if err := InstallPayload(7).Validate(CommandInstallProfile); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := InstallPayload(0).Validate(CommandInstallProfile); err == nil {
		t.Fatalf("install without id should fail")
	}
	if err := RemovePayload("com.example.p1").Validate(CommandRemoveProfile); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := RemovePayload("").Validate(CommandRemoveProfile); err == nil {
		t.Fatalf("remove without identifier should fail")
	}
}
