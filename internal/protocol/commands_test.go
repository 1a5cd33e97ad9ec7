package protocol

import "testing"

func TestHandshakeRoundTrip(t *testing.T) {
	req := NewHandshake(HandshakeLeft)
	if req.Opcode != OpInit {
		t.Errorf("handshake opcode = 0x%02x, want 0x%02x", req.Opcode, OpInit)
	}
	if _, err := Decode(req.Encode()); err != nil {
		t.Fatalf("Decode(handshake) failed: %v", err)
	}
}

func TestHandshakeIdentity(t *testing.T) {
	reply := MustCommand(RespSuccess, append([]byte{OpInit}, []byte("G1_77_L_ABC")...))
	pkt, err := Decode(reply.Encode())
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	identity, ok := HandshakeIdentity(pkt)
	if !ok {
		t.Fatal("HandshakeIdentity() did not recognize a valid reply")
	}
	if identity != "G1_77_L_ABC" {
		t.Errorf("identity = %q, want %q", identity, "G1_77_L_ABC")
	}
}

func TestHandshakeIdentityRejectsOtherPackets(t *testing.T) {
	tests := []struct {
		name string
		pkt  Packet
	}{
		{"heartbeat_ack", Packet{Opcode: OpHeartbeat, Payload: []byte{0x00, 0x01, 0x04}}},
		{"failure", Packet{Opcode: RespFailure, Payload: []byte{OpInit}}},
		{"success_wrong_subject", Packet{Opcode: RespSuccess, Payload: []byte{OpBattery}}},
		{"success_empty", Packet{Opcode: RespSuccess}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := HandshakeIdentity(tt.pkt); ok {
				t.Error("HandshakeIdentity() accepted a non-reply packet")
			}
		})
	}
}

func TestIsHandshakeReject(t *testing.T) {
	reject := Packet{Opcode: RespFailure, Payload: []byte{OpInit}}
	if !IsHandshakeReject(reject) {
		t.Error("IsHandshakeReject() = false for an init rejection")
	}
	if IsHandshakeReject(Packet{Opcode: RespFailure}) {
		t.Error("IsHandshakeReject() = true for a bare failure response")
	}
}

func TestBatteryLevel(t *testing.T) {
	tests := []struct {
		name   string
		pkt    Packet
		want   int
		wantOK bool
	}{
		{"valid", Packet{Opcode: OpBattery, Payload: []byte{87}}, 87, true},
		{"zero", Packet{Opcode: OpBattery, Payload: []byte{0}}, 0, true},
		{"full", Packet{Opcode: OpBattery, Payload: []byte{100}}, 100, true},
		{"out_of_range", Packet{Opcode: OpBattery, Payload: []byte{101}}, 0, false},
		{"empty", Packet{Opcode: OpBattery}, 0, false},
		{"wrong_opcode", Packet{Opcode: OpStateEvent, Payload: []byte{50}}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BatteryLevel(tt.pkt)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("BatteryLevel() = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestStateCode(t *testing.T) {
	code, ok := StateCode(Packet{Opcode: OpStateEvent, Payload: []byte{StateWearing}})
	if !ok || code != StateWearing {
		t.Errorf("StateCode() = (0x%02x, %v), want (0x%02x, true)", code, ok, StateWearing)
	}
	if _, ok := StateCode(Packet{Opcode: OpHeartbeat, Payload: []byte{0x00}}); ok {
		t.Error("StateCode() accepted a heartbeat packet")
	}
}

func TestCodeClassification(t *testing.T) {
	if !IsPhysicalStateCode(StateWearing) || !IsPhysicalStateCode(StateCradle) {
		t.Error("physical state codes not recognized")
	}
	if !IsDeviceStateCode(DeviceConnected) {
		t.Error("device connected code not recognized")
	}
	if !IsBatteryStateCode(BatteryCharging) {
		t.Error("battery charging code not recognized")
	}
	if !IsInteractionCode(InteractionDoubleTap) || !IsInteractionCode(InteractionDashboardClose) {
		t.Error("interaction codes not recognized")
	}
	if IsPhysicalStateCode(InteractionLongPress) {
		t.Error("interaction code classified as physical state")
	}
}
