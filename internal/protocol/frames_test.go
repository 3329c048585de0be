package protocol

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeFullSync(t *testing.T) {
	raw := []byte(`{
		"type": "server_status_response",
		"servers": {
			"lobby": {"online": true, "count": "5", "uptime": 360, "maxPlayers": 200},
			"survival": {"count": 12}
		},
		"players": {
			"online": "17",
			"currentPlayers": {"lobby": [{"uuid": "u1", "name": "Alice"}]}
		},
		"runningTime": 1000,
		"totalRunningTime": 90000,
		"isMaintenance": false
	}`)

	frame, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	sync := frame.FullSync
	if sync == nil {
		t.Fatalf("expected full sync payload")
	}
	if len(sync.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(sync.Servers))
	}
	var lobby ServerDelta
	for _, delta := range sync.Servers {
		if delta.ID == "lobby" {
			lobby = delta
		}
	}
	//1.- The string count "5" must normalize to a numeric field.
	if !lobby.HasCount || lobby.PlayerCount != 5 {
		t.Fatalf("expected lobby count 5, got %+v", lobby)
	}
	if !lobby.HasOnline || !lobby.Online {
		t.Fatalf("expected lobby online, got %+v", lobby)
	}
	if !sync.HasTotalOnline || sync.TotalOnline != 17 {
		t.Fatalf("expected total online 17, got %+v", sync)
	}
	if len(sync.PlayerDetails) != 1 || sync.PlayerDetails[0].ServerID != "lobby" {
		t.Fatalf("expected embedded player fanned out, got %+v", sync.PlayerDetails)
	}
	if sync.RunningTime != 1000 || sync.TotalRunningTime != 90000 {
		t.Fatalf("unexpected uptime fields %+v", sync)
	}
}

func TestDecodeInfersOnlineFromCount(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"server_update","servers":{"a":{"count":0}}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	delta := frame.ServerDeltas[0]
	//1.- count:0 without an explicit flag classifies as online; a documented
	// compatibility quirk, asserted here so a change is deliberate.
	if !delta.HasOnline || !delta.Online {
		t.Fatalf("expected inferred online, got %+v", delta)
	}
}

func TestDecodeServerUpdateCompactShape(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"server_update","servers":{"a":3,"b":7}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(frame.ServerDeltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(frame.ServerDeltas))
	}
	for _, delta := range frame.ServerDeltas {
		if !delta.HasCount {
			t.Fatalf("expected count present, got %+v", delta)
		}
		if delta.ID == "a" && delta.PlayerCount != 3 {
			t.Fatalf("expected a=3, got %d", delta.PlayerCount)
		}
	}
}

func TestDecodeServerUpdateFullShape(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"server_update","servers":{"a":{"online":false,"count":0,"uptime":42}}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	delta := frame.ServerDeltas[0]
	if delta.Online || !delta.HasOnline {
		t.Fatalf("expected explicit offline, got %+v", delta)
	}
	if !delta.HasUptime || delta.UptimeSeconds != 42 {
		t.Fatalf("expected uptime 42, got %+v", delta)
	}
}

func TestDecodePlayerAddEnvelopeVariants(t *testing.T) {
	variants := map[string][]byte{
		"player envelope":     []byte(`{"type":"players_update_add","player":{"uuid":"u1","name":"Alice","currentServer":"lobby"},"totalOnlinePlayers":9}`),
		"playerInfo envelope": []byte(`{"type":"players_update_add","playerInfo":{"uuid":"u1","name":"Alice","newServer":"lobby"}}`),
	}
	for name, raw := range variants {
		frame, err := Decode(raw)
		if err != nil {
			t.Fatalf("%s: decode failed: %v", name, err)
		}
		event := frame.PlayerAdd
		if event == nil || event.UUID != "u1" || event.ServerID != "lobby" {
			t.Fatalf("%s: unexpected event %+v", name, event)
		}
	}
}

func TestDecodePlayerRemoveWithPreviousServer(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"players_update_remove","player":{"uuid":"u1","previousServer":"lobby"}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if frame.PlayerRemove == nil || frame.PlayerRemove.PreviousServerID != "lobby" {
		t.Fatalf("unexpected event %+v", frame.PlayerRemove)
	}
}

func TestDecodePlayerAddRequiresServerReference(t *testing.T) {
	//1.- An add with neither currentServer nor newServer is rejected outright.
	if _, err := Decode([]byte(`{"type":"players_update_add","player":{"uuid":"u1","name":"Alice"}}`)); err == nil {
		t.Fatalf("expected missing server reference error")
	}
	//2.- A remove without any server field stays valid; the ledgers resolve it.
	frame, err := Decode([]byte(`{"type":"players_update_remove","player":{"uuid":"u1"}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if frame.PlayerRemove == nil || frame.PlayerRemove.ServerID != "" {
		t.Fatalf("unexpected event %+v", frame.PlayerRemove)
	}
}

func TestDecodeMaintenanceStringStatus(t *testing.T) {
	started := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	frame, err := Decode([]byte(`{"type":"maintenance_status_update","status":"true","maintenanceStartTime":1769932800000}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	update := frame.Maintenance
	if update == nil || !update.Active {
		t.Fatalf("expected maintenance active, got %+v", update)
	}
	if update.StartedAt == nil || !update.StartedAt.Equal(started) {
		t.Fatalf("unexpected start time %v", update.StartedAt)
	}
}

func TestDecodeRejectsMalformedFrame(t *testing.T) {
	if _, err := Decode([]byte(`{"type": "server_status_response", "servers": `)); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Decode([]byte(`{"servers": {}}`)); err == nil {
		t.Fatalf("expected missing discriminator error")
	}
}

func TestDecodeUnknownTypeIsSentinel(t *testing.T) {
	_, err := Decode([]byte(`{"type":"future_feature"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestRequestsCarryDistinctTokens(t *testing.T) {
	first := NewStatusRequest()
	second := NewStatusRequest()
	if first.Token == "" || first.Token == second.Token {
		t.Fatalf("expected distinct non-empty tokens, got %q and %q", first.Token, second.Token)
	}
	if first.Type != TypeStatusRequest {
		t.Fatalf("unexpected request type %q", first.Type)
	}
	if _, err := first.Encode(); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
}
