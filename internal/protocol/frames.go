package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Inbound message type discriminators understood by the dispatcher.
const (
	TypeServerStatus = "server_status_response"
	TypeMaintenance  = "maintenance_status_update"
	TypePlayerAdd    = "players_update_add"
	TypePlayerRemove = "players_update_remove"
	TypeServerUpdate = "server_update"
)

// ErrUnknownType marks frames whose discriminator is not part of the protocol.
// They are logged and ignored so future protocol additions stay non-fatal.
var ErrUnknownType = errors.New("unrecognized message type")

// Frame is the canonical, transport-agnostic form of one inbound message.
// Exactly one payload pointer is populated, selected by Type.
type Frame struct {
	Type         string
	FullSync     *FullSync
	Maintenance  *MaintenanceUpdate
	PlayerAdd    *PlayerEvent
	PlayerRemove *PlayerEvent
	ServerDeltas []ServerDelta
}

// ServerDelta is a normalized partial snapshot for one server. The Has* flags
// record which fields the wire payload actually carried, so the store can
// preserve previously known values for everything else.
type ServerDelta struct {
	ID             string
	DisplayName    string
	Address        string
	Online         bool
	HasOnline      bool
	PlayerCount    int
	HasCount       bool
	MaxPlayers     int
	HasMaxPlayers  bool
	UptimeSeconds  int64
	HasUptime      bool
	TotalUptime    int64
	HasTotalUptime bool
}

// PlayerDetail identifies one player embedded in a full sync payload.
type PlayerDetail struct {
	UUID        string
	DisplayName string
	ServerID    string
}

// FullSync carries the complete authoritative state used to re-baseline the store.
type FullSync struct {
	Servers          []ServerDelta
	TotalOnline      int
	HasTotalOnline   bool
	PlayerDetails    []PlayerDetail
	RunningTime      int64
	TotalRunningTime int64
	IsMaintenance    bool
	MaintenanceStart *time.Time
}

// MaintenanceUpdate reports a maintenance flag change from the authority.
type MaintenanceUpdate struct {
	Active    bool
	StartedAt *time.Time
}

// PlayerEvent is the normalized form of a player add or remove notification.
type PlayerEvent struct {
	UUID             string
	DisplayName      string
	ServerID         string
	PreviousServerID string
	TotalOnline      int
	HasTotalOnline   bool
}

// Decode parses one inbound text frame and normalizes it into a Frame.
// Unknown discriminators return an error wrapping ErrUnknownType.
func Decode(raw []byte) (*Frame, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if envelope.Type == "" {
		return nil, errors.New("frame missing type discriminator")
	}

	switch envelope.Type {
	case TypeServerStatus:
		return decodeFullSync(raw)
	case TypeMaintenance:
		return decodeMaintenance(raw)
	case TypePlayerAdd, TypePlayerRemove:
		return decodePlayerUpdate(envelope.Type, raw)
	case TypeServerUpdate:
		return decodeServerUpdate(raw)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, envelope.Type)
	}
}

type wireServer struct {
	DisplayName string   `json:"displayName"`
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Online      flexBool `json:"online"`
	Count       flexInt  `json:"count"`
	MaxPlayers  flexInt  `json:"maxPlayers"`
	Uptime      flexInt  `json:"uptime"`
	TotalUptime flexInt  `json:"totalUptime"`
}

func (w wireServer) toDelta(id string) ServerDelta {
	delta := ServerDelta{ID: id}
	if w.DisplayName != "" {
		delta.DisplayName = w.DisplayName
	} else if w.Name != "" {
		delta.DisplayName = w.Name
	}
	delta.Address = w.Address
	if w.Count.present {
		delta.PlayerCount = int(w.Count.value)
		delta.HasCount = true
	}
	if w.MaxPlayers.present {
		delta.MaxPlayers = int(w.MaxPlayers.value)
		delta.HasMaxPlayers = true
	}
	if w.Uptime.present {
		delta.UptimeSeconds = w.Uptime.value
		delta.HasUptime = true
	}
	if w.TotalUptime.present {
		delta.TotalUptime = w.TotalUptime.value
		delta.HasTotalUptime = true
	}
	//1.- Take the explicit online flag when the payload carries one.
	if w.Online.present {
		delta.Online = w.Online.value
		delta.HasOnline = true
		return delta
	}
	//2.- Otherwise infer online from a non-negative count. Known ambiguity: a
	// server reporting count:0 without a flag is classified as online; kept for
	// compatibility with the authority's historical behaviour.
	if delta.HasCount && delta.PlayerCount >= 0 {
		delta.Online = true
		delta.HasOnline = true
	}
	return delta
}

func decodeFullSync(raw []byte) (*Frame, error) {
	var wire struct {
		Servers map[string]wireServer `json:"servers"`
		Players struct {
			Online         flexInt                     `json:"online"`
			CurrentPlayers map[string][]wirePlayerInfo `json:"currentPlayers"`
		} `json:"players"`
		RunningTime          flexInt  `json:"runningTime"`
		TotalRunningTime     flexInt  `json:"totalRunningTime"`
		IsMaintenance        flexBool `json:"isMaintenance"`
		MaintenanceStartTime flexTime `json:"maintenanceStartTime"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse %s: %w", TypeServerStatus, err)
	}

	sync := &FullSync{
		RunningTime:      wire.RunningTime.value,
		TotalRunningTime: wire.TotalRunningTime.value,
		IsMaintenance:    wire.IsMaintenance.present && wire.IsMaintenance.value,
		MaintenanceStart: wire.MaintenanceStartTime.value,
	}
	if wire.Players.Online.present {
		sync.TotalOnline = int(wire.Players.Online.value)
		sync.HasTotalOnline = true
	}
	for id, server := range wire.Servers {
		sync.Servers = append(sync.Servers, server.toDelta(id))
	}
	//1.- Fan embedded per-player data out so the store can replay it as adds.
	for serverID, players := range wire.Players.CurrentPlayers {
		for _, player := range players {
			if player.UUID == "" {
				continue
			}
			sync.PlayerDetails = append(sync.PlayerDetails, PlayerDetail{
				UUID:        player.UUID,
				DisplayName: player.Name,
				ServerID:    serverID,
			})
		}
	}
	return &Frame{Type: TypeServerStatus, FullSync: sync}, nil
}

func decodeMaintenance(raw []byte) (*Frame, error) {
	var wire struct {
		Status               flexBool `json:"status"`
		MaintenanceStartTime flexTime `json:"maintenanceStartTime"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse %s: %w", TypeMaintenance, err)
	}
	update := &MaintenanceUpdate{
		Active:    wire.Status.present && wire.Status.value,
		StartedAt: wire.MaintenanceStartTime.value,
	}
	return &Frame{Type: TypeMaintenance, Maintenance: update}, nil
}

type wirePlayerInfo struct {
	UUID           string `json:"uuid"`
	Name           string `json:"name"`
	CurrentServer  string `json:"currentServer"`
	NewServer      string `json:"newServer"`
	PreviousServer string `json:"previousServer"`
}

func decodePlayerUpdate(frameType string, raw []byte) (*Frame, error) {
	var wire struct {
		Player             *wirePlayerInfo `json:"player"`
		PlayerInfo         *wirePlayerInfo `json:"playerInfo"`
		TotalOnlinePlayers flexInt         `json:"totalOnlinePlayers"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse %s: %w", frameType, err)
	}
	//1.- Collapse the two historical envelope names into one canonical player.
	info := wire.Player
	if info == nil {
		info = wire.PlayerInfo
	}
	if info == nil || info.UUID == "" {
		return nil, fmt.Errorf("parse %s: missing player payload", frameType)
	}

	event := &PlayerEvent{
		UUID:             info.UUID,
		DisplayName:      info.Name,
		PreviousServerID: info.PreviousServer,
	}
	//2.- The owning server arrives as currentServer or newServer depending on origin.
	if info.CurrentServer != "" {
		event.ServerID = info.CurrentServer
	} else {
		event.ServerID = info.NewServer
	}
	//3.- An add without a server reference cannot be placed anywhere; removals
	// legitimately omit it and are resolved from the recorded ledgers.
	if frameType == TypePlayerAdd && event.ServerID == "" {
		return nil, fmt.Errorf("parse %s: missing server reference", frameType)
	}
	if wire.TotalOnlinePlayers.present {
		event.TotalOnline = int(wire.TotalOnlinePlayers.value)
		event.HasTotalOnline = true
	}

	frame := &Frame{Type: frameType}
	if frameType == TypePlayerAdd {
		frame.PlayerAdd = event
	} else {
		frame.PlayerRemove = event
	}
	return frame, nil
}

func decodeServerUpdate(raw []byte) (*Frame, error) {
	var wire struct {
		Servers map[string]json.RawMessage `json:"servers"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse %s: %w", TypeServerUpdate, err)
	}
	if len(wire.Servers) == 0 {
		return nil, fmt.Errorf("parse %s: empty servers payload", TypeServerUpdate)
	}

	//1.- Detect the payload shape from the first value: objects mean the full
	// per-server form, anything else the compact {id: count} map.
	compact := true
	for _, value := range wire.Servers {
		if len(bytes.TrimSpace(value)) > 0 && bytes.TrimSpace(value)[0] == '{' {
			compact = false
		}
		break
	}

	frame := &Frame{Type: TypeServerUpdate}
	for id, value := range wire.Servers {
		if compact {
			var count flexInt
			if err := json.Unmarshal(value, &count); err != nil || !count.present {
				return nil, fmt.Errorf("parse %s: invalid count for server %q", TypeServerUpdate, id)
			}
			delta := ServerDelta{ID: id, PlayerCount: int(count.value), HasCount: true}
			if delta.PlayerCount >= 0 {
				delta.Online = true
				delta.HasOnline = true
			}
			frame.ServerDeltas = append(frame.ServerDeltas, delta)
			continue
		}
		var server wireServer
		if err := json.Unmarshal(value, &server); err != nil {
			return nil, fmt.Errorf("parse %s: invalid object for server %q: %w", TypeServerUpdate, id, err)
		}
		frame.ServerDeltas = append(frame.ServerDeltas, server.toDelta(id))
	}
	return frame, nil
}

// flexInt accepts JSON numbers and numeric strings; the authority emits both.
type flexInt struct {
	value   int64
	present bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("numeric string expected, got %q", raw)
		}
		f.value = int64(parsed)
		f.present = true
		return nil
	}
	var parsed float64
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return err
	}
	f.value = int64(parsed)
	f.present = true
	return nil
}

// flexBool accepts JSON booleans and their string renderings.
type flexBool struct {
	value   bool
	present bool
}

func (f *flexBool) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("boolean string expected, got %q", raw)
		}
		f.value = parsed
		f.present = true
		return nil
	}
	var parsed bool
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return err
	}
	f.value = parsed
	f.present = true
	return nil
}

// flexTime accepts epoch milliseconds as a number or numeric string.
type flexTime struct {
	value *time.Time
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	var millis flexInt
	if err := millis.UnmarshalJSON(data); err != nil {
		return err
	}
	if !millis.present || millis.value <= 0 {
		return nil
	}
	at := time.UnixMilli(millis.value).UTC()
	f.value = &at
	return nil
}
