package main

import (
	"encoding/json"
	"fmt"
)

// Client -> server message types
const (
	MsgMove    = "move"
	MsgShoot   = "shoot"
	MsgRespawn = "respawn"
)

// Server -> client out-of-band message types
const (
	MsgDeath = "death"
)

// WebSocket close codes for rejected connections
const (
	CloseInvalidSession = 4001
	CloseWrongRoom      = 4002
	CloseRoomFull       = 4003
	CloseRoomNotFound   = 4004
)

// inEnvelope carries the type tag of an inbound message.
type inEnvelope struct {
	Type string `json:"type"`
}

// MoveMsg sets the player's velocity intent.
type MoveMsg struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// ShootMsg spawns a projectile. Direction and range are optional; a
// missing direction falls back to the player's velocity intent.
type ShootMsg struct {
	DX      *float64 `json:"dx"`
	DY      *float64 `json:"dy"`
	MaxDist *float64 `json:"max_dist"`
}

// Intent is a decoded inbound message.
type Intent struct {
	Type  string
	Move  MoveMsg
	Shoot ShootMsg
}

// DecodeIntent strictly decodes one inbound message. Anything that is
// not well-formed JSON of a known shape is rejected; client input is
// never interpreted as anything but data.
func DecodeIntent(raw []byte) (Intent, error) {
	var env inEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Intent{}, err
	}
	in := Intent{Type: env.Type}
	switch env.Type {
	case MsgMove:
		if err := json.Unmarshal(raw, &in.Move); err != nil {
			return Intent{}, err
		}
	case MsgShoot:
		if err := json.Unmarshal(raw, &in.Shoot); err != nil {
			return Intent{}, err
		}
	case MsgRespawn:
	default:
		return Intent{}, fmt.Errorf("unknown message type %q", env.Type)
	}
	return in, nil
}

// PlayerState is broadcast per player each tick.
type PlayerState struct {
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	DX     float64 `json:"dx" msgpack:"dx"`
	DY     float64 `json:"dy" msgpack:"dy"`
	HP     int     `json:"hp" msgpack:"hp"`
	Status string  `json:"status" msgpack:"status"`
	Kills  int     `json:"kills" msgpack:"kills"`
	Deaths int     `json:"deaths" msgpack:"deaths"`
}

// BulletState is broadcast per live projectile.
type BulletState struct {
	X     float64 `json:"x" msgpack:"x"`
	Y     float64 `json:"y" msgpack:"y"`
	DX    float64 `json:"dx" msgpack:"dx"`
	DY    float64 `json:"dy" msgpack:"dy"`
	Owner string  `json:"owner" msgpack:"owner"`
}

// RoomInfo is the room metadata block of a snapshot.
type RoomInfo struct {
	Name        string `json:"name" msgpack:"name"`
	PlayerCount int    `json:"player_count" msgpack:"player_count"`
	MaxPlayers  int    `json:"max_players" msgpack:"max_players"`
}

// Snapshot is the full room state broadcast once per tick.
type Snapshot struct {
	Players  map[string]PlayerState `json:"players" msgpack:"players"`
	Bullets  []BulletState          `json:"bullets" msgpack:"bullets"`
	RoomInfo RoomInfo               `json:"room_info" msgpack:"room_info"`
}

// DeathMsg is sent to the dying player's connection only.
type DeathMsg struct {
	Type    string `json:"type" msgpack:"type"`
	Message string `json:"message" msgpack:"message"`
}
