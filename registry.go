package main

import (
	"errors"
	"sync"
)

const maxRooms = 100

// Admission errors, also mapped to HTTP responses and ws close codes.
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room full")
	ErrWrongPassword = errors.New("wrong password")
	ErrWrongRoom     = errors.New("player does not belong to this room")
	ErrTooManyRooms  = errors.New("too many active rooms")
)

// RoomListing is one entry of the room list API.
type RoomListing struct {
	ID          string `json:"room_id"`
	Name        string `json:"room_name"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	HasPassword bool   `json:"has_password"`
}

// Registry owns the set of rooms and the player -> room membership map.
// Membership transitions (Join, Attach, Remove) all run under the
// registry write lock, so an attach can never land in a room a
// concurrent removal is tearing down. Lock order is registry before
// room, never the reverse; room tick loops take only their own lock.
type Registry struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	playerRoom map[string]string // player name -> room ID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:      make(map[string]*Room),
		playerRoom: make(map[string]string),
	}
}

// CreateRoom creates a new empty room. Its simulation loop starts when
// the first player connects.
func (reg *Registry) CreateRoom(name string, maxPlayers int, password string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if len(reg.rooms) >= maxRooms {
		return nil, ErrTooManyRooms
	}
	room := NewRoom(GenerateUUID(), name, maxPlayers, password)
	reg.rooms[room.ID] = room
	return room, nil
}

// GetRoom returns a room by ID, or nil.
func (reg *Registry) GetRoom(id string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[id]
}

// Join records room membership for a player after checking password and
// capacity. A player occupies at most one room: joining a different
// room takes them out of the old one. The old room's entity is returned
// so the caller can report its accumulated stats; nil if there was
// nothing to leave.
func (reg *Registry) Join(roomID, playerName, password string) (*Player, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.Password != "" && room.Password != password {
		return nil, ErrWrongPassword
	}
	if room.PlayerCount() >= room.MaxPlayers {
		return nil, ErrRoomFull
	}

	var departed *Player
	if prev := reg.playerRoom[playerName]; prev != "" && prev != roomID {
		departed = reg.detachLocked(prev, playerName)
	}
	reg.playerRoom[playerName] = roomID
	return departed, nil
}

// Membership returns the room ID the player currently occupies, or "".
func (reg *Registry) Membership(playerName string) string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.playerRoom[playerName]
}

// Attach registers a live connection for an already-joined player and
// spawns their entity. Runs entirely under the registry lock so the add
// serializes with a concurrent removal's empty-room teardown: the room
// looked up here is still registered when the player lands in it.
func (reg *Registry) Attach(roomID, playerName string, accountID int64, conn Broadcaster) (*Player, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if reg.playerRoom[playerName] != roomID {
		return nil, ErrWrongRoom
	}
	p := room.AddPlayer(playerName, accountID, conn)
	if p == nil {
		return nil, ErrRoomFull
	}
	room.Start()
	return p, nil
}

// Remove takes the player out of their current room, clears the
// membership entry, and tears the room down if it became empty. Returns
// the removed entity so the caller can report departure stats.
func (reg *Registry) Remove(playerName string) *Player {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	roomID, ok := reg.playerRoom[playerName]
	if !ok {
		return nil
	}
	delete(reg.playerRoom, playerName)
	return reg.detachLocked(roomID, playerName)
}

// detachLocked pulls the player's entity out of a room and deletes the
// room if it is now empty. Caller must hold reg.mu.
func (reg *Registry) detachLocked(roomID, playerName string) *Player {
	room := reg.rooms[roomID]
	if room == nil {
		return nil
	}
	p, empty := room.RemovePlayer(playerName)
	if empty {
		delete(reg.rooms, roomID)
		room.Stop()
	}
	return p
}

// ListRooms returns the lobby view of all rooms.
func (reg *Registry) ListRooms() []RoomListing {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	list := make([]RoomListing, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		list = append(list, RoomListing{
			ID:          room.ID,
			Name:        room.Name,
			PlayerCount: room.PlayerCount(),
			MaxPlayers:  room.MaxPlayers,
			HasPassword: room.Password != "",
		})
	}
	return list
}

// RoomCount returns the number of active rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}
