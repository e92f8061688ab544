package main

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const TickInterval = 20 * time.Millisecond // 50 Hz

// Broadcaster is the outbound side of a client connection.
type Broadcaster interface {
	SendJSON(msg interface{})
	SendRaw(data []byte)
	SendBinary(data []byte)
	WantsBinary() bool
}

// Room is one isolated simulation instance. The mutex serializes the
// tick loop against the per-connection intent handlers: each room's
// mutable state has exactly one writer at a time.
type Room struct {
	ID         string
	Name       string
	MaxPlayers int
	Password   string
	CreatedAt  time.Time

	mu      sync.Mutex
	players map[string]*Player
	bullets []*Projectile
	conns   map[string]Broadcaster
	running bool
	stop    chan struct{}
}

// NewRoom creates an empty room. The simulation loop is not started
// until the first player connects.
func NewRoom(id, name string, maxPlayers int, password string) *Room {
	return &Room{
		ID:         id,
		Name:       name,
		MaxPlayers: maxPlayers,
		Password:   password,
		CreatedAt:  time.Now(),
		players:    make(map[string]*Player),
		conns:      make(map[string]Broadcaster),
	}
}

// Run drives the simulation at the fixed tick rate until Stop.
func (r *Room) Run() {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.tick(time.Now())
		case <-r.stop:
			return
		}
	}
}

// Start launches the loop if it is not already running. The registry
// calls this when the first player connects; an empty room has no
// simulation work scheduled.
func (r *Room) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stop = make(chan struct{})
	go r.Run()
}

// Stop terminates the loop.
func (r *Room) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.stop)
}

// AddPlayer spawns a player and registers their connection. Returns nil
// if the room is at capacity.
func (r *Room) AddPlayer(name string, accountID int64, conn Broadcaster) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) >= r.MaxPlayers {
		return nil
	}
	p := NewPlayer(name, accountID)
	r.players[name] = p
	r.conns[name] = conn
	return p
}

// RemovePlayer removes the player and their connection together and
// returns the removed entity (nil if absent), plus whether the room is
// now empty. The caller reports departure stats and tears the room down.
func (r *Room) RemovePlayer(name string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.players[name]
	delete(r.players, name)
	delete(r.conns, name)
	return p, len(r.players) == 0
}

// PlayerCount returns the number of players in the room.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// HandleMove stores the commanded velocity intent verbatim. Speed is not
// validated server-side; positions are clamped at integration instead.
func (r *Room) HandleMove(name string, msg MoveMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[name]
	if !ok {
		return
	}
	p.DX = msg.DX
	p.DY = msg.DY
}

// HandleShoot spawns a projectile at the player's position. Each
// missing axis falls back independently to the stored velocity intent;
// a missing dx whose stored intent is zero falls back to the forward
// speed 10. Firing refreshes the regeneration grace window.
func (r *Room) HandleShoot(name string, msg ShootMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[name]
	if !ok || !p.Alive() {
		return
	}
	dx, dy := p.DX, p.DY
	if msg.DX != nil {
		dx = *msg.DX
	} else if dx == 0 {
		dx = 10
	}
	if msg.DY != nil {
		dy = *msg.DY
	}
	maxDist := DefaultMaxDist
	if msg.MaxDist != nil {
		maxDist = *msg.MaxDist
	}
	r.bullets = append(r.bullets, NewProjectile(p, dx, dy, maxDist))
	p.LastHit = time.Now()
}

// HandleRespawn resets a dead player. No-op while alive.
func (r *Room) HandleRespawn(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[name]; ok {
		p.Respawn()
	}
}

// tick runs one simulation step: integrate players, advance projectiles,
// resolve collisions, regenerate, notify deaths, broadcast.
func (r *Room) tick(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) == 0 {
		return
	}

	for _, p := range r.players {
		p.Integrate()
	}

	kept := r.bullets[:0]
	for _, b := range r.bullets {
		if b.Advance(now) {
			kept = append(kept, b)
		}
	}
	r.bullets = kept

	newlyDead := resolveCollisions(r.players, r.bullets, now)

	for _, p := range r.players {
		p.Regenerate(now)
	}

	for _, name := range newlyDead {
		if conn, ok := r.conns[name]; ok {
			conn.SendJSON(DeathMsg{Type: MsgDeath, Message: "you were killed, send respawn to rejoin the fight"})
		}
	}

	r.broadcast()
}

// snapshot builds the broadcast state. Caller must hold r.mu.
func (r *Room) snapshot() Snapshot {
	s := Snapshot{
		Players: make(map[string]PlayerState, len(r.players)),
		Bullets: make([]BulletState, 0, len(r.bullets)),
		RoomInfo: RoomInfo{
			Name:        r.Name,
			PlayerCount: len(r.players),
			MaxPlayers:  r.MaxPlayers,
		},
	}
	for name, p := range r.players {
		s.Players[name] = p.ToState()
	}
	for _, b := range r.bullets {
		s.Bullets = append(s.Bullets, b.ToState())
	}
	return s
}

// broadcast serializes the snapshot once per encoding and pushes it to
// every connection. A failed or slow connection is skipped; it never
// aborts delivery to the others. Caller must hold r.mu.
func (r *Room) broadcast() {
	state := r.snapshot()

	data, err := json.Marshal(state)
	if err != nil {
		log.Printf("room %s: snapshot marshal: %v", r.ID, err)
		return
	}
	var binData []byte
	for _, conn := range r.conns {
		if conn.WantsBinary() {
			binData, err = msgpack.Marshal(state)
			if err != nil {
				log.Printf("room %s: snapshot msgpack marshal: %v", r.ID, err)
				binData = nil
			}
			break
		}
	}

	for _, conn := range r.conns {
		if conn.WantsBinary() && binData != nil {
			conn.SendBinary(binData)
		} else {
			conn.SendRaw(data)
		}
	}
}
