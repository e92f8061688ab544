package main

import "time"

const (
	PlayerMaxHP  = 1000
	PlayerRadius = 30.0
	MapWidth     = 1920.0
	MapHeight    = 1080.0
	SpawnMargin  = 100.0 // spawn positions stay this far from the edges
	EdgeMargin   = 20.0  // movement clamp margin
)

const (
	RegenDelay   = 5 * time.Second // no regen this long after damage or firing
	RegenPerTick = 10
)

// Player represents one player inside a room. All fields are guarded by
// the owning Room's mutex.
type Player struct {
	Name      string
	AccountID int64 // persistent account, 0 if unknown
	X, Y      float64
	DX, DY    float64 // velocity intent, applied once per tick
	HP        int
	LastHit   time.Time // last damage taken or shot fired
	Kills     int
	Deaths    int
	Damage    int // damage dealt, reported to stats on departure
}

// NewPlayer spawns a player at full health at a random position inside
// the map interior.
func NewPlayer(name string, accountID int64) *Player {
	return &Player{
		Name:      name,
		AccountID: accountID,
		X:         SpawnMargin + randFloat()*(MapWidth-2*SpawnMargin),
		Y:         SpawnMargin + randFloat()*(MapHeight-2*SpawnMargin),
		HP:        PlayerMaxHP,
		LastHit:   time.Now(),
	}
}

// Alive reports whether the player is alive (hp above zero).
func (p *Player) Alive() bool {
	return p.HP > 0
}

// Status returns the broadcast status string.
func (p *Player) Status() string {
	if p.Alive() {
		return "alive"
	}
	return "dead"
}

// Integrate applies the velocity intent for one tick, clamping each axis
// to the playable rectangle.
func (p *Player) Integrate() {
	p.X = Clamp(p.X+p.DX, EdgeMargin, MapWidth-EdgeMargin)
	p.Y = Clamp(p.Y+p.DY, EdgeMargin, MapHeight-EdgeMargin)
}

// Regenerate restores health once the grace window after the last hit or
// shot has passed. Dead players do not regenerate; only an explicit
// respawn brings them back.
func (p *Player) Regenerate(now time.Time) {
	if !p.Alive() {
		return
	}
	if p.HP >= PlayerMaxHP {
		return
	}
	if now.Sub(p.LastHit) <= RegenDelay {
		return
	}
	p.HP += RegenPerTick
	if p.HP > PlayerMaxHP {
		p.HP = PlayerMaxHP
	}
}

// Respawn resets a dead player to full health at a fresh random position.
// No-op while the player is still alive.
func (p *Player) Respawn() {
	if p.Alive() {
		return
	}
	p.HP = PlayerMaxHP
	p.X = SpawnMargin + randFloat()*(MapWidth-2*SpawnMargin)
	p.Y = SpawnMargin + randFloat()*(MapHeight-2*SpawnMargin)
	p.DX = 0
	p.DY = 0
	p.LastHit = time.Now()
}

// ToState converts to protocol state. Health is clamped so a negative
// internal value is never observable.
func (p *Player) ToState() PlayerState {
	hp := p.HP
	if hp < 0 {
		hp = 0
	}
	return PlayerState{
		X:      p.X,
		Y:      p.Y,
		DX:     p.DX,
		DY:     p.DY,
		HP:     hp,
		Status: p.Status(),
		Kills:  p.Kills,
		Deaths: p.Deaths,
	}
}
