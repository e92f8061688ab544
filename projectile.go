package main

import "time"

const (
	DefaultMaxDist   = 800.0 // default maximum travel distance
	ProjectileMaxAge = 10 * time.Second
	HitRadius        = 30.0
	ProjectileDamage = 300
)

// Projectile is a pierce-through bullet. It can damage several players
// over its flight but each of them at most once.
type Projectile struct {
	X, Y           float64
	DX, DY         float64
	Owner          string
	StartX, StartY float64
	MaxDist        float64
	CreatedAt      time.Time
	hits           map[string]struct{}
}

// NewProjectile spawns a projectile at the shooter's current position.
func NewProjectile(owner *Player, dx, dy, maxDist float64) *Projectile {
	if maxDist <= 0 {
		maxDist = DefaultMaxDist
	}
	return &Projectile{
		X:         owner.X,
		Y:         owner.Y,
		DX:        dx,
		DY:        dy,
		Owner:     owner.Name,
		StartX:    owner.X,
		StartY:    owner.Y,
		MaxDist:   maxDist,
		CreatedAt: time.Now(),
		hits:      make(map[string]struct{}),
	}
}

// Advance moves the projectile one tick and reports whether it is still
// live. A projectile expires when it leaves the map, exceeds its travel
// range, or outlives the absolute age ceiling.
func (b *Projectile) Advance(now time.Time) bool {
	b.X += b.DX
	b.Y += b.DY
	if b.X <= 0 || b.X >= MapWidth || b.Y <= 0 || b.Y >= MapHeight {
		return false
	}
	if Distance(b.X, b.Y, b.StartX, b.StartY) >= b.MaxDist {
		return false
	}
	if now.Sub(b.CreatedAt) >= ProjectileMaxAge {
		return false
	}
	return true
}

// HasHit reports whether the projectile already damaged the named player.
func (b *Projectile) HasHit(name string) bool {
	_, ok := b.hits[name]
	return ok
}

// MarkHit records the named player in the hit set.
func (b *Projectile) MarkHit(name string) {
	b.hits[name] = struct{}{}
}

// HitCount returns the number of distinct players damaged so far.
func (b *Projectile) HitCount() int {
	return len(b.hits)
}

// ToState converts to protocol state.
func (b *Projectile) ToState() BulletState {
	return BulletState{
		X:     b.X,
		Y:     b.Y,
		DX:    b.DX,
		DY:    b.DY,
		Owner: b.Owner,
	}
}
