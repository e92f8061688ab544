package main

import (
	"log"
	"time"
)

// resolveCollisions runs the per-tick projectile/player pass. Every
// projectile damages every player it overlaps, except its owner and
// players it already hit. All overlaps found in the same tick apply
// independently; there is no early exit after a kill. Returns the names
// of players whose health crossed to zero this tick.
func resolveCollisions(players map[string]*Player, bullets []*Projectile, now time.Time) []string {
	var newlyDead []string
	for name, p := range players {
		for _, b := range bullets {
			if b.Owner == name || b.HasHit(name) {
				continue
			}
			if Distance(p.X, p.Y, b.X, b.Y) >= HitRadius {
				continue
			}
			owner := players[b.Owner] // nil if the shooter already left
			if owner == p {
				// Unreachable given the owner check above; skip the hit
				// rather than taking the room down.
				log.Printf("invariant violation: projectile from %q hit its owner", b.Owner)
				continue
			}

			wasAlive := p.Alive()
			b.MarkHit(name)
			p.HP -= ProjectileDamage
			p.LastHit = now
			if owner != nil {
				owner.Damage += ProjectileDamage
			}
			if wasAlive && !p.Alive() {
				p.Deaths++
				if owner != nil {
					owner.Kills++
				}
				newlyDead = append(newlyDead, name)
			}
		}
	}
	return newlyDead
}
