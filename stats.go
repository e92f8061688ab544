package main

import (
	"log"
	"sync"
	"time"
)

// StatsReport carries one player's accumulated room stats, reported on
// departure. Each report also counts as one game played.
type StatsReport struct {
	PlayerID int64
	Kills    int
	Deaths   int
	Damage   int
}

// StatsSink persists departure reports with batched background writes
// so the game loop and disconnect paths never block on the database.
type StatsSink struct {
	db      *DB
	reports chan StatsReport
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewStatsSink creates and starts the background writer.
func NewStatsSink(db *DB) *StatsSink {
	s := &StatsSink{
		db:      db,
		reports: make(chan StatsReport, 256),
		stop:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writer()
	return s
}

// Report enqueues a departure report without blocking. Reports for
// unknown accounts (PlayerID 0) are skipped.
func (s *StatsSink) Report(r StatsReport) {
	if r.PlayerID == 0 {
		return
	}
	select {
	case s.reports <- r:
	default:
		// Channel full: drop the report rather than blocking the caller
		log.Printf("stats: report queue full, dropping report for player %d", r.PlayerID)
	}
}

// Stop drains pending reports and shuts the writer down. Reports
// arriving after Stop are accepted but no longer persisted.
func (s *StatsSink) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// writer batches reports and flushes them periodically.
func (s *StatsSink) writer() {
	defer s.wg.Done()

	batch := make([]StatsReport, 0, 32)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case r := <-s.reports:
			batch = append(batch, r)
			if len(batch) >= 32 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.stop:
			// Drain without closing the channel: a disconnect still in
			// flight may Report after Stop, which must stay a safe
			// no-op instead of a send on a closed channel.
			for {
				select {
				case r := <-s.reports:
					batch = append(batch, r)
				default:
					if len(batch) > 0 {
						s.flush(batch)
					}
					return
				}
			}
		}
	}
}

func (s *StatsSink) flush(batch []StatsReport) {
	if s.db == nil {
		return
	}
	for _, r := range batch {
		if err := s.db.ApplyRoomStats(r.PlayerID, r.Kills, r.Deaths, r.Damage); err != nil {
			log.Printf("stats: update for player %d: %v", r.PlayerID, err)
		}
	}
}
