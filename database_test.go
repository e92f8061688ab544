package main

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateAndGetPlayer(t *testing.T) {
	db := testDB(t)

	id, err := db.CreatePlayer("alice", "a@example.com", "hash")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	p, err := db.GetPlayerByUsername("alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p == nil || p.ID != id || p.Email != "a@example.com" {
		t.Errorf("player mismatch: %+v", p)
	}

	missing, err := db.GetPlayerByUsername("bob")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("missing player should be nil")
	}

	exists, err := db.UsernameExists("alice")
	if err != nil || !exists {
		t.Error("alice should exist")
	}
}

func TestStatsAccumulation(t *testing.T) {
	db := testDB(t)
	id, _ := db.CreatePlayer("alice", "", "hash")

	s, err := db.GetStats(id)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if s.GamesPlayed != 0 || s.Kills != 0 {
		t.Errorf("fresh stats should be zero: %+v", s)
	}

	if err := db.ApplyRoomStats(id, 5, 2, 1500); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := db.ApplyRoomStats(id, 1, 0, 300); err != nil {
		t.Fatalf("apply: %v", err)
	}

	s, _ = db.GetStats(id)
	if s.GamesPlayed != 2 || s.Kills != 6 || s.Deaths != 2 || s.DamageDealt != 1800 {
		t.Errorf("accumulated stats mismatch: %+v", s)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	db := testDB(t)
	a, _ := db.CreatePlayer("alice", "", "h")
	b, _ := db.CreatePlayer("bob", "", "h")
	db.ApplyRoomStats(a, 2, 0, 600)
	db.ApplyRoomStats(b, 7, 1, 2100)

	entries, err := db.GetLeaderboard("kills", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Username != "bob" || entries[0].Rank != 1 {
		t.Errorf("expected bob first, got %+v", entries[0])
	}
	if entries[1].Username != "alice" || entries[1].Rank != 2 {
		t.Errorf("expected alice second, got %+v", entries[1])
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	db := testDB(t)

	if db.GetSetting("missing") != "" {
		t.Error("missing setting should be empty")
	}
	if err := db.SetSetting("k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.SetSetting("k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got := db.GetSetting("k"); got != "v2" {
		t.Errorf("expected v2, got %s", got)
	}
}

func TestClearAll(t *testing.T) {
	db := testDB(t)
	db.CreatePlayer("alice", "", "h")

	counts, err := db.TableCounts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["players"] != 1 || counts["stats"] != 1 {
		t.Errorf("pre-clear counts mismatch: %v", counts)
	}

	if err := db.ClearAll(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	counts, _ = db.TableCounts()
	if counts["players"] != 0 || counts["stats"] != 0 {
		t.Errorf("post-clear counts mismatch: %v", counts)
	}
}
