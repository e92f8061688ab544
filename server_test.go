package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// ---------- helpers ----------

// startTestServer spins up an httptest.Server over a fresh database and
// returns the server, its WebSocket base URL, and the hub.
func startTestServer(t *testing.T) (*httptest.Server, string, *Hub) {
	t.Helper()

	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	hub := NewHub(db)

	mux := SetupRoutes(hub, "", "hunter2")
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		hub.stats.Stop()
		db.Close()
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL, hub
}

// postJSON posts a JSON body and decodes the JSON response.
func postJSON(t *testing.T, url string, body interface{}) map[string]interface{} {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var m map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return m
}

// registerAccount registers a fresh account and returns its session token.
func registerAccount(t *testing.T, srv *httptest.Server, username string) string {
	t.Helper()
	m := postJSON(t, srv.URL+"/api/register", map[string]string{
		"username": username, "password": "secret",
	})
	if m["success"] != true {
		t.Fatalf("register failed: %v", m)
	}
	return m["session_token"].(string)
}

// createRoom creates a room via the REST API and returns its ID.
func createRoom(t *testing.T, srv *httptest.Server, token, name string) string {
	t.Helper()
	m := postJSON(t, srv.URL+"/api/rooms/create?session_token="+token, map[string]interface{}{
		"room_name": name, "max_players": 4,
	})
	if m["success"] != true {
		t.Fatalf("create room failed: %v", m)
	}
	return m["room_id"].(string)
}

// joinRoom records membership via the REST API.
func joinRoom(t *testing.T, srv *httptest.Server, token, roomID string) {
	t.Helper()
	m := postJSON(t, srv.URL+"/api/rooms/"+roomID+"/join?session_token="+token, map[string]string{})
	if m["success"] != true {
		t.Fatalf("join room failed: %v", m)
	}
}

// dialRoom opens the game WebSocket for an admitted player.
func dialRoom(t *testing.T, wsURL, roomID, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/"+roomID+"?session_token="+token, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	return conn
}

// expectCloseCode dials and asserts the connection is rejected with the
// given close code.
func expectCloseCode(t *testing.T, wsURL, roomID, token string, code int) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/"+roomID+"?session_token="+token, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, code) {
		t.Fatalf("expected close code %d, got %v", code, err)
	}
}

// readSnapshot reads frames until a snapshot arrives.
func readSnapshot(t *testing.T, conn *websocket.Conn) Snapshot {
	t.Helper()
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS: %v", err)
		}
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			continue
		}
		if snap.Players != nil {
			return snap
		}
	}
}

// ---------- REST API ----------

func TestRegisterLoginFlow(t *testing.T) {
	srv, _, _ := startTestServer(t)

	token := registerAccount(t, srv, "alice")
	if token == "" {
		t.Fatal("expected session token")
	}

	m := postJSON(t, srv.URL+"/api/login", map[string]string{
		"username": "alice", "password": "secret",
	})
	if m["success"] != true {
		t.Fatalf("login failed: %v", m)
	}

	m = postJSON(t, srv.URL+"/api/login", map[string]string{
		"username": "alice", "password": "wrong",
	})
	if m["success"] != false {
		t.Error("wrong password should not log in")
	}
}

func TestUserEndpoint(t *testing.T) {
	srv, _, _ := startTestServer(t)
	token := registerAccount(t, srv, "alice")

	resp, err := http.Get(srv.URL + "/api/user/" + token)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var m map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&m)
	if m["username"] != "alice" {
		t.Errorf("expected username alice, got %v", m["username"])
	}

	resp2, _ := http.Get(srv.URL + "/api/user/garbage")
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token should be 401, got %d", resp2.StatusCode)
	}
}

func TestRoomListAndCreate(t *testing.T) {
	srv, _, _ := startTestServer(t)
	token := registerAccount(t, srv, "alice")

	resp, _ := http.Get(srv.URL + "/api/rooms")
	var m map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&m)
	resp.Body.Close()
	if rooms := m["rooms"].([]interface{}); len(rooms) != 0 {
		t.Errorf("expected empty room list, got %d", len(rooms))
	}

	createRoom(t, srv, token, "Test Arena")

	resp, _ = http.Get(srv.URL + "/api/rooms")
	json.NewDecoder(resp.Body).Decode(&m)
	resp.Body.Close()
	rooms := m["rooms"].([]interface{})
	if len(rooms) != 1 {
		t.Fatalf("expected 1 room, got %d", len(rooms))
	}
	info := rooms[0].(map[string]interface{})
	if info["room_name"] != "Test Arena" || info["max_players"].(float64) != 4 {
		t.Errorf("room listing mismatch: %v", info)
	}
}

func TestCreateRoomRequiresSession(t *testing.T) {
	srv, _, _ := startTestServer(t)

	raw, _ := json.Marshal(map[string]string{"room_name": "Nope"})
	resp, err := http.Post(srv.URL+"/api/rooms/create?session_token=garbage", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestJoinPasswordProtectedRoom(t *testing.T) {
	srv, _, _ := startTestServer(t)
	token := registerAccount(t, srv, "alice")

	m := postJSON(t, srv.URL+"/api/rooms/create?session_token="+token, map[string]interface{}{
		"room_name": "Private", "max_players": 4, "password": "pw",
	})
	roomID := m["room_id"].(string)

	m = postJSON(t, srv.URL+"/api/rooms/"+roomID+"/join?session_token="+token, map[string]string{"password": "bad"})
	if m["success"] != false {
		t.Error("wrong room password should be rejected")
	}
	m = postJSON(t, srv.URL+"/api/rooms/"+roomID+"/join?session_token="+token, map[string]string{"password": "pw"})
	if m["success"] != true {
		t.Errorf("correct room password should be accepted: %v", m)
	}
}

func TestQREndpoint(t *testing.T) {
	srv, _, _ := startTestServer(t)
	token := registerAccount(t, srv, "alice")
	roomID := createRoom(t, srv, token, "QR Arena")

	resp, err := http.Get(srv.URL + "/api/rooms/" + roomID + "/qr")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}

	resp2, _ := http.Get(srv.URL + "/api/rooms/nonexistent/qr")
	defer resp2.Body.Close()
	if resp2.StatusCode != 404 {
		t.Errorf("missing room should be 404, got %d", resp2.StatusCode)
	}
}

func TestAdminEndpoints(t *testing.T) {
	srv, _, _ := startTestServer(t)

	m := postJSON(t, srv.URL+"/api/admin/stats", map[string]string{"admin_password": "wrong"})
	if m["success"] != false {
		t.Error("wrong admin password should be rejected")
	}

	m = postJSON(t, srv.URL+"/api/admin/stats", map[string]string{"admin_password": "hunter2"})
	if m["success"] != true {
		t.Fatalf("admin stats failed: %v", m)
	}
	if m["tables"] == nil {
		t.Error("admin stats should report table counts")
	}

	registerAccount(t, srv, "alice")
	m = postJSON(t, srv.URL+"/api/admin/clear", map[string]string{"admin_password": "hunter2"})
	if m["success"] != true {
		t.Fatalf("admin clear failed: %v", m)
	}
	m = postJSON(t, srv.URL+"/api/admin/stats", map[string]string{"admin_password": "hunter2"})
	tables := m["tables"].(map[string]interface{})
	if tables["players"].(float64) != 0 {
		t.Error("clear should wipe player accounts")
	}
}

// ---------- WebSocket admission ----------

func TestAdmissionInvalidSession(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	token := registerAccount(t, srv, "alice")
	roomID := createRoom(t, srv, token, "Arena")

	expectCloseCode(t, wsURL, roomID, "garbage", CloseInvalidSession)
}

func TestAdmissionRoomNotFound(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	token := registerAccount(t, srv, "alice")

	expectCloseCode(t, wsURL, "no-such-room", token, CloseRoomNotFound)
}

func TestAdmissionRequiresJoin(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	token := registerAccount(t, srv, "alice")
	roomID := createRoom(t, srv, token, "Arena")

	// Connecting without joining first is rejected.
	expectCloseCode(t, wsURL, roomID, token, CloseWrongRoom)
}

// ---------- Gameplay over WebSocket ----------

func TestSnapshotBroadcast(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	token := registerAccount(t, srv, "alice")
	roomID := createRoom(t, srv, token, "Arena")
	joinRoom(t, srv, token, roomID)

	conn := dialRoom(t, wsURL, roomID, token)
	defer conn.Close()

	snap := readSnapshot(t, conn)
	p, ok := snap.Players["alice"]
	if !ok {
		t.Fatal("snapshot should contain the connected player")
	}
	if p.HP != PlayerMaxHP || p.Status != "alive" {
		t.Errorf("fresh player state mismatch: %+v", p)
	}
	if snap.RoomInfo.Name != "Arena" || snap.RoomInfo.PlayerCount != 1 {
		t.Errorf("room info mismatch: %+v", snap.RoomInfo)
	}
}

func TestMoveIntentOverWS(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	token := registerAccount(t, srv, "alice")
	roomID := createRoom(t, srv, token, "Arena")
	joinRoom(t, srv, token, roomID)

	conn := dialRoom(t, wsURL, roomID, token)
	defer conn.Close()

	first := readSnapshot(t, conn)
	if err := conn.WriteJSON(map[string]interface{}{"type": "move", "dx": 5.0, "dy": 0.0}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := readSnapshot(t, conn)
		if snap.Players["alice"].X != first.Players["alice"].X {
			return
		}
	}
	t.Error("player position should change after a move intent")
}

func TestShootIntentOverWS(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	token := registerAccount(t, srv, "alice")
	roomID := createRoom(t, srv, token, "Arena")
	joinRoom(t, srv, token, roomID)

	conn := dialRoom(t, wsURL, roomID, token)
	defer conn.Close()

	readSnapshot(t, conn)
	if err := conn.WriteJSON(map[string]interface{}{"type": "shoot", "dx": 10.0, "dy": 0.0}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := readSnapshot(t, conn)
		if len(snap.Bullets) > 0 {
			if snap.Bullets[0].Owner != "alice" {
				t.Errorf("bullet owner mismatch: %+v", snap.Bullets[0])
			}
			return
		}
	}
	t.Error("shoot intent should spawn a projectile")
}

func TestBinarySnapshotOverWS(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	token := registerAccount(t, srv, "alice")
	roomID := createRoom(t, srv, token, "Arena")
	joinRoom(t, srv, token, roomID)

	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL+"/"+roomID+"?session_token="+token+"&fmt=msgpack", nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("expected binary frame, got type %d", msgType)
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("msgpack unmarshal: %v", err)
	}
	if _, ok := snap.Players["alice"]; !ok {
		t.Error("binary snapshot should contain the connected player")
	}
}

func TestDisconnectTearsDownRoom(t *testing.T) {
	srv, wsURL, hub := startTestServer(t)
	token := registerAccount(t, srv, "alice")
	roomID := createRoom(t, srv, token, "Arena")
	joinRoom(t, srv, token, roomID)

	conn := dialRoom(t, wsURL, roomID, token)
	readSnapshot(t, conn)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.registry.GetRoom(roomID) == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("empty room should be torn down after the last disconnect")
}

func TestRESTLeaveReportsStats(t *testing.T) {
	srv, _, hub := startTestServer(t)
	token := registerAccount(t, srv, "alice")
	roomID := createRoom(t, srv, token, "Arena")
	joinRoom(t, srv, token, roomID)

	// Attach without a real socket, in the way the ws handler would.
	if _, err := hub.registry.Attach(roomID, "alice", 0, &mockBroadcaster{}); err != nil {
		t.Fatalf("attach: %v", err)
	}

	m := postJSON(t, srv.URL+"/api/rooms/"+roomID+"/leave?session_token="+token, map[string]string{})
	if m["success"] != true {
		t.Fatalf("leave failed: %v", m)
	}
	if hub.registry.Membership("alice") != "" {
		t.Error("membership should be cleared after leave")
	}
}
