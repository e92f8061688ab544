package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub, clientDir, adminPassword string) *http.ServeMux {
	mux := http.NewServeMux()

	if clientDir != "" {
		fs := http.FileServer(http.Dir(clientDir))
		mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-cache")
			fs.ServeHTTP(w, r)
		}))
	}

	// Accounts
	mux.HandleFunc("POST /api/register", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Email    string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "detail": "bad request"})
			return
		}
		_, token, err := hub.auth.Register(req.Username, req.Password, req.Email)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "detail": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true, "session_token": token, "username": req.Username,
		})
	})

	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "detail": "bad request"})
			return
		}
		id, token, err := hub.auth.Login(req.Username, req.Password, extractIP(r))
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "detail": err.Error()})
			return
		}
		stats, _ := hub.db.GetStats(id)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true, "session_token": token, "username": req.Username, "stats": stats,
		})
	})

	mux.HandleFunc("GET /api/user/{token}", func(w http.ResponseWriter, r *http.Request) {
		id, username, err := hub.auth.VerifySession(r.PathValue("token"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "detail": "invalid session"})
			return
		}
		stats, _ := hub.db.GetStats(id)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"username": username, "stats": stats,
		})
	})

	mux.HandleFunc("GET /api/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		entries, err := hub.db.GetLeaderboard(r.URL.Query().Get("by"), 20)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "error": "database error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": entries})
	})

	// Rooms
	mux.HandleFunc("GET /api/rooms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": hub.registry.ListRooms()})
	})

	mux.HandleFunc("POST /api/rooms/create", func(w http.ResponseWriter, r *http.Request) {
		_, _, err := hub.auth.VerifySession(r.URL.Query().Get("session_token"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "error": "invalid session"})
			return
		}
		var req struct {
			RoomName   string `json:"room_name"`
			MaxPlayers int    `json:"max_players"`
			Password   string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "bad request"})
			return
		}
		if req.RoomName == "" {
			req.RoomName = "Arena"
		}
		if len(req.RoomName) > 30 {
			req.RoomName = req.RoomName[:30]
		}
		if req.MaxPlayers < 2 || req.MaxPlayers > 16 {
			req.MaxPlayers = 8
		}
		room, err := hub.registry.CreateRoom(req.RoomName, req.MaxPlayers, req.Password)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "room_id": room.ID})
	})

	mux.HandleFunc("POST /api/rooms/{id}/join", func(w http.ResponseWriter, r *http.Request) {
		_, username, err := hub.auth.VerifySession(r.URL.Query().Get("session_token"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "error": "invalid session"})
			return
		}
		var req struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "bad request"})
			return
		}
		departed, err := hub.registry.Join(r.PathValue("id"), username, req.Password)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": err.Error()})
			return
		}
		hub.ReportDeparture(departed)
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	})

	mux.HandleFunc("POST /api/rooms/{id}/leave", func(w http.ResponseWriter, r *http.Request) {
		_, username, err := hub.auth.VerifySession(r.URL.Query().Get("session_token"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "error": "invalid session"})
			return
		}
		hub.DepartPlayer(username)
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	})

	mux.HandleFunc("GET /api/rooms/{id}/qr", func(w http.ResponseWriter, r *http.Request) {
		room := hub.registry.GetRoom(r.PathValue("id"))
		if room == nil {
			http.NotFound(w, r)
			return
		}
		joinURL := fmt.Sprintf("http://%s/?room=%s", r.Host, room.ID)
		png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "qr encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})

	// Admin maintenance
	checkAdmin := func(w http.ResponseWriter, r *http.Request) bool {
		var req struct {
			AdminPassword string `json:"admin_password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || adminPassword == "" || req.AdminPassword != adminPassword {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{"success": false, "error": "forbidden"})
			return false
		}
		return true
	}

	mux.HandleFunc("POST /api/admin/stats", func(w http.ResponseWriter, r *http.Request) {
		if !checkAdmin(w, r) {
			return
		}
		counts, err := hub.db.TableCounts()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "error": "database error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"tables":  counts,
			"rooms":   hub.registry.RoomCount(),
			"conns":   hub.TotalConns(),
		})
	})

	mux.HandleFunc("POST /api/admin/clear", func(w http.ResponseWriter, r *http.Request) {
		if !checkAdmin(w, r) {
			return
		}
		if err := hub.db.ClearAll(); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "error": "database error"})
			return
		}
		log.Printf("admin: database cleared by %s", extractIP(r))
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	})

	// WebSocket endpoint
	mux.HandleFunc("GET /ws/{roomID}", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}
		hub.TrackConnect(ip)

		roomID := r.PathValue("roomID")
		binary := r.URL.Query().Get("fmt") == "msgpack"
		admitClient(hub, conn, ip, roomID, r.URL.Query().Get("session_token"), binary)
	})

	return mux
}

// admitClient runs the admission checks on a freshly upgraded
// connection. A rejected connection is closed with a distinct close code
// per cause before the simulation ever sees it.
func admitClient(hub *Hub, conn *websocket.Conn, ip, roomID, token string, binary bool) {
	reject := func(code int, reason string) {
		msg := websocket.FormatCloseMessage(code, reason)
		conn.WriteMessage(websocket.CloseMessage, msg)
		conn.Close()
		hub.TrackDisconnect(ip)
	}

	accountID, username, err := hub.auth.VerifySession(token)
	if err != nil {
		reject(CloseInvalidSession, "invalid session")
		return
	}

	client := NewClient(hub, conn, ip, binary)
	_, err = hub.registry.Attach(roomID, username, accountID, client)
	switch {
	case err == nil:
	case err == ErrRoomNotFound:
		reject(CloseRoomNotFound, "room not found")
		return
	case err == ErrWrongRoom:
		reject(CloseWrongRoom, "join the room first")
		return
	case err == ErrRoomFull:
		reject(CloseRoomFull, "room full")
		return
	default:
		reject(CloseRoomNotFound, "admission failed")
		return
	}

	client.playerName = username
	client.accountID = accountID
	client.roomID = roomID
	client.room = hub.registry.GetRoom(roomID)

	go client.WritePump()
	go client.ReadPump()
}
