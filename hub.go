package main

import "sync"

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Hub holds the process-wide collaborators and connection accounting.
type Hub struct {
	registry *Registry
	db       *DB
	auth     *Auth
	stats    *StatsSink

	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
}

// NewHub wires the registry, auth, and stats sink around the database.
func NewHub(db *DB) *Hub {
	return &Hub{
		registry: NewRegistry(),
		db:       db,
		auth:     NewAuth(db),
		stats:    NewStatsSink(db),
		ipConns:  make(map[string]int),
	}
}

// CanAccept reports whether a new connection from ip is within limits.
func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	return h.ipConns[ip] < maxConnsPerIP
}

// TrackConnect records a new connection from ip.
func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

// TrackDisconnect records a closed connection from ip.
func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// TotalConns returns the tracked connection count.
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}

// Depart removes the client's player from their room and reports the
// accumulated room stats to the persistent store.
func (h *Hub) Depart(c *Client) {
	if c.playerName == "" {
		return
	}
	h.DepartPlayer(c.playerName)
}

// DepartPlayer handles both ws disconnects and explicit REST leaves.
func (h *Hub) DepartPlayer(name string) {
	h.ReportDeparture(h.registry.Remove(name))
}

// ReportDeparture forwards a removed entity's accumulated room stats to
// the sink. Nil (nothing departed) is a no-op.
func (h *Hub) ReportDeparture(p *Player) {
	if p == nil {
		return
	}
	h.stats.Report(StatsReport{
		PlayerID: p.AccountID,
		Kills:    p.Kills,
		Deaths:   p.Deaths,
		Damage:   p.Damage,
	})
}
