// Package monitor provides a live web view of a running experiment. It
// serves a small dashboard page, a JSON summary API and a WebSocket stream
// of run scores, plus the Prometheus scrape endpoint.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/raamana/psy/results"
)

// SummarySource provides the current experiment summary for the API.
type SummarySource interface {
	Summary() results.Summary
}

// Monitor serves the experiment dashboard. It implements results.Observer,
// so wiring it into a store streams every scored run to connected clients.
type Monitor struct {
	store            SummarySource            // Summary source for the API
	gatherer         prometheus.Gatherer      // Metrics registry served at /metrics
	server           *http.Server             // HTTP server for the dashboard
	upgrader         websocket.Upgrader       // WebSocket upgrader for live updates
	clients          map[*websocket.Conn]bool // Connected WebSocket clients
	clientsMu        sync.RWMutex             // Mutex for client map access
	broadcastChannel chan results.RunScore    // Channel for broadcasting run scores
	stopChannel      chan struct{}            // Channel for shutdown signaling
	isRunning        bool                     // Whether the monitor is running
	mu               sync.RWMutex             // Mutex for monitor state
}

// New creates a monitor for the given store, listening on the given port.
// A nil gatherer disables the /metrics route.
func New(store SummarySource, gatherer prometheus.Gatherer, port int) *Monitor {
	m := &Monitor{
		store:            store,
		gatherer:         gatherer,
		upgrader:         websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:          make(map[*websocket.Conn]bool),
		broadcastChannel: make(chan results.RunScore, 100),
		stopChannel:      make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", m.handleIndex).Methods("GET")
	r.HandleFunc("/api/summary", m.handleSummaryAPI).Methods("GET")
	r.HandleFunc("/ws", m.handleWebSocket).Methods("GET")
	r.HandleFunc("/healthz", m.handleHealthz).Methods("GET")
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	m.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return m
}

// RunScored queues one run score for broadcast. The send never blocks; when
// the channel is full the event is dropped.
func (m *Monitor) RunScored(ev results.RunScore) {
	select {
	case m.broadcastChannel <- ev:
	default:
		// Channel full, skip this update
	}
}

// Start starts the monitor server.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("monitor is already running")
	}

	go m.clientBroadcaster()

	go func() {
		log.Info().
			Str("address", m.server.Addr).
			Msg("Starting experiment monitor")

		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Experiment monitor server failed")
		}
	}()

	m.isRunning = true
	return nil
}

// Stop stops the monitor server gracefully.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return nil
	}

	close(m.stopChannel)

	m.clientsMu.Lock()
	for client := range m.clients {
		client.Close()
	}
	m.clients = make(map[*websocket.Conn]bool)
	m.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown experiment monitor")
		return err
	}

	m.isRunning = false
	log.Info().Msg("Experiment monitor stopped")
	return nil
}

// clientBroadcaster forwards queued run scores to all connected clients.
func (m *Monitor) clientBroadcaster() {
	for {
		select {
		case ev := <-m.broadcastChannel:
			m.broadcastToClients(ev)
		case <-m.stopChannel:
			return
		}
	}
}

// broadcastToClients sends one run score to all connected WebSocket clients.
func (m *Monitor) broadcastToClients(ev results.RunScore) {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal run score for broadcast")
		return
	}

	for client := range m.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			delete(m.clients, client)
		}
	}
}

// handleSummaryAPI serves the current experiment summary as JSON.
func (m *Monitor) handleSummaryAPI(w http.ResponseWriter, r *http.Request) {
	if m.store == nil {
		http.Error(w, "no experiment loaded", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.store.Summary())
}

// handleHealthz reports liveness.
func (m *Monitor) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleWebSocket streams run scores to one client until it disconnects.
func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	m.clientsMu.Lock()
	m.clients[conn] = true
	m.clientsMu.Unlock()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	m.clientsMu.Lock()
	delete(m.clients, conn)
	m.clientsMu.Unlock()
}

// handleIndex serves the dashboard HTML page.
func (m *Monitor) handleIndex(w http.ResponseWriter, r *http.Request) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <title>psy - Experiment Monitor</title>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 1000px; margin: 0 auto; }
        .header { background: #2c3e50; color: white; padding: 16px 20px; border-radius: 8px; margin-bottom: 20px; }
        .header h1 { margin: 0; font-size: 22px; }
        .header .sub { color: #bdc3c7; font-size: 13px; margin-top: 4px; }
        .card { background: white; border-radius: 8px; padding: 16px 20px; margin-bottom: 20px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
        .card h2 { margin: 0 0 12px 0; font-size: 16px; color: #2c3e50; }
        table { width: 100%; border-collapse: collapse; font-size: 14px; }
        th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #ecf0f1; }
        th { color: #7f8c8d; font-weight: 600; }
        .progress-bar { background: #ecf0f1; border-radius: 4px; height: 18px; overflow: hidden; }
        .progress-fill { background: #27ae60; height: 100%; width: 0; transition: width 0.3s; }
        #feed { list-style: none; margin: 0; padding: 0; font-family: monospace; font-size: 13px; max-height: 260px; overflow-y: auto; }
        #feed li { padding: 3px 0; border-bottom: 1px solid #ecf0f1; }
        .status { float: right; font-size: 12px; }
        .status.connected { color: #27ae60; }
        .status.disconnected { color: #e74c3c; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <span id="ws-status" class="status disconnected">disconnected</span>
            <h1>Experiment Monitor</h1>
            <div class="sub"><span id="exp-id">-</span> &middot; <span id="exp-kind">-</span></div>
        </div>
        <div class="card">
            <h2>Progress</h2>
            <div class="progress-bar"><div id="progress" class="progress-fill"></div></div>
            <div style="margin-top:6px; font-size:13px; color:#7f8c8d;"><span id="count">0</span> runs recorded</div>
        </div>
        <div class="card">
            <h2>Metric summaries</h2>
            <table>
                <thead><tr><th>Metric</th><th>Dataset</th><th>Median</th><th>SD</th><th>N</th></tr></thead>
                <tbody id="summary-body"></tbody>
            </table>
        </div>
        <div class="card">
            <h2>Live runs</h2>
            <ul id="feed"></ul>
        </div>
    </div>
    <script>
        function refreshSummary() {
            fetch('/api/summary').then(function(r) { return r.json(); }).then(function(s) {
                document.getElementById('exp-id').textContent = s.id || '-';
                document.getElementById('exp-kind').textContent = s.kind || '-';
                document.getElementById('count').textContent = s.count || 0;
                const total = (s.num_rep || 0) * ((s.dataset_ids || []).length || 1);
                const pct = total > 0 ? Math.min(100, 100 * (s.count || 0) / total) : 0;
                document.getElementById('progress').style.width = pct + '%';
                const tbody = document.getElementById('summary-body');
                tbody.innerHTML = '';
                for (const row of (s.metrics || [])) {
                    const tr = document.createElement('tr');
                    tr.innerHTML = '<td>' + row.metric + '</td><td>' + row.dataset + '</td>' +
                        '<td>' + row.median.toFixed(4) + '</td><td>' + row.sd.toFixed(4) + '</td>' +
                        '<td>' + row.n + '</td>';
                    tbody.appendChild(tr);
                }
            });
        }

        function connect() {
            const ws = new WebSocket('ws://' + window.location.host + '/ws');
            const status = document.getElementById('ws-status');

            ws.onopen = function() {
                status.textContent = 'connected';
                status.className = 'status connected';
                refreshSummary();
            };
            ws.onmessage = function(event) {
                const ev = JSON.parse(event.data);
                const li = document.createElement('li');
                const scores = Object.entries(ev.scores || {}).map(function(kv) {
                    return kv[0] + '=' + kv[1].toFixed(4);
                }).join(' ');
                li.textContent = 'run ' + ev.run + ' on ' + ev.dataset + ': ' + scores;
                const feed = document.getElementById('feed');
                feed.insertBefore(li, feed.firstChild);
                while (feed.children.length > 50) { feed.removeChild(feed.lastChild); }
                refreshSummary();
            };
            ws.onclose = function() {
                status.textContent = 'disconnected';
                status.className = 'status disconnected';
                setTimeout(connect, 2000);
            };
        }

        connect();
    </script>
</body>
</html>
	`

	t, err := template.New("monitor").Parse(tmpl)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	t.Execute(w, nil)
}
