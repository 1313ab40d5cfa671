package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"

	"github.com/tosih/motronic-fuel-trim/internal/syncutil"
	"github.com/tosih/motronic-fuel-trim/pkg/diag"
	"github.com/tosih/motronic-fuel-trim/pkg/models"
	"github.com/tosih/motronic-fuel-trim/pkg/sim"
	"github.com/tosih/motronic-fuel-trim/pkg/stft"
)

//go:embed templates/*
var templates embed.FS

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// local viewer; allow all
		return true
	},
}

// BinResponse answers a bin lookup
type BinResponse struct {
	Rpm     float64 `json:"rpm"`
	Load    float64 `json:"load"`
	Bin     int     `json:"bin"`
	RpmBin  int     `json:"rpmBin"`
	LoadBin int     `json:"loadBin"`
}

// Server is the live trim viewer. It only reads table snapshots and the
// cycles handed to Publish; it never touches the engine.
type Server struct {
	mux    *http.ServeMux
	cfg    *models.StftConfig
	table  *stft.Table
	faults *diag.Log
	hub    *Hub
	port   int

	mu   syncutil.Mutex
	last *sim.Cycle

	OpenBrowser bool
}

// NewServer builds the viewer for a table and its calibration
func NewServer(cfg *models.StftConfig, table *stft.Table, faults *diag.Log, port int) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		cfg:    cfg,
		table:  table,
		faults: faults,
		hub:    NewHub(),
		port:   port,
	}

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/api/config", s.handleConfig)
	s.mux.HandleFunc("/api/stft", s.handleTable)
	s.mux.HandleFunc("/api/bin", s.handleBin)
	s.mux.HandleFunc("/api/faults", s.handleFaults)
	s.mux.HandleFunc("/api/cycle", s.handleCycle)
	s.mux.HandleFunc("/ws", s.handleWS)

	return s
}

// Handler exposes the routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Publish records the latest cycle and pushes it to live viewers
func (s *Server) Publish(c sim.Cycle) {
	s.mu.Lock()
	s.last = &c
	s.mu.Unlock()

	if s.hub.Len() > 0 {
		s.hub.Broadcast(WSMessage{Type: "cycle", Data: c})
	}
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	url := fmt.Sprintf("http://localhost%s", addr)

	pterm.DefaultHeader.WithFullWidth().
		WithBackgroundStyle(pterm.NewStyle(pterm.BgCyan)).
		WithTextStyle(pterm.NewStyle(pterm.FgBlack)).
		Println("🌐 Fuel Trim Viewer Started")

	pterm.Info.Printf("Live trim viewer at %s\n", url)
	pterm.Println()

	if s.OpenBrowser {
		openBrowser(url)
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	content, err := templates.ReadFile("templates/index.html")
	if err != nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(content)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.cfg)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.table.Snapshot())
}

func (s *Server) handleBin(w http.ResponseWriter, r *http.Request) {
	rpm, err1 := strconv.ParseFloat(r.URL.Query().Get("rpm"), 64)
	load, err2 := strconv.ParseFloat(r.URL.Query().Get("load"), 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "rpm and load query parameters required", http.StatusBadRequest)
		return
	}

	bin, err := stft.ComputeBin(rpm, load, s.cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	rpmBin, loadBin := stft.BinCoords(bin, s.cfg)
	writeJSON(w, BinResponse{Rpm: rpm, Load: load, Bin: bin, RpmBin: rpmBin, LoadBin: loadBin})
}

func (s *Server) handleFaults(w http.ResponseWriter, r *http.Request) {
	if s.faults == nil {
		writeJSON(w, []diag.Fault{})
		return
	}
	writeJSON(w, s.faults.Active())
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	if last == nil {
		http.Error(w, "No cycle yet", http.StatusNotFound)
		return
	}
	writeJSON(w, last)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := s.hub.add(conn)

	// Keep reading until the viewer disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.remove(client)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
