package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"findash/internal/catalog"
	"findash/internal/chart"
	"findash/internal/chat"
	"findash/internal/dashboard"
	"findash/internal/domain"
	"findash/internal/filter"
	"findash/internal/live"
	"findash/internal/normalize"
	"findash/internal/store"
)

// Deps are the collaborators a Server is built from. ChatLog, Charts,
// Resolver and Live may be nil; the matching routes then report 503.
type Deps struct {
	Fetcher    dashboard.Fetcher
	Catalog    *catalog.Catalog
	Units      *normalize.Registry
	Resolver   filter.NameResolver
	Answerer   chat.Answerer
	ChatLog    store.ChatLogStore
	Charts     store.ChartStore
	Live       live.Source
	LiveWindow int
	Log        *slog.Logger
}

type session struct {
	dash   *dashboard.Session
	chat   *chat.Bridge
	cancel context.CancelFunc
}

// Server serves the dashboard HTTP API.
type Server struct {
	deps Deps
	ctx  context.Context
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer creates a server. ctx bounds the background loops of every
// session it creates.
func NewServer(ctx context.Context, deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Server{
		deps:     deps,
		ctx:      ctx,
		log:      deps.Log,
		sessions: make(map[string]*session),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/healthz", s.handleHealth)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/industries", s.handleIndustries)
	mux.HandleFunc("GET /api/industries/{name}", s.handleIndustry)

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/filters", s.handleGetFilters)
	mux.HandleFunc("PUT /api/sessions/{id}/filters", s.handlePutFilters)
	mux.HandleFunc("GET /api/sessions/{id}/panel", s.handlePanel)
	mux.HandleFunc("GET /api/sessions/{id}/tooltip", s.handleTooltip)
	mux.HandleFunc("GET /api/sessions/{id}/chart.png", s.handleChart(chart.FormatPNG))
	mux.HandleFunc("GET /api/sessions/{id}/chart.svg", s.handleChart(chart.FormatSVG))

	mux.HandleFunc("GET /api/sessions/{id}/chat", s.handleGetChat)
	mux.HandleFunc("POST /api/sessions/{id}/chat", s.handlePostChat)
	mux.HandleFunc("POST /api/sessions/{id}/chat/clear", s.handleClearChat)
	mux.HandleFunc("GET /api/sessions/{id}/chat/history", s.handleChatHistory)

	mux.HandleFunc("POST /api/sessions/{id}/charts", s.handleSaveChart)
	mux.HandleFunc("GET /api/charts", s.handleListCharts)
	mux.HandleFunc("GET /api/charts/{chartID}", s.handleGetChart)
	mux.HandleFunc("GET /api/charts/{chartID}/image", s.handleChartImage)

	mux.HandleFunc("GET /api/sessions/{id}/live", s.handleLive)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

// Close stops every session's background loop.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.cancel()
		delete(s.sessions, id)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeDashboardError maps session errors to HTTP statuses.
func writeDashboardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dashboard.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dashboard.ErrStale):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chart.ErrNoData):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func intQuery(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

// lookup returns the session named by the {id} path value, writing a 404
// when it does not exist.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *session {
	id := r.PathValue("id")
	s.mu.Lock()
	sess := s.sessions[id]
	s.mu.Unlock()
	if sess == nil {
		writeError(w, http.StatusNotFound, "session "+id+" not found")
	}
	return sess
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := len(s.sessions)
	s.mu.Unlock()

	h := HealthJSON{Status: "ok", Sessions: n}
	if s.deps.Catalog != nil {
		h.CatalogLoadedAt = s.deps.Catalog.Snapshot().LoadedAt
		if err := s.deps.Catalog.LastError(); err != nil {
			h.Status = "degraded"
			h.CatalogError = err.Error()
		}
	}
	writeJSON(w, h)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not configured")
		return
	}
	writeJSON(w, map[string]any{"metrics": s.deps.Catalog.Snapshot().Metrics})
}

func (s *Server) handleIndustries(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not configured")
		return
	}
	writeJSON(w, map[string]any{"industries": s.deps.Catalog.Snapshot().Industries})
}

func (s *Server) handleIndustry(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not configured")
		return
	}
	ind, ok := s.deps.Catalog.Industry(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown industry: "+r.PathValue("name"))
		return
	}
	writeJSON(w, ind)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var patch *filter.Patch
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		patch = new(filter.Patch)
		if err := json.Unmarshal(body, patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid filters: "+err.Error())
			return
		}
	}

	id := uuid.NewString()
	dash := dashboard.NewSession(id, s.deps.Fetcher, s.deps.Units, s.deps.Resolver, s.log)
	if s.deps.Catalog != nil {
		dash.Styles = s.deps.Catalog
	}
	var recorder chat.Recorder
	if s.deps.ChatLog != nil {
		recorder = s.deps.ChatLog
	}
	bridge := chat.NewBridge(id, s.deps.Answerer, recorder, s.log)
	ctx, cancel := context.WithCancel(s.ctx)
	go bridge.Run(ctx)

	sess := &session{dash: dash, chat: bridge, cancel: cancel}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.log.Info("session created", "session", id)

	resp := SessionJSON{ID: id}
	if patch != nil {
		p, err := dash.Update(r.Context(), *patch)
		if err != nil && !errors.Is(err, dashboard.ErrStale) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.Panel = p
	}
	resp.Filters = dash.Filters.Snapshot()
	writeJSONStatus(w, http.StatusCreated, resp)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "session "+id+" not found")
		return
	}
	sess.cancel()
	s.log.Info("session deleted", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, sess.dash.Filters.Snapshot())
}

func (s *Server) handlePutFilters(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	var patch filter.Patch
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid filters: "+err.Error())
		return
	}
	p, err := sess.dash.Update(r.Context(), patch)
	if err != nil {
		writeDashboardError(w, err)
		return
	}
	writeJSON(w, SessionJSON{ID: sess.dash.ID, Filters: sess.dash.Filters.Snapshot(), Panel: p})
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	p, err := sess.dash.Active(r.Context())
	if err != nil {
		writeDashboardError(w, err)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handleTooltip(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	q := r.URL.Query()
	width, height := intQuery(r, "width"), intQuery(r, "height")
	hover := q.Get("hover")
	if hover == "" && q.Has("x") {
		x, err := strconv.ParseFloat(q.Get("x"), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid x: "+q.Get("x"))
			return
		}
		if hover, err = sess.dash.HoverAt(r.Context(), x, width, height); err != nil {
			writeDashboardError(w, err)
			return
		}
	}
	tt, err := sess.dash.Tooltip(r.Context(), hover, width, height)
	if err != nil {
		writeDashboardError(w, err)
		return
	}
	writeJSON(w, tt)
}

func (s *Server) handleChart(format chart.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.lookup(w, r)
		if sess == nil {
			return
		}
		var buf bytes.Buffer
		if err := sess.dash.Render(r.Context(), &buf, format, intQuery(r, "width"), intQuery(r, "height")); err != nil {
			writeDashboardError(w, err)
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Cache-Control", "no-store")
		w.Write(buf.Bytes())
	}
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	writeJSON(w, ChatJSON{Messages: sess.chat.Messages()})
}

func (s *Server) handlePostChat(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	if s.deps.Answerer == nil {
		writeError(w, http.StatusServiceUnavailable, "chat not configured")
		return
	}
	var req ChatRequestJSON
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat request: "+err.Error())
		return
	}
	reply, err := sess.chat.Send(r.Context(), req.Question, sess.dash.ChatContext())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, ChatJSON{Reply: &reply, Messages: sess.chat.Messages()})
}

func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := sess.chat.Clear(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "clearing chat: "+err.Error())
		return
	}
	writeJSON(w, ChatJSON{Messages: sess.chat.Messages()})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	if s.deps.ChatLog == nil {
		writeError(w, http.StatusServiceUnavailable, "chat log not configured")
		return
	}
	recs, err := s.deps.ChatLog.Recent(r.Context(), sess.dash.ID, intQuery(r, "limit"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []store.ChatRecord{}
	}
	writeJSON(w, recs)
}

func (s *Server) handleSaveChart(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	if s.deps.Charts == nil {
		writeError(w, http.StatusServiceUnavailable, "chart storage not configured")
		return
	}
	var req SaveChartJSON
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
	}

	p, err := sess.dash.Active(r.Context())
	if err != nil {
		writeDashboardError(w, err)
		return
	}
	if !p.HasChart() {
		writeError(w, http.StatusUnprocessableEntity, "nothing to save")
		return
	}
	var img bytes.Buffer
	if err := sess.dash.Render(r.Context(), &img, chart.FormatPNG, 0, 0); err != nil {
		s.log.Warn("rendering chart for save", "error", err)
		img.Reset()
	}

	title := req.Title
	if title == "" {
		title = p.Title
	}
	id, err := s.deps.Charts.Save(r.Context(), store.SavedChart{
		ChartMeta: store.ChartMeta{
			Title:  title,
			Tab:    p.Tab,
			Period: sess.dash.Filters.Snapshot().Period,
		},
		Rows: p.TableRows(),
	}, img.Bytes())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("chart saved", "session", sess.dash.ID, "chart", id)
	writeJSONStatus(w, http.StatusCreated, SavedJSON{ID: id})
}

func (s *Server) handleListCharts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Charts == nil {
		writeError(w, http.StatusServiceUnavailable, "chart storage not configured")
		return
	}
	list, err := s.deps.Charts.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []store.ChartMeta{}
	}
	writeJSON(w, list)
}

func (s *Server) handleGetChart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Charts == nil {
		writeError(w, http.StatusServiceUnavailable, "chart storage not configured")
		return
	}
	c, err := s.deps.Charts.Load(r.Context(), r.PathValue("chartID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "chart not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, c)
}

func (s *Server) handleChartImage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Charts == nil {
		writeError(w, http.StatusServiceUnavailable, "chart storage not configured")
		return
	}
	img, err := s.deps.Charts.Image(r.Context(), r.PathValue("chartID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", chart.FormatPNG.ContentType())
	w.Write(img)
}

// handleLive upgrades to a WebSocket and relays the revenue feed for as long
// as the browser stays connected. Each connection opens its own upstream.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}
	if s.deps.Live == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed not configured")
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Warn("websocket accept", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	s.log.Info("live subscriber connected", "session", sess.dash.ID)
	err = live.Stream(ctx, s.deps.Live, s.deps.LiveWindow, func(p domain.RevenuePoint) error {
		return wsjson.Write(ctx, conn, p)
	})
	if err != nil {
		s.log.Warn("live stream ended", "session", sess.dash.ID, "error", err)
		conn.Close(websocket.StatusInternalError, "upstream unavailable")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
