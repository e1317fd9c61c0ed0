package panel

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/infodisplay/box"
)

// Agent is the part of the communicator the panel talks to. The panel never
// reaches the box directly.
type Agent interface {
	CurrentStatus() box.Status
	RequestModeChange(mode box.HouseMode)
}

// DisplayControl exposes the forced display mode.
type DisplayControl interface {
	SetForced(on *bool)
	Forced() *bool
	IsOn() (on bool, known bool)
}

// ServerOption customises a Server.
type ServerOption func(*Server)

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithDisplay enables POST /api/display.
func WithDisplay(display DisplayControl) ServerOption {
	return func(s *Server) { s.display = display }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithFrameInterval sets how often the page polls /api/frame.
func WithFrameInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.frameInterval = d
		}
	}
}

// WithClock replaces the time source for frame labels.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server is the kiosk web frontend.
type Server struct {
	agent         Agent
	builder       *Builder
	display       DisplayControl
	metrics       http.Handler
	frameInterval time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

// maxRequestBody bounds the JSON bodies accepted by the API.
const maxRequestBody = 1 << 10

type modeRequest struct {
	Mode string `json:"mode"`
}

type displayRequest struct {
	On *bool `json:"on"`
}

type displayResponse struct {
	Forced *bool `json:"forced"`
	On     *bool `json:"on"`
}

// NewServer wires the HTTP handlers.
func NewServer(agent Agent, builder *Builder, opts ...ServerOption) (*Server, error) {
	if agent == nil {
		return nil, errors.New("panel: agent is required")
	}
	if builder == nil {
		return nil, errors.New("panel: frame builder is required")
	}
	s := &Server{
		agent:         agent,
		builder:       builder,
		frameInterval: time.Second,
		logger:        zerolog.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Handler returns the request multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/frame", s.handleFrame)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/display", s.handleDisplay)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Run serves on listen until ctx is cancelled.
func (s *Server) Run(ctx context.Context, listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info().Str("listen", ln.Addr().String()).Msg("panel started")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error().Err(err).Msg("shutdown panel")
	}
	<-errCh
	return nil
}

type pageData struct {
	FrameIntervalMS int64
	Modes           []pageMode
}

type pageMode struct {
	Wire  string
	Label string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := pageData{FrameIntervalMS: s.frameInterval.Milliseconds()}
	for _, mode := range box.Modes() {
		wire, _ := mode.Wire()
		data.Modes = append(data.Modes, pageMode{Wire: wire, Label: ModeLabel(mode)})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error().Err(err).Msg("render panel page")
	}
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.builder.Build(s.agent.CurrentStatus(), s.now()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.agent.CurrentStatus())
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req modeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	mode, ok := box.ParseHouseMode(req.Mode)
	if !ok || mode == box.ModeNone {
		http.Error(w, "unknown mode", http.StatusBadRequest)
		return
	}
	s.agent.RequestModeChange(mode)
	s.logger.Info().Str("house_mode", mode.String()).Msg("mode button pressed")
	wire, _ := mode.Wire()
	s.writeJSON(w, http.StatusAccepted, modeRequest{Mode: wire})
}

func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	if s.display == nil {
		http.Error(w, "display control unavailable", http.StatusNotImplemented)
		return
	}
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		defer r.Body.Close()
		var req displayRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		s.display.SetForced(req.On)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := displayResponse{Forced: s.display.Forced()}
	if on, known := s.display.IsOn(); known {
		resp.On = &on
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.agent.CurrentStatus()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"valid":  status.Valid,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("encode panel response")
	}
}

var pageTemplate = template.Must(template.New("panel").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Info Display</title>
<style>
body { margin: 0; font-family: Arial, sans-serif; background: #111; color: #eee; user-select: none; }
.top { display: flex; justify-content: space-between; align-items: center; padding: 0.5rem 1rem; font-size: 2rem; }
.date span { margin-right: 0.4rem; font-size: 1.2rem; }
.buttons { display: flex; gap: 0.5rem; padding: 0.5rem 1rem; }
.buttons button { flex: 1; padding: 1.2rem 0; font-size: 1.2rem; border: none; border-radius: 6px; background: #1976d2; color: #fff; }
.indicators { display: flex; gap: 0.5rem; padding: 0.5rem 1rem; }
.indicator { flex: 1; text-align: center; padding: 0.6rem 0; border-radius: 6px; font-size: 1.4rem; }
.indicator.ok { background: #2e7d32; }
.indicator.warning { background: #f9a825; color: #111; }
.indicator.error { background: #c62828; }
.mode { text-align: center; font-size: 1.4rem; padding: 0.5rem; }
body.stale .indicator, body.stale .mode { opacity: 0.4; }
</style>
</head>
<body class="stale">
<div class="top">
<div id="time">-</div>
<div class="date"><span id="day">-</span><span id="month">-</span><span id="year">-</span></div>
<div id="temperature">--°C</div>
</div>
<div class="buttons">
{{range .Modes}}<button data-mode="{{.Wire}}">{{.Label}}</button>
{{end}}</div>
<div class="indicators">
<div id="lights" class="indicator ok">-</div>
<div id="doors" class="indicator ok">-</div>
</div>
<div id="mode" class="mode">--</div>
<script>
const interval = {{.FrameIntervalMS}};
function setIndicator(id, state) {
  const el = document.getElementById(id);
  el.textContent = state.count;
  el.className = 'indicator ' + state.level;
}
async function refresh() {
  try {
    const res = await fetch('/api/frame');
    const frame = await res.json();
    document.getElementById('time').textContent = frame.time;
    document.getElementById('day').textContent = frame.day;
    document.getElementById('month').textContent = frame.month;
    document.getElementById('year').textContent = frame.year;
    document.getElementById('temperature').textContent = frame.temperature;
    setIndicator('lights', frame.lights);
    setIndicator('doors', frame.doors);
    document.getElementById('mode').textContent = frame.mode_label;
    document.body.classList.toggle('stale', frame.stale);
  } catch (err) {
    document.body.classList.add('stale');
  }
}
document.querySelectorAll('button[data-mode]').forEach(btn => {
  btn.addEventListener('click', () => {
    fetch('/api/mode', {method: 'POST', headers: {'Content-Type': 'application/json'}, body: JSON.stringify({mode: btn.dataset.mode})});
  });
});
refresh();
setInterval(refresh, interval);
</script>
</body>
</html>
`))
