// Package httpapi serves the control surface over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/mutker/speedctl/internal/control"
	"codeberg.org/mutker/speedctl/internal/errors"
	"codeberg.org/mutker/speedctl/internal/logger"
	"codeberg.org/mutker/speedctl/internal/surface"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

const (
	StatusPath     = "/status"
	ParamErrorPath = "/perror.htm"

	shutdownTimeout = 5 * time.Second
)

// Surface is the subset of the control surface the routes use.
type Surface interface {
	ToggleLed() (string, error)
	QueryLedState() string
	SetMode(mode control.Mode, manualPercent *int) error
	SetManualSpeedString(s string) bool
	QueryStatus() surface.Status
	CurrentSpeedText() string
}

type handler struct {
	surface Surface
	logger  logger.Logger
}

// NewRouter builds the route table.
func NewRouter(s Surface, log logger.Logger) http.Handler {
	h := &handler{surface: s, logger: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Route("/cgi-bin", func(r chi.Router) {
		r.Get("/toggle_led", h.toggleLed)
		r.Get("/set_speed", h.setSpeed)
	})
	r.Get("/iocontrol.cgi", h.ioControl)
	r.Get("/ledstate", h.ledState)
	r.Get("/get_speed", h.getSpeed)
	r.Get(StatusPath, h.status)
	r.Get(ParamErrorPath, h.paramError)

	return r
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("HTTP request")
		})
	}
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

func (h *handler) toggleLed(w http.ResponseWriter, r *http.Request) {
	state, err := h.surface.ToggleLed()
	if err != nil {
		h.logger.ErrorWithContext(asError(err), "httpapi", "toggle_led").Send()
		render.Render(w, r, errResponse(http.StatusInternalServerError, err))
		return
	}

	writeText(w, http.StatusOK, state)
}

func (h *handler) setSpeed(w http.ResponseWriter, r *http.Request) {
	h.surface.SetManualSpeedString(r.URL.Query().Get("percent"))
	writeText(w, http.StatusOK, h.surface.CurrentSpeedText())
}

// ioControl handles the settings form. A checked LEDOn box selects manual
// mode with speed_percent; an unchecked box selects automatic mode.
func (h *handler) ioControl(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode := control.Automatic
	var percent *int
	if q.Has("LEDOn") {
		mode = control.Manual
		if v, err := strconv.Atoi(q.Get("speed_percent")); err == nil {
			percent = &v
		}
	}

	if err := h.surface.SetMode(mode, percent); err != nil {
		if errors.IsParameterError(err) {
			http.Redirect(w, r, ParamErrorPath, http.StatusSeeOther)
			return
		}
		render.Render(w, r, errResponse(http.StatusInternalServerError, err))
		return
	}

	http.Redirect(w, r, StatusPath, http.StatusSeeOther)
}

func (h *handler) ledState(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, h.surface.QueryLedState())
}

func (h *handler) getSpeed(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, h.surface.CurrentSpeedText())
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.surface.QueryStatus())
}

func (h *handler) paramError(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusBadRequest, errors.GetErrorMessage(errors.ErrInvalidParameter))
}

func asError(err error) errors.Error {
	var e errors.Error
	if errors.As(err, &e) {
		return e
	}

	return errors.New().Wrap(errors.ErrInternal, err)
}

// Server runs the router until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger logger.Logger
}

func NewServer(addr string, handler http.Handler, log logger.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.New().Wrap(errors.ErrUnavailable, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}
