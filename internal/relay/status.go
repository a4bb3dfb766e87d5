package relay

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chessduel/internal/obslog"
)

// Health is the /healthz body.
type Health struct {
	Status        string `json:"status"`
	ActiveMatches int    `json:"active_matches"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// StatusServer exposes read-only relay state over plain HTTP.
type StatusServer struct {
	store   Store
	active  func() int
	started time.Time
	srv     *fasthttp.Server
	log     *zap.Logger
}

func NewStatusServer(store Store, active func() int) *StatusServer {
	s := &StatusServer{
		store:   store,
		active:  active,
		started: time.Now(),
		log:     obslog.Named("relay_status"),
	}
	s.srv = &fasthttp.Server{
		Handler:      s.Handle,
		Name:         "chess-relay",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

func (s *StatusServer) Handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	switch string(ctx.Path()) {
	case "/healthz":
		n := 0
		if s.active != nil {
			n = s.active()
		}
		s.writeJSON(ctx, Health{Status: "ok", ActiveMatches: n, UptimeSeconds: int64(time.Since(s.started).Seconds())})
	case "/matches":
		c, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		list, err := s.store.List(c)
		if err != nil {
			s.log.Warn("relay_status_list_failed", zap.Error(err))
			ctx.Error("store unavailable", fasthttp.StatusServiceUnavailable)
			return
		}
		if list == nil {
			list = []*MatchMeta{}
		}
		s.writeJSON(ctx, list)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

func (s *StatusServer) writeJSON(ctx *fasthttp.RequestCtx, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.Error("encode failed", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(body)
}

func (s *StatusServer) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *StatusServer) ListenAndServe(addr string) error { return s.srv.ListenAndServe(addr) }

func (s *StatusServer) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }
