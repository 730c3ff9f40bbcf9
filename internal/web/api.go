// Package web assembles the daemon's HTTP surface: the websocket store
// endpoint and the status endpoint.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/phuslu/log"
	proxyproto "github.com/pires/go-proxyproto"
)

type ApiConfig struct {
	ListenAddr     string
	AllowedOrigins []string
	// ProxyProtocol accepts PROXY headers from a fronting load balancer.
	ProxyProtocol bool
}

type Api struct {
	r      chi.Router
	s      *http.Server
	config *ApiConfig
	log    log.Logger
}

func NewApi(ws http.Handler, mon http.Handler, config *ApiConfig) *Api {
	api := &Api{config: config}
	api.log = log.DefaultLogger
	api.log.Context = log.NewContext(nil).Str("module", "api").Value()
	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))
	r.Use(middleware.Recoverer)
	r.Get("/ws", ws.ServeHTTP)
	r.With(middleware.NoCache).Get("/status", mon.ServeHTTP)

	api.r = r
	// no read or write timeout: they would cut hijacked websocket connections
	api.s = &http.Server{
		Addr:              config.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return api
}

func (api *Api) Handler() http.Handler {
	return api.r
}

// Run listens and serves until Shutdown.
func (api *Api) Run() error {
	ln, err := net.Listen("tcp", api.config.ListenAddr)
	if err != nil {
		return err
	}
	if api.config.ProxyProtocol {
		ln = &proxyproto.Listener{Listener: ln}
	}
	api.log.Info().Str("addr", ln.Addr().String()).Bool("proxy_protocol", api.config.ProxyProtocol).Msg("starting api server")
	err = api.s.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (api *Api) Shutdown(ctx context.Context) error {
	return api.s.Shutdown(ctx)
}
