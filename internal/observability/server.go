package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	readHeaderTimeout = 5 * time.Second
	healthTimeout     = 2 * time.Second
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MetricsServer exposes the registry on /metrics and store health on /healthz as a lifecycle component.
type MetricsServer struct {
	addr   string
	pinger Pinger

	runMutex sync.Mutex
	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

func NewMetricsServer(addr string, pinger Pinger) *MetricsServer {
	return &MetricsServer{addr: addr, pinger: pinger}
}

func (s *MetricsServer) Start(_ context.Context) error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()

	if s.addr == "" || s.server != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))
	mux.HandleFunc("/healthz", s.health)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	s.listener = listener

	s.wg.Add(1)
	go func(server *http.Server) {
		defer s.wg.Done()
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.getLogEntry().WithField("error", err.Error()).Error("metrics server failed")
		}
	}(s.server)

	s.getLogEntry().WithField("addr", listener.Addr().String()).Info("metrics server started")
	return nil
}

func (s *MetricsServer) Stop(ctx context.Context) error {
	s.runMutex.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.runMutex.Unlock()

	if server == nil {
		return nil
	}
	err := server.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// Addr reports the bound address, empty when not running.
func (s *MetricsServer) Addr() string {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *MetricsServer) health(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.getLogEntry().WithField("error", err.Error()).Warn("health check failed")
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	_, _ = w.Write([]byte("ok"))
}

func (s *MetricsServer) getLogEntry() *log.Entry {
	return log.WithField("object", "MetricsServer")
}
