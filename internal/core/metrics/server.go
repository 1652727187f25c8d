package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-dep2p-relay/internal/util/logger"
)

var log = logger.Logger("metrics")

// Server 暴露 /metrics
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen 绑定地址，随后调用 Serve
func Listen(addr string, m *Metrics) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	return &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		ln:  ln,
	}, nil
}

// Addr 实际监听地址
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve 阻塞直到 Shutdown
func (s *Server) Serve() {
	log.Info("指标服务已启动", "addr", s.ln.Addr().String())
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("指标服务异常退出", "err", err)
	}
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
