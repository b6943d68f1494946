package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.dedis.ch/escrow"
	"golang.org/x/xerrors"
)

const metricsPath = "/metrics"

// metricsServer serves the prometheus collectors of the packages over HTTP.
type metricsServer struct {
	ln  net.Listener
	srv *http.Server
}

func startMetrics(addr string) (*metricsServer, error) {
	registry := prometheus.NewRegistry()

	for _, c := range escrow.PromCollectors {
		err := registry.Register(c)
		if err != nil {
			return nil, xerrors.Errorf("failed to register: %v", err)
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Errorf("failed to listen: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	m := &metricsServer{
		ln:  ln,
		srv: &http.Server{Handler: mux},
	}

	go func() {
		err := m.srv.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			escrow.Logger.Err(err).Msg("metrics server failed")
		}
	}()

	return m, nil
}

// Addr returns the address the server listens to.
func (m *metricsServer) Addr() net.Addr {
	return m.ln.Addr()
}

// Stop shuts the server down.
func (m *metricsServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	return m.srv.Shutdown(ctx)
}
