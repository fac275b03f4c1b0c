/*
 * Copyright (c) 2021. Ant Group. All rights reserved.
 * Copyright (c) 2022. Nydus Developers. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package metrics

import (
	"context"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/containerd/honggo/pkg/metrics/registry"
)

// Server exposes the shared crash counters over an HTTP /metrics endpoint
// so an operator can scrape crashes_total/unique_crashes/blacklisted_crashes
// without tailing logs, the same role pkg/metrics/serve.go plays for nydus
// daemon/fs gauges.
type Server struct {
	address  string
	listener net.Listener
}

// NewServer binds address immediately so callers learn about a bad address
// (already in use, unparsable) before Serve is called from a goroutine.
func NewServer(address string) (*Server, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on metrics address %s", address)
	}
	return &Server{address: address, listener: ln}, nil
}

// Serve blocks until ctx is canceled or the listener errors.
func (s *Server) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		logrus.WithField("address", s.address).Info("shutting down metrics server")
		return srv.Close()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
