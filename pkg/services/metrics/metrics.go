package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nspcc-dev/ledgerpool/pkg/config"
	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Service serves metrics.
type Service struct {
	http        []*http.Server
	config      config.BasicService
	log         *zap.Logger
	serviceType string

	lock  sync.Mutex
	addrs []string
	wg    sync.WaitGroup
}

// NewService creates a service serving handler on every configured address.
func NewService(name string, cfg config.BasicService, handler http.Handler, log *zap.Logger) *Service {
	addrs := cfg.GetAddresses()
	srvs := make([]*http.Server, len(addrs))
	for i, addr := range addrs {
		srvs[i] = &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		}
	}
	return &Service{
		http:        srvs,
		config:      cfg,
		serviceType: name,
		log:         log.With(zap.String("service", name)),
	}
}

// Name returns service name.
func (ms *Service) Name() string {
	return ms.serviceType
}

// Start binds all configured addresses and serves requests in separate
// goroutines. Nothing is started if the service is disabled.
func (ms *Service) Start() error {
	if !ms.config.Enabled {
		ms.log.Info("service hasn't started since it's disabled")
		return nil
	}
	ms.lock.Lock()
	defer ms.lock.Unlock()
	if ms.addrs != nil {
		return errors.New("already started")
	}
	lns := make([]net.Listener, 0, len(ms.http))
	for _, srv := range ms.http {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, l := range lns {
				_ = l.Close()
			}
			return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
		}
		lns = append(lns, ln)
	}
	ms.addrs = make([]string, len(lns))
	for i, ln := range lns {
		srv := ms.http[i]
		ms.addrs[i] = ln.Addr().String()
		ms.log.Info("service is running", zap.String("endpoint", ms.addrs[i]))
		ms.wg.Add(1)
		go func(ln net.Listener) {
			defer ms.wg.Done()
			err := srv.Serve(ln)
			if !errors.Is(err, http.ErrServerClosed) {
				ms.log.Error("failed to serve", zap.String("endpoint", srv.Addr), zap.Error(err))
			}
		}(ln)
	}
	return nil
}

// Addresses returns the addresses the service listens on, it's nil until
// Start.
func (ms *Service) Addresses() []string {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return append([]string(nil), ms.addrs...)
}

// Shutdown stops the service.
func (ms *Service) Shutdown() {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	if ms.addrs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i, srv := range ms.http {
		ms.log.Info("shutting down service", zap.String("endpoint", ms.addrs[i]))
		if err := srv.Shutdown(ctx); err != nil {
			ms.log.Error("can't shut service down", zap.String("endpoint", ms.addrs[i]), zap.Error(err))
		}
	}
	ms.wg.Wait()
	ms.addrs = nil
}
