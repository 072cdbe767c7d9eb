package myhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ridelink/internal/adapters/driven/bus"
	"ridelink/internal/adapters/driven/db"
	"ridelink/internal/adapters/driven/directory"
	"ridelink/internal/adapters/driver/myhttp/handle"
	"ridelink/internal/adapters/driver/myhttp/middleware"
	"ridelink/internal/adapters/driver/myhttp/ws"
	"ridelink/internal/config"
	"ridelink/internal/core/domain/model"
	"ridelink/internal/core/ports"
	"ridelink/internal/core/services"
	"ridelink/internal/mylogger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const WaitTime = 10

type Server struct {
	mux        *http.ServeMux
	cfg        *config.Config
	srv        *http.Server
	mylog      mylogger.Logger
	db         *db.DB
	realtime   ports.IBus
	dispatcher *ws.Dispatcher
	ctx        context.Context
	appCtx     context.Context
	mu         sync.Mutex
	wg         sync.WaitGroup
}

func NewServer(ctx, appCtx context.Context, mylog mylogger.Logger, cfg *config.Config) *Server {
	return &Server{
		ctx:    ctx,
		appCtx: appCtx,
		cfg:    cfg,
		mylog:  mylog,
		mux:    http.NewServeMux(),
	}
}

// Run initializes adapters and routes and starts listening. It returns
// when the server stops.
func (s *Server) Run() error {
	mylog := s.mylog.Action("server_started")

	// Initialize database connection
	database, err := db.New(s.ctx, s.cfg.DB, s.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = database
	mylog.Info("Successful database connection")

	// Realtime fan-out runs in-process; RabbitMQ replicates it across
	// instances when configured.
	hub := bus.NewHub(s.mylog)
	if s.cfg.RabbitMq.Enabled {
		bridge, err := bus.NewRabbitBridge(s.appCtx, *s.cfg.RabbitMq, s.mylog, hub)
		if err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		s.realtime = bridge
		mylog.Info("Successful message broker connection")
	} else {
		s.realtime = hub
	}

	if err := s.Configure(); err != nil {
		return err
	}

	s.mu.Lock()
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%v", s.cfg.Srv.HTTPPort),
		Handler: s.mux,
	}
	s.mu.Unlock()

	mylog = mylog.WithGroup("details").With("port", s.cfg.Srv.HTTPPort)

	mylog.Info("server is running")
	return s.startHTTPServer()
}

// Stop provides a programmatic shutdown. Accepts a context for timeout control.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Info("Shutting down HTTP server...")

	if s.dispatcher != nil {
		s.dispatcher.Shutdown()
	}

	s.wg.Wait()

	if s.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, WaitTime*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.mylog.Error("Failed to shut down HTTP server gracefully", err)
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.mylog.Error("Failed to close database", err)
			return fmt.Errorf("db close: %w", err)
		}
		s.mylog.Info("Database closed")
	}

	s.mylog.Info("HTTP server shut down gracefully")
	return nil
}

func (s *Server) startHTTPServer() error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-s.ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Configure wires repositories, services, handlers and routes.
func (s *Server) Configure() error {
	// Repositories and the driver directory
	ridesRepo := db.NewRidesRepo(s.db)
	walletRepo := db.NewWalletRepo(s.db)

	var dir ports.IDriverDirectory
	if s.cfg.Redis.Enabled {
		dir = directory.NewRedisDirectory(s.cfg.Redis.Addr, s.cfg.Redis.Password, s.cfg.Redis.GeoKey, s.cfg.App.StalenessWindow)
	} else {
		dir = directory.NewMemoryDirectory(s.cfg.App.StalenessWindow)
	}

	// services
	walletService := services.NewWalletService(s.mylog, walletRepo, s.realtime, s.cfg.App.CommissionRate, s.cfg.App.DailyTransferLimit)
	ridesService := services.NewRidesService(s.mylog, ridesRepo, s.realtime, walletService)
	dispatchService := services.NewDispatchService(s.mylog, ridesService, ridesRepo, dir, s.realtime, services.DispatchConfig{
		SearchRadiusKm: s.cfg.App.SearchRadiusKm,
		CandidateLimit: s.cfg.App.CandidateLimit,
		SearchTimeout:  s.cfg.App.SearchTimeout,
		SweepInterval:  s.cfg.App.SweepInterval,
	})
	driverService := services.NewDriverService(s.mylog, dir, ridesRepo, dispatchService, s.realtime)

	// system wallet accounts must exist before the first settlement
	for _, id := range []string{model.ClearingAccountID, model.PlatformAccountID} {
		if err := walletService.EnsureAccount(s.ctx, id, true); err != nil {
			return fmt.Errorf("bootstrap system account %s: %w", id, err)
		}
	}

	// stale searches are cancelled in the background
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		dispatchService.RunSweep(s.appCtx)
	}()

	// handlers
	ridesHandler := handle.NewRidesHandler(ridesService, dispatchService, s.mylog)
	driverHandler := handle.NewDriverHandler(driverService, s.mylog)
	walletHandler := handle.NewWalletHandler(walletService, s.mylog)

	eventHandler := ws.NewEventHandler(ridesService, dispatchService, walletService, driverService, s.mylog)
	s.dispatcher = ws.NewDispatcher(s.realtime, eventHandler, s.mylog)

	authMiddleware := middleware.NewAuthMiddleware(s.cfg.App.JwtSecret)
	metricsMiddleware := middleware.NewMetricsMiddleware()

	protected := func(h http.Handler) http.Handler {
		return metricsMiddleware.Wrap(authMiddleware.Wrap(h))
	}

	// Register routes
	s.mux.Handle("POST /rides", protected(ridesHandler.CreateRide()))
	s.mux.Handle("GET /rides/{ride_id}", protected(ridesHandler.GetRide()))
	s.mux.Handle("POST /rides/{ride_id}/accept", protected(ridesHandler.AcceptRide()))
	s.mux.Handle("POST /rides/{ride_id}/status", protected(ridesHandler.AdvanceRide()))
	s.mux.Handle("POST /rides/{ride_id}/cancel", protected(ridesHandler.CancelRide()))
	s.mux.Handle("POST /rides/{ride_id}/offers", protected(ridesHandler.CounterOffer()))

	s.mux.Handle("POST /drivers/online", protected(driverHandler.GoOnline()))
	s.mux.Handle("POST /drivers/offline", protected(driverHandler.GoOffline()))
	s.mux.Handle("POST /drivers/location", protected(driverHandler.UpdateLocation()))

	s.mux.Handle("POST /wallet/transfers", protected(walletHandler.Transfer()))
	s.mux.Handle("GET /wallet/accounts/{user_id}", protected(walletHandler.Balance()))

	s.mux.HandleFunc("GET /healthz", s.healthz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// websocket route skips the metrics wrapper, the recorder breaks the
	// connection hijack
	s.mux.Handle("/ws", authMiddleware.Wrap(s.dispatcher.ConnectHandler()))

	return nil
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		handle.JsonError(w, http.StatusServiceUnavailable, errors.New("database unavailable"))
		return
	}
	if err := s.db.IsAlive(); err != nil {
		handle.JsonError(w, http.StatusServiceUnavailable, err)
		return
	}
	handle.JsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
