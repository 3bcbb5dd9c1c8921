package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"group-registry/src/lib"
	"group-registry/src/notify"
	"group-registry/src/rewards"
	"group-registry/src/services"
	"group-registry/src/storage"
	"group-registry/src/verifier"
)

const migrationsDir = "src/storage/migrations"

// Server wires the registry runtime and its HTTP handlers.
type Server struct {
	cfg        lib.Config
	logger     *slog.Logger
	metrics    *lib.Metrics
	db         *pgxpool.Pool
	scheduler  *lib.TimerScheduler
	closers    []io.Closer
	httpServer *http.Server
}

func NewServer(ctx context.Context, cfg lib.Config) (*Server, error) {
	logger := lib.NewLogger(cfg.LogLevel)
	metrics := lib.NewMetrics()
	s := &Server{cfg: cfg, logger: logger, metrics: metrics}

	store, err := s.openStore(ctx)
	if err != nil {
		return nil, err
	}

	var gateVerifier services.Verifier
	if cfg.VerifierAddr != "" {
		client, err := verifier.Dial(cfg.VerifierAddr)
		if err != nil {
			s.closeAll()
			return nil, err
		}
		s.closers = append(s.closers, client)
		gateVerifier = client
	} else {
		logger.Warn("VERIFIER_ADDR not set, gated sources will never pass")
	}

	var notifier services.Notifier = notify.NewLogDispatcher(logger)
	if cfg.RabbitMQURL != "" {
		dispatcher, err := notify.DialRabbit(cfg.RabbitMQURL, cfg.NotificationQueue)
		if err != nil {
			s.closeAll()
			return nil, err
		}
		s.closers = append(s.closers, dispatcher)
		notifier = dispatcher
	}

	var rewardSignal services.RewardSignal = rewards.NewLogSignal(logger)
	if len(cfg.KafkaBrokers) > 0 {
		signal := rewards.NewKafkaSignal(cfg.KafkaBrokers, cfg.RewardTopic)
		s.closers = append(s.closers, signal)
		rewardSignal = signal
	}

	s.scheduler = lib.NewTimerScheduler()
	gatekeeper := services.NewGatekeeper(gateVerifier, services.GatekeeperConfig{
		Concurrency:    cfg.VerifierConcurrency,
		NeuronPageSize: cfg.NeuronPageSize,
		NeuronMaxPages: cfg.NeuronMaxPages,
		CallTimeout:    cfg.VerifierTimeout(),
	}, metrics, logger)

	svc := services.NewGroupService(services.GroupServiceConfig{
		Store:              store,
		Gatekeeper:         gatekeeper,
		History:            services.NewHistoryRecorder(store, cfg.RegistryPubKey, cfg.RegistryPrivKey, metrics),
		Notifier:           notifier,
		Rewards:            rewardSignal,
		JoinLimiter:        services.NewJoinLimiter(cfg.JoinRateLimitBurst, cfg.JoinRateLimitPerMinute),
		Scheduler:          s.scheduler,
		Metrics:            metrics,
		Logger:             logger,
		GroupCreationLimit: cfg.GroupCreationLimit,
	})

	restored, err := svc.RestoreBoosts(ctx)
	if err != nil {
		s.closeAll()
		return nil, fmt.Errorf("restore boosts: %w", err)
	}
	logger.Info("boost timers restored", "count", restored)

	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewHandler(svc, metrics, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// NewHandler builds the HTTP surface over svc.
func NewHandler(svc *services.GroupService, metrics *lib.Metrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	RegisterGroupRoutes(mux, GroupRoutes{Service: svc, Logger: logger})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(metrics.Snapshot())
	})
	return mux
}

func (s *Server) openStore(ctx context.Context) (storage.Store, error) {
	if s.cfg.StoreBackend == lib.StoreBackendMemory {
		s.logger.Warn("using in-memory store, state is lost on restart")
		return storage.NewMemoryStore(), nil
	}

	db, err := storage.NewPool(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	if err := applyMigrations(ctx, db, migrationsDir); err != nil {
		db.Close()
		return nil, err
	}
	s.db = db
	return storage.NewPGStore(db), nil
}

func (s *Server) Start() error {
	s.logger.Info("registry server starting", "addr", s.cfg.HTTPAddr, "store", s.cfg.StoreBackend)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.closeAll()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) closeAll() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Warn("close collaborator failed", "error", err)
		}
	}
	s.closers = nil
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
}

func applyMigrations(ctx context.Context, db *pgxpool.Pool, dir string) error {
	files := make([]string, 0)
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ".sql" {
			files = append(files, path)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("walk migration files: %w", err)
	}
	sort.Strings(files)

	for _, path := range files {
		sql, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", path, err)
		}
		if _, err := db.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", path, err)
		}
	}
	return nil
}
