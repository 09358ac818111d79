package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"folio/api/internal/app"
	"folio/api/internal/config"
	"folio/api/internal/github"
	"folio/api/internal/gitrepo"
	"folio/api/internal/hosting"
	"folio/api/internal/reactions"
	"folio/api/internal/session"
	"folio/api/internal/store"
)

var serveOpts struct {
	addr      string
	migrate   bool
	verbose   bool
	pruneEach time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, site, err := config.LoadWithSite()
		if err != nil {
			return err
		}
		if serveOpts.addr != "" {
			cfg.Addr = serveOpts.addr
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if site.Name != "" {
			log.Printf("Serving site %q", site.Name)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.addr, "addr", "", "Listen address (default: API_ADDR)")
	serveCmd.Flags().BoolVar(&serveOpts.migrate, "migrate", true, "Apply pending migrations before serving when Postgres is used")
	serveCmd.Flags().BoolVar(&serveOpts.verbose, "verbose", false, "Log every GitHub API call")
	serveCmd.Flags().DurationVar(&serveOpts.pruneEach, "prune-interval", time.Hour, "How often expired sessions are removed from Postgres")
	rootCmd.AddCommand(serveCmd)
}

// backends holds what serve opened so it can be closed in reverse order.
type backends struct {
	gateway   hosting.Gateway
	sessions  app.SessionStore
	reactions reactions.Store
	closers   []io.Closer
	postgres  *store.PostgresStore

	sessionsInPostgres bool
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	service, err := app.New(cfg, b.gateway, b.sessions, b.reactions)
	if err != nil {
		return err
	}
	if b.sessionsInPostgres {
		go pruneSessions(ctx, b.postgres, serveOpts.pruneEach)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Folio API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	gateway, err := openGateway(cfg)
	if err != nil {
		return nil, err
	}
	b.gateway = gateway

	var db *sql.DB
	if cfg.ReactionsBackend == config.BackendPostgres {
		db, err = store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{})
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		b.closers = append(b.closers, db)
		if serveOpts.migrate {
			applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
			if err != nil {
				return nil, fmt.Errorf("migrations failed: %w", err)
			}
			for _, name := range applied {
				log.Printf("Applied migration %s", name)
			}
		}
		b.postgres = store.NewPostgresStore(db)
	}

	switch cfg.ReactionsBackend {
	case config.BackendPostgres:
		log.Printf("Using PostgreSQL for reactions")
		b.reactions = b.postgres
	case config.BackendRedis:
		log.Printf("Using Redis for reactions")
		redisStore, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		b.closers = append(b.closers, redisStore)
		b.reactions = redisStore
	default:
		log.Printf("Using in-memory reactions; counts are lost on restart")
		b.reactions = reactions.NewMemoryStore()
	}

	switch {
	case cfg.RedisURL != "":
		log.Printf("Using Redis for admin sessions")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		b.closers = append(b.closers, redisStore)
		b.sessions = redisStore
	case b.postgres != nil:
		log.Printf("Using PostgreSQL for admin sessions")
		b.sessions = b.postgres
		b.sessionsInPostgres = true
	default:
		log.Printf("Using in-memory admin sessions")
		b.sessions = session.NewMemoryStore()
	}

	ok = true
	return b, nil
}

func openGateway(cfg config.Config) (hosting.Gateway, error) {
	if cfg.UseGitHub() {
		log.Printf("Using GitHub repository %s/%s", cfg.GitHubOwner, cfg.GitHubRepo)
		opts := []github.Option{github.WithProtected(cfg.ProtectedBranches...)}
		if cfg.GitHubAPIURL != "" {
			opts = append(opts, github.WithBaseURL(cfg.GitHubAPIURL))
		}
		if serveOpts.verbose {
			opts = append(opts, github.WithVerbose(os.Stderr))
		}
		return github.NewGateway(cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo, opts...)
	}

	log.Printf("GITHUB_TOKEN not set; using local repository at %s", cfg.LocalRepoDir)
	return gitrepo.Open(cfg.LocalRepoDir, gitrepo.Options{
		BaseBranch:  cfg.BaseBranch,
		ContentDirs: []string{cfg.ContentDir, cfg.ImageDir},
		Protected:   cfg.ProtectedBranches,
		AuthorName:  cfg.Author,
	})
}

func pruneSessions(ctx context.Context, pg *store.PostgresStore, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := pg.PruneSessions(ctx, now)
			if err != nil {
				log.Printf(`{"event":"session_prune_failed","error":%q}`, err.Error())
				continue
			}
			if removed > 0 {
				log.Printf(`{"event":"sessions_pruned","count":%d}`, removed)
			}
		}
	}
}
