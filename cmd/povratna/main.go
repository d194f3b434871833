package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/erazemk/povratna/internal/api"
	"github.com/erazemk/povratna/internal/config"
	"github.com/erazemk/povratna/internal/db"
	"github.com/erazemk/povratna/internal/health"
	"github.com/erazemk/povratna/internal/logging"
	"github.com/erazemk/povratna/internal/model"
	"github.com/erazemk/povratna/internal/store"
)

const healthInterval = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger, closeLog, err := logging.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	database, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer database.Close()

	database.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	database.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("preparing schema: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ensureAdmin(ctx, database, cfg.Auth.AdminUser, logger); err != nil {
		return err
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if secret, err = store.GetJWTSecret(ctx, database); err != nil {
			return fmt.Errorf("loading JWT secret: %w", err)
		}
	}

	checker := health.NewChecker(database, logger)
	router := api.NewRouter(api.Config{
		DB:            database,
		JWTSecret:     secret,
		Logger:        logger,
		ConfirmPolicy: cfg.Ledger.ConfirmPolicy(),
		Health:        checker,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.LoggingMiddleware(logger)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		checker.Shutdown()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	g.Go(func() error {
		return checker.Run(gctx, healthInterval)
	})

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("listening on %s: %w", cfg.Server.GRPCAddr, err)
		}

		gs := grpc.NewServer()
		checker.Register(gs)

		g.Go(func() error {
			logger.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
			return gs.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			gs.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

// ensureAdmin creates the first admin account with a random password when the
// database has no users yet. The password is printed once.
func ensureAdmin(ctx context.Context, database *sqlx.DB, username string, logger *zap.Logger) error {
	users, err := store.ListUsers(ctx, database)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if _, err := store.CreateUser(ctx, database, username, string(hash), model.RoleAdmin, nil); err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	logger.Info("admin account created", zap.String("user", username))
	printInitResult(username, password)
	return nil
}

func printInitResult(username, password string) {
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
	fmt.Println()
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
