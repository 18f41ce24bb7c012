package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/dispatchcore/ai/memory"
	"github.com/hrygo/dispatchcore/ai/observability/logging"
	"github.com/hrygo/dispatchcore/internal/profile"
	"github.com/hrygo/dispatchcore/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "dispatchcore",
	Short: `Multi-provider LLM dispatch core with shared conversation memory and per-tenant token budgets.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Systemd units provide the environment themselves.
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile := newProfile()
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return err
		}
		if err := memory.ValidateSchedule(instanceProfile.MemorySweepSchedule); err != nil {
			return fmt.Errorf("invalid memory sweep schedule %q: %w", instanceProfile.MemorySweepSchedule, err)
		}

		logger := logging.New(instanceProfile.LogFormat, instanceProfile.LogLevel, os.Stderr)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), terminationSignals...)
		defer stop()
		return run(ctx, instanceProfile, logger)
	},
}

func newProfile() *profile.Profile {
	return &profile.Profile{
		Mode:      viper.GetString("mode"),
		Addr:      viper.GetString("addr"),
		Port:      viper.GetInt("port"),
		Data:      viper.GetString("data"),
		Driver:    viper.GetString("driver"),
		DSN:       viper.GetString("dsn"),
		RedisAddr: viper.GetString("redis-addr"),
		LogLevel:  viper.GetString("log-level"),
		LogFormat: viper.GetString("log-format"),
		Version:   version.GetCurrentVersion(viper.GetString("mode")),
	}
}

// run serves until ctx is cancelled, then shuts everything down in order:
// HTTP first so no new turns arrive, then the background workers.
func run(ctx context.Context, p *profile.Profile, logger *slog.Logger) error {
	a, err := newApp(ctx, p, logger)
	if err != nil {
		printStartupError(err, p)
		return err
	}
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.sweeper.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.server.Shutdown(context.WithoutCancel(gctx))
	})

	printGreetings(p)
	return g.Wait()
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "memory")
	viper.SetDefault("port", 8080)

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", 8080, "port of server")
	flags.String("data", "", "data directory for the file and sqlite drivers")
	flags.String("driver", "memory", "storage driver (memory, file, sqlite, postgres, redis)")
	flags.String("dsn", "", "database source name(aka. DSN)")
	flags.String("redis-addr", "", "redis address for the redis driver")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "redis-addr", "log-level", "log-format"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("dispatchcore")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("dispatchcore %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}
	fmt.Printf("Storage driver: %s\n", p.Driver)
	fmt.Printf("Mode: %s\n", p.Mode)
	if configured := p.ConfiguredProviders(); len(configured) > 0 {
		fmt.Printf("Providers: %s\n", strings.Join(configured, ", "))
	} else {
		fmt.Fprint(os.Stderr, "No provider has an API key; every turn will fail with no_providers or not_configured\n")
	}
	if p.Addr == "" {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printStartupError adds a hint for the storage failures people hit first.
func printStartupError(err error, p *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nStartup failed:", err)

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		switch p.Driver {
		case "postgres":
			fmt.Fprintln(os.Stderr, "PostgreSQL is not reachable. Check DISPATCHCORE_DSN or start the database.")
		case "redis":
			fmt.Fprintf(os.Stderr, "Redis is not reachable at %s. Check DISPATCHCORE_REDIS_ADDR.\n", p.RedisAddr)
		}
		fmt.Fprintln(os.Stderr, "For local development use --driver=memory or --driver=sqlite --data=./data")
	case strings.Contains(msg, "sslmode"):
		fmt.Fprintln(os.Stderr, "Add ?sslmode=disable to your DSN for a local PostgreSQL.")
	case strings.Contains(msg, "password authentication failed") || strings.Contains(msg, "NOAUTH"):
		fmt.Fprintln(os.Stderr, "Authentication failed. Check the credentials in your DSN or .env file.")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
