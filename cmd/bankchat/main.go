package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bankchat/internal/app"
	"bankchat/internal/config"
	"bankchat/pkg/types"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

type options struct {
	configPath string
	mintFor    int64
	mintAdmin  bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("bankchat", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to a JSON config file (defaults to $BANKCHAT_CONFIG_FILE)")
	fs.Int64Var(&opts.mintFor, "mint-token", 0, "print a signed token for this user id and exit")
	fs.BoolVar(&opts.mintAdmin, "admin", false, "mark the minted token as an admin")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// run loads configuration and serves until SIGINT or SIGTERM
func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.mintFor > 0 {
		return mintToken(cfg, opts, stdout)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if err := application.Start(context.Background()); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signalCh
	log.Printf("Received signal %v, shutting down gracefully", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func mintToken(cfg *config.Config, opts *options, stdout io.Writer) error {
	provider := app.NewTokenProvider(cfg)
	token, err := provider.IssueToken(&types.Identity{ID: opts.mintFor, IsAdmin: opts.mintAdmin})
	if err != nil {
		return fmt.Errorf("failed to mint token: %w", err)
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}
