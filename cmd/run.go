// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/networkdynamics/gotok/internal/observability"
	"github.com/networkdynamics/gotok/internal/tiktok"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// runWithClient wraps a subcommand body with client lifecycle management:
// signal handling, browser startup, optional login, and teardown.
func runWithClient(fn func(ctx context.Context, client *tiktok.Client) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.GetLogger()
	client, err := tiktok.NewClient(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := client.Close(closeCtx); cerr != nil {
			logger.Warn("browser shutdown failed", zap.Error(cerr))
		}
	}()

	if flagLogin != "" {
		user, pass, ok := strings.Cut(flagLogin, ":")
		if !ok || user == "" || pass == "" {
			return fmt.Errorf("--login must be user:password")
		}
		if err := client.Login(ctx, user, pass); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	return fn(ctx, client)
}

// emit writes one value per line to stdout as JSON.
func emit(v any) bool {
	enc, err := json.Marshal(v)
	if err != nil {
		observability.GetLogger().Warn("failed to encode item", zap.Error(err))
		return true
	}
	_, err = fmt.Fprintf(os.Stdout, "%s\n", enc)
	return err == nil
}

// emitPretty writes a single indented JSON document to stdout.
func emitPretty(v any) error {
	enc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	_, err = fmt.Fprintf(os.Stdout, "%s\n", enc)
	return err
}

// counted caps a yield callback at n items; n <= 0 means unlimited.
func counted[T any](n int, yield func(T) bool) func(T) bool {
	taken := 0
	return func(item T) bool {
		if n > 0 && taken >= n {
			return false
		}
		taken++
		return yield(item)
	}
}
