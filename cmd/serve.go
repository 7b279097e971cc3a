package cmd

import (
	"context"
	"errors"
	"fmt"
	"helincat/catalog"
	"helincat/db"
	"helincat/metrics"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the database open and expose its metrics",
	Long: `Opens the database, runs the background table sync and serves prometheus
metrics on /metrics until SIGINT or SIGTERM is received.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":9464", "HTTP address for /metrics")
	serveCmd.Flags().Duration("sync-interval", 10*time.Second, "period of the background table sync, 0 disables it")
	mustBindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
	mustBindPFlag("serve.sync_interval", serveCmd.Flags().Lookup("sync-interval"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	opts, err := dbOptions()
	if err != nil {
		return err
	}
	opts.SyncInterval = viper.GetDuration("serve.sync_interval")

	reg := prometheus.NewRegistry()
	opts.Metrics = metrics.New(reg)

	d, err := db.OpenDB(opts)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", viper.GetString("serve.addr"))
	if err != nil {
		_ = d.Close()
		return fmt.Errorf("%w: listen: %w", catalog.ErrIO, err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serr := serve(ctx, ln, metrics.Handler(reg))
	if cerr := d.Close(); cerr != nil && serr == nil {
		serr = cerr
	}
	return serr
}

// serve answers /metrics on ln until ctx is done.
func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("serving metrics", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%w: serve metrics: %w", catalog.ErrIO, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
