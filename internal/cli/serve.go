package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vecsearch/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the table operations over HTTP:

  POST /upsert      {"table_id", "rows": [{"row_id", "text", "metadata"}]}
  POST /search      {"table_id", "query", "top_k"}
  POST /delete      {"table_id", "row_ids": [...]}
  POST /rebuild     {"table_id", "rows": [...]}
  GET  /tables/{id} table stats
  GET  /health
  GET  /metrics     Prometheus metrics (when metrics.enabled)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	log := GetLogger()
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := api.Options{
		Logger:       log,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}
	if a.metrics != nil {
		opts.Observer = a.metrics
		opts.MetricsHandler = a.metrics.Handler()
	}
	srv := api.NewServer(a.tables, opts)

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	log.Info("starting vecsearch",
		"addr", addr, "backend", cfg.Storage.Backend, "provider", cfg.Embedding.Provider, "model", a.embedder.ModelName())

	if err := srv.ListenAndServe(ctx, addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
