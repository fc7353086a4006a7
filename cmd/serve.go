package cmd

import (
	"net/http"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tabloom/tabloom/internal/server"
	"github.com/tabloom/tabloom/internal/synth"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API for report generation and browsing",
	Long: `Serve exposes generation over HTTP. POST /api/v1/reports streams progress
as server-sent events; GET/DELETE under the same prefix browse stored reports.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// .env is a development convenience; missing file is fine
		_ = godotenv.Load()

		logger := newLogger()
		gen, err := newGenerateFunc()
		if err != nil {
			return err
		}
		st, err := newStore()
		if err != nil {
			return err
		}
		orch := synth.New(gen, st, logger, synth.Options{DefaultModel: cfg.DefaultModel})

		addr := serveAddr
		if addr == "" {
			addr = cfg.ListenAddr
		}
		srv := server.New(orch, st, logger)
		logger.Info().Str("addr", addr).Msg("listening")
		return http.ListenAndServe(addr, srv.Router())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config listen_addr)")
	rootCmd.AddCommand(serveCmd)
}
