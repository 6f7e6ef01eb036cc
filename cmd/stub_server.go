package cmd

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/skinscan/internal/stubservice"
)

var stubServerCmd = &cobra.Command{
	Use:   "stub-server",
	Short: "Run a local analysis service for development",
	Long: `Serve the analysis API with deterministic heuristic scoring and in-memory
storage. Point service.base_url at it to try the whole flow offline.

Examples:
  skinscan stub-server
  skinscan stub-server --addr 127.0.0.1:9090 --no-donation-storage`,
	Args: cobra.NoArgs,
	RunE: runStubServer,
}

func init() {
	stubServerCmd.Flags().String("addr", "", "listen address (default stub.addr)")
	stubServerCmd.Flags().Bool("no-donation-storage", false, "decline every donation")
	stubServerCmd.Flags().Bool("no-progress-storage", false, "never keep progress entries")

	rootCmd.AddCommand(stubServerCmd)
}

func runStubServer(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Stub.Addr
	}
	noDonation, _ := cmd.Flags().GetBool("no-donation-storage")
	noProgress, _ := cmd.Flags().GetBool("no-progress-storage")

	opts := stubservice.DefaultOptions()
	opts.JWTSecret = cfg.Stub.JWTSecret
	opts.TokenTTL = cfg.Stub.TokenTTL
	opts.RequireAuth = cfg.Stub.RequireDeviceToken
	opts.DonationStorageEnabled = !noDonation
	opts.ProgressStorageEnabled = !noProgress
	opts.LegalVersion = cfg.Stub.LegalVersion

	gin.SetMode(gin.ReleaseMode)
	router := stubservice.NewRouter(stubservice.NewBackend(opts), opts, logger)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("stub analysis service listening", zap.String("addr", addr))
	return stubservice.Serve(server, 15*time.Second, logger)
}
