package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/genai-kitchen/internal/boot"
	"github.com/fpang/genai-kitchen/internal/inference"
	"github.com/fpang/genai-kitchen/internal/logging"
)

// CLI flags
var (
	portFlag        int
	modelFlag       string
	historyDirFlag  string
	bucketFlag      string
	workspaceFlag   string
	validateKeyFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "kitchen-web",
	Short: "HTTP API for kitchen renovation previews",
	Long: `Kitchen Web starts a local HTTP server exposing the generation, mask and
history endpoints used by the renovation preview client.

Examples:
  kitchen-web
  kitchen-web --port 9090 --history-dir ./.kitchen
  kitchen-web --model gemini-3-pro-image-preview --s3-bucket my-results`,
	RunE: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", inference.GetModelName(), "Image model to use")
	rootCmd.Flags().StringVar(&historyDirFlag, "history-dir", os.Getenv(boot.EnvHistoryDir), "Directory for persisted workspace history")
	rootCmd.Flags().StringVar(&bucketFlag, "s3-bucket", os.Getenv(boot.EnvS3Bucket), "S3 bucket for generated images (data URIs when empty)")
	rootCmd.Flags().StringVar(&workspaceFlag, "workspace", "", "Workspace name for history persistence")
	rootCmd.Flags().BoolVar(&validateKeyFlag, "validate-key", true, "Make a test model call at startup")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) error {
	logging.Init()

	if !inference.IsKnownModel(modelFlag) {
		return fmt.Errorf("unknown model %q (known: %v)", modelFlag, inference.KnownModels)
	}
	os.Setenv("KITCHEN_MODEL", modelFlag)

	cfg := boot.ConfigFromEnv("kitchen-web")
	cfg.CommitHash = commitHash
	cfg.HistoryDir = historyDirFlag
	cfg.S3Bucket = bucketFlag
	cfg.ValidateKey = validateKeyFlag
	if workspaceFlag != "" {
		cfg.Workspace = workspaceFlag
	}

	ctx := context.Background()
	app, err := boot.Build(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Startup failed")
		return err
	}
	app.Startup.Config("port", fmt.Sprint(portFlag)).Log()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", portFlag),
		Handler:      app.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Graceful shutdown incomplete")
		}
	}()

	log.Info().Int("port", portFlag).Msg("Starting web server")
	fmt.Printf("\n  Kitchen API: http://localhost:%d/api/health\n\n", portFlag)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
