package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/mri-check/internal/classifier"
	"github.com/example/mri-check/internal/config"
	"github.com/example/mri-check/internal/handlers"
	"github.com/example/mri-check/internal/notifier"
	"github.com/example/mri-check/internal/session"
	"github.com/example/mri-check/internal/sessiontoken"
	"github.com/example/mri-check/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the classification web service",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := appFromContext(cmd.Context())
		if err != nil {
			return err
		}
		cfg, logger := app.cfg, app.logger

		sessions, closeStore, err := openSessionStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		backend := newModelBackend(cfg, logger)
		defer backend.Close()

		mailer, err := notifier.NewMailer(notifier.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  30 * time.Second,
		}, logger)
		if err != nil {
			return err
		}

		engine := session.NewEngine(classifier.New(backend.lazy(), logger), mailer)
		uc := usecase.NewSessionUseCase(sessions, engine, logger)

		addr := cfg.Addr()
		if serveAddr != "" {
			addr = serveAddr
		}
		server := &http.Server{
			Addr:              addr,
			Handler:           newRouter(cfg, uc, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}

		logger.Info("mri-check listening",
			zap.String("addr", addr),
			zap.String("classifier_backend", cfg.ClassifierBackend),
			zap.String("session_store", cfg.SessionStore),
		)
		if err := serveHTTPServer(server, shutdownTimeout, logger); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		logger.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(cfg *config.Config, svc handlers.SessionService, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger(logger), handlers.CORS(cfg.AllowedOrigins))
	router.MaxMultipartMemory = cfg.MaxUploadBytes()

	issuer := sessiontoken.NewIssuer(cfg.SessionSecret, cfg.SessionTTL)
	handlers.RegisterRoutes(router, svc, sessiontoken.Middleware(issuer, cfg.SecureCookies), cfg.MaxUploadBytes())
	return router
}
