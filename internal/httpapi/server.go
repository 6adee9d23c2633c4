package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tcmvision-hue/post-it-core/pkg/postit"
)

// Options carries the assembled dependencies for the HTTP façade.
type Options struct {
	Logger           *zap.Logger
	Service          *postit.Service
	ListenAddr       string
	AllowedOrigins   []string
	CookieSigningKey string
	CookieTTL        time.Duration
	AdminSecret      string
}

// Run boots the HTTP façade and serves until ctx is cancelled.
func Run(ctx context.Context, options Options) error {
	if options.Logger == nil {
		return errors.New("logger is required")
	}
	if options.Service == nil {
		return errors.New("service is required")
	}
	codec, err := NewStateCookieCodec([]byte(options.CookieSigningKey), options.CookieTTL, nil)
	if err != nil {
		return fmt.Errorf("state cookie codec: %w", err)
	}

	handler := &httpHandler{
		logger:      options.Logger,
		service:     options.Service,
		codec:       codec,
		adminSecret: options.AdminSecret,
		cookieTTL:   int(options.CookieTTL / time.Second),
	}

	router := setupRouter(options.AllowedOrigins, handler)

	server := &http.Server{
		Addr:    options.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		options.Logger.Info("post-it api listening", zap.String("addr", options.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			options.Logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(allowedOrigins []string, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/profile/bootstrap", handler.handleBootstrap)
	api.POST("/profile/primary-language", handler.handlePrimaryLanguage)
	api.POST("/generate", handler.handleGenerate)

	phase4 := api.Group("/phase4")
	phase4.POST("/status", handler.handleStatus)
	phase4.POST("/start", handler.handleStart)
	phase4.POST("/option", handler.handleOption)
	phase4.POST("/confirm", handler.handleConfirm)
	phase4.POST("/download-variant", handler.handleDownloadVariant)
	phase4.POST("/checkout", handler.handleCheckout)
	phase4.POST("/webhook", handler.handleWebhook)
	phase4.GET("/webhook", handler.handleWebhook)
	phase4.POST("/admin/grant-coins", handler.handleGrantCoins)

	return router
}
