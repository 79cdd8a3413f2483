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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mprlab/signinkit/internal/provider/googleweb"
	"github.com/mprlab/signinkit/internal/provider/localaccounts"
	"github.com/mprlab/signinkit/internal/signin"
	"github.com/mprlab/signinkit/internal/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleProvider = func(ctx context.Context, logger *zap.Logger) (*googleweb.Provider, error) {
	return googleweb.New(ctx, logger)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "signinkit",
		Short:   "Sign-in orchestrator exposing interactive, silent, and token-refresh flows over HTTP",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("client_id", "", "OAuth client ID the orchestrator is configured with")
	rootCmd.Flags().StringSlice("scopes", []string{}, "Requested scopes; defaults to the minimal identity scope set")
	rootCmd.Flags().Bool("offline_access", false, "Request a server auth code alongside the identity token")
	rootCmd.Flags().String("provider", "local", "Credential provider backend (local or google)")
	rootCmd.Flags().String("local_signing_key", "", "HS256 signing key for the local provider's minted tokens")
	rootCmd.Flags().String("database_url", "", "Database URL for the sign-in attempt audit trail (postgres:// or sqlite://; leave empty for in-memory)")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("client_id", rootCmd.Flags().Lookup("client_id"))
	_ = viper.BindPFlag("scopes", rootCmd.Flags().Lookup("scopes"))
	_ = viper.BindPFlag("offline_access", rootCmd.Flags().Lookup("offline_access"))
	_ = viper.BindPFlag("provider", rootCmd.Flags().Lookup("provider"))
	_ = viper.BindPFlag("local_signing_key", rootCmd.Flags().Lookup("local_signing_key"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingClientID   = "config.missing_client_id"
	configCodeMissingSigningKey = "config.missing_local_signing_key"
	configCodeUnknownProvider   = "config.unknown_provider"
	configCodeUninitialized     = "config.uninitialized_server_config"
)

type serverConfig struct {
	ListenAddr         string
	ClientID           string
	Scopes             []string
	OfflineAccess      bool
	ProviderKind       string
	LocalSigningKey    []byte
	DatabaseURL        string
	EnableCORS         bool
	CORSAllowedOrigins []string
}

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	configuration, loadErr := loadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, configuration))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func loadServerConfig() (serverConfig, error) {
	clientID := viper.GetString("client_id")
	if clientID == "" {
		return serverConfig{}, configError(configCodeMissingClientID, "client_id must be provided")
	}

	providerKind := viper.GetString("provider")
	switch providerKind {
	case "local", "google":
	default:
		return serverConfig{}, configError(configCodeUnknownProvider, "provider must be local or google")
	}

	localSigningKey := viper.GetString("local_signing_key")
	if providerKind == "local" && localSigningKey == "" {
		return serverConfig{}, configError(configCodeMissingSigningKey, "local_signing_key must be provided for the local provider")
	}

	return serverConfig{
		ListenAddr:         viper.GetString("listen_addr"),
		ClientID:           clientID,
		Scopes:             viper.GetStringSlice("scopes"),
		OfflineAccess:      viper.GetBool("offline_access"),
		ProviderKind:       providerKind,
		LocalSigningKey:    []byte(localSigningKey),
		DatabaseURL:        viper.GetString("database_url"),
		EnableCORS:         viper.GetBool("enable_cors"),
		CORSAllowedOrigins: viper.GetStringSlice("cors_allowed_origins"),
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	configuration, ok := contextValue.(serverConfig)
	if !ok {
		return configError(configCodeUninitialized, "server configuration not prepared; PreRunE must execute before RunE")
	}

	var provider signin.CredentialProvider
	var receiver web.CredentialReceiver
	switch configuration.ProviderKind {
	case "google":
		googleProvider, providerErr := buildGoogleProvider(commandContext, logger)
		if providerErr != nil {
			return fmt.Errorf("google provider init: %w", providerErr)
		}
		provider = googleProvider
		receiver = googleProvider
	default:
		localProvider := localaccounts.New(localaccounts.Options{SigningKey: configuration.LocalSigningKey})
		localProvider.AddAccount(localaccounts.Account{
			Subject:     "local-demo-user",
			Email:       "demo@example.com",
			DisplayName: "Demo User",
		})
		provider = localProvider
	}

	var attempts signin.AttemptStore
	if configuration.DatabaseURL != "" {
		persistentAttempts, storeErr := signin.NewDatabaseAttemptStore(context.Background(), configuration.DatabaseURL)
		if storeErr != nil {
			return storeErr
		}
		attempts = persistentAttempts
		logger.Info("using persistent attempt store", zap.String("driver", persistentAttempts.Driver()))
	} else {
		attempts = signin.NewMemoryAttemptStore()
		logger.Info("using in-memory attempt store")
	}

	orchestrator := signin.New(signin.Options{
		Provider:     provider,
		Presentation: signin.StaticPresentation(true),
		Logger:       logger,
		Metrics:      signin.NewCounterMetrics(),
		Attempts:     attempts,
	})
	defer orchestrator.Close()

	if configureErr := orchestrator.Configure(context.Background(), signin.Config{
		ClientID:      configuration.ClientID,
		Scopes:        configuration.Scopes,
		OfflineAccess: configuration.OfflineAccess,
	}); configureErr != nil {
		return configureErr
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if configuration.EnableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, configuration.CORSAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	web.MountSignInRoutes(router, orchestrator, receiver, attempts, logger)

	server := &http.Server{
		Addr:              configuration.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", configuration.ListenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
