package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/clovemart/api/internal/di"
	"github.com/clovemart/api/internal/handlers"
	"github.com/clovemart/api/internal/payments"
	"github.com/clovemart/api/internal/platform/auth"
	"github.com/clovemart/api/internal/platform/config"
	pfirestore "github.com/clovemart/api/internal/platform/firestore"
	"github.com/clovemart/api/internal/platform/idempotency"
	"github.com/clovemart/api/internal/platform/jobs"
	"github.com/clovemart/api/internal/platform/observability"
	"github.com/clovemart/api/internal/platform/secrets"
	"github.com/clovemart/api/internal/repositories"
	firestoreRepo "github.com/clovemart/api/internal/repositories/firestore"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()

	orderEventsTopic := pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
	defer orderEventsTopic.Stop()

	eventPublisher, err := jobs.NewPubSubOrderEventPublisher(orderEventsTopic)
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.Error(err))
	}

	healthRepo, err := newHealthRepository(firestoreClient, orderEventsTopic, fetcher)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	servicesLogger := logger.Named("services")
	container, err := di.NewContainer(ctx, cfg, registry, di.Deps{
		Gateways: gatewayFactory(cfg, logger.Named("payments")),
		Events:   eventPublisher,
		Clock:    time.Now,
		Logger:   zapEventLogger(servicesLogger),
	})
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		idempotencyMiddleware,
	}

	cartHandlers := handlers.NewCartHandlers(authenticator, container.Services.Cart, cfg.Features.EnableGuestCheckout)
	var checkoutOpts []handlers.CheckoutOption
	if cfg.Features.EnableGuestCheckout && cfg.Features.GuestSessionSecret != "" {
		guestSigner, err := auth.NewGuestSessionSigner(cfg.Features.GuestSessionSecret, cfg.Features.GuestSessionTTL, time.Now)
		if err != nil {
			logger.Fatal("guest session signer init failed", zap.Error(err))
		}
		checkoutOpts = append(checkoutOpts, handlers.WithGuestSessionSigner(guestSigner))
	} else if cfg.Features.EnableGuestCheckout {
		logger.Warn("guest session secret not configured; guest sessions are bound to the guest id only")
	}
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, container.Services.Checkout, cfg.Features.EnableGuestCheckout, checkoutOpts...)
	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders)
	addressHandlers := handlers.NewAddressHandlers(authenticator, container.Services.Addresses)
	webhookHandlers := handlers.NewWebhookHandlers(container.Services.Orders,
		handlers.WithRazorpayWebhookSecret(cfg.PSP.RazorpayWebhookSecret),
	)
	stockHandlers := handlers.NewStockHandlers(container.Services.Inventory)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(container.Services.System),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithMeRoutes(func(r chi.Router) {
			r.Route("/addresses", addressHandlers.Routes)
		}),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(func(r chi.Router) {
			r.Route("/stock", stockHandlers.Routes)
		}),
	}
	if internalMW := buildInternalMiddleware(logger.Named("auth"), cfg); internalMW != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(internalMW))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("clovemart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

// gatewayFactory builds the payment adapter set once the container can supply
// the order factory. Adapters are registered only when their configuration is
// present so a deployment can run a subset of gateways.
func gatewayFactory(cfg config.Config, logger *zap.Logger) func(payments.OrderFactory) (*payments.Registry, error) {
	return func(factory payments.OrderFactory) (*payments.Registry, error) {
		adapters := make([]payments.Adapter, 0, 3)

		if cfg.Features.EnableCOD {
			cod, err := payments.NewCODAdapter(payments.CODAdapterConfig{
				Orders: factory,
				Clock:  time.Now,
				Logger: zapEventLogger(logger.Named("cod")),
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, cod)
		}

		if cfg.PSP.RazorpayKeyID != "" && cfg.PSP.RazorpayKeySecret != "" {
			razorpay, err := payments.NewRazorpayAdapter(payments.RazorpayAdapterConfig{
				KeyID:     cfg.PSP.RazorpayKeyID,
				KeySecret: cfg.PSP.RazorpayKeySecret,
				Orders:    factory,
				Clock:     time.Now,
				Logger:    zapEventLogger(logger.Named("razorpay")),
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, razorpay)
		}

		if cfg.PSP.StripeAPIKey != "" {
			stripe, err := payments.NewStripeAdapter(payments.StripeAdapterConfig{
				APIKey: cfg.PSP.StripeAPIKey,
				Orders: factory,
				Clock:  time.Now,
				Logger: zapEventLogger(logger.Named("stripe")),
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, stripe)
		}

		return payments.NewRegistry(adapters...)
	}
}

// newHealthRepository assembles the dependency probes served through /readyz.
func newHealthRepository(client *firestore.Client, topic *pubsub.Topic, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				exists, err := t.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", t.ID())
				}
				return nil
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

// buildInternalMiddleware guards the /internal group. Google-signed OIDC is
// preferred; HMAC signatures are the fallback for callers without a service
// identity.
func buildInternalMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	adapter := observability.NewPrintfAdapter(logger)

	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) != "" && strings.TrimSpace(cfg.Security.OIDC.Audience) != "" {
		cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
		validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(adapter))
		return validator.RequireOIDC(cfg.Security.OIDC.Audience, cfg.Security.OIDC.Issuers)
	}

	hmacSecrets := make(map[string]string)
	for key, value := range cfg.Security.HMAC.Secrets {
		if strings.TrimSpace(value) == "" {
			continue
		}
		hmacSecrets[strings.ToLower(key)] = value
	}
	if cfg.Webhooks.SigningSecret != "" {
		if _, ok := hmacSecrets["default"]; !ok {
			hmacSecrets["default"] = cfg.Webhooks.SigningSecret
		}
	}
	if len(hmacSecrets) == 0 {
		logger.Warn("auth: no OIDC audience or HMAC secrets configured; internal routes are unguarded")
		return nil
	}

	validator := auth.NewHMACValidator(staticSecretProvider{secrets: hmacSecrets}, auth.NewInMemoryNonceStore(),
		auth.WithHMACLogger(adapter),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)
	return validator.RequireHMAC("default")
}

type staticSecretProvider struct {
	secrets map[string]string
}

func (p staticSecretProvider) GetSecret(_ context.Context, name string) (string, error) {
	if len(p.secrets) == 0 {
		return "", errors.New("auth: hmac secrets not configured")
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", errors.New("auth: secret name required")
	}
	if secret, ok := p.secrets[key]; ok && secret != "" {
		return secret, nil
	}
	return "", errors.New("auth: secret not found")
}

// zapEventLogger adapts a zap logger to the event-style logging callback the
// services and payment adapters accept.
func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		return nil
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			zFields = append(zFields, zap.Any(key, fields[key]))
		}
		logger.Debug("service event", zFields...)
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	versionPins := secretVersionPinsFromEnv(env)
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if len(versionPins) > 0 {
		opts = append(opts, secrets.WithVersionPins(versionPins))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secret-backed config fields that must resolve
// at startup. Gateway credentials are required only when the corresponding
// environment variable is set, so COD-only deployments still boot.
func requiredSecretNames(env map[string]string) []string {
	var required []string

	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	if lookup("API_PSP_RAZORPAY_KEY_ID") != "" {
		required = append(required, "PSP.RazorpayKeySecret", "PSP.RazorpayWebhookSecret")
	}
	if lookup("API_PSP_STRIPE_API_KEY") != "" {
		required = append(required, "PSP.StripeAPIKey")
	}
	if lookup("API_PSP_STRIPE_WEBHOOK_SECRET") != "" {
		required = append(required, "PSP.StripeWebhookSecret")
	}
	if lookup("API_WEBHOOK_SIGNING_SECRET") != "" {
		required = append(required, "Webhooks.SigningSecret")
	}
	for _, key := range parseHMACSecretKeys(lookup("API_SECURITY_HMAC_SECRETS")) {
		required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", key))
	}

	return uniqueStrings(required)
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}

func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_VERSION_PINS"]
	}
	raw = strings.TrimSpace(raw)
	pins := make(map[string]string)
	if raw == "" {
		return pins
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		ref := strings.TrimSpace(parts[0])
		version := strings.TrimSpace(parts[1])
		if ref == "" || version == "" {
			continue
		}
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		if strings.HasPrefix(ref, "sm://") {
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		} else if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + ref
		}
		ref = prefix + ref
		pins[ref] = version
	}
	return pins
}

func parseHMACSecretKeys(raw string) []string {
	values := parseKeyValueList(raw)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, strings.ToLower(key))
	}
	sort.Strings(keys)
	return keys
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
