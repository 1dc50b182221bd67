package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clockify/addon-sdk-go/pkg/addon"
	"github.com/clockify/addon-sdk-go/pkg/config"
	"github.com/clockify/addon-sdk-go/pkg/dedup"
	"github.com/clockify/addon-sdk-go/pkg/health"
	"github.com/clockify/addon-sdk-go/pkg/log"
	"github.com/clockify/addon-sdk-go/pkg/manifest"
	"github.com/clockify/addon-sdk-go/pkg/metrics"
	"github.com/clockify/addon-sdk-go/pkg/middleware"
	"github.com/clockify/addon-sdk-go/pkg/rules"
	"github.com/clockify/addon-sdk-go/pkg/security"
	"github.com/clockify/addon-sdk-go/pkg/token"
)

const addonKey = "rules-automation"

// defaultEvents are the webhooks registered up front; rules referencing
// other events register their webhook when the rule is saved.
var defaultEvents = []string{"NEW_TIME_ENTRY", "TIME_ENTRY_UPDATED", "TIMER_STOPPED"}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rules addon HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		skipSignature, _ := cmd.Flags().GetBool("skip-signature")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})

		app, err := newApp(cfg, skipSignature)
		if err != nil {
			return err
		}
		defer app.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return app.server.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "path to the YAML config file")
	serveCmd.Flags().Bool("skip-signature", false, "disable webhook signature verification (local development only)")
}

// app wires the stores, the security layer and the addon server together.
type app struct {
	cfg       *config.Config
	addon     *addon.Addon
	server    *addon.Server
	tokens    token.Store
	ruleStore rules.Store
	cache     *dedup.Cache
	evaluator *rules.Evaluator
	limiter   *middleware.RateLimiter
}

func newApp(cfg *config.Config, skipSignature bool) (*app, error) {
	logger := log.WithAddon(addonKey)

	tokens, err := token.OpenStore(cfg.Storage.Backend, cfg.Storage.BoltPath, cfg.Storage.Postgres)
	if err != nil {
		return nil, err
	}
	ruleStore, err := rules.OpenStore(cfg.Storage.Backend, cfg.Storage.BoltPath+".rules", cfg.Storage.Postgres)
	if err != nil {
		return nil, err
	}
	cache, err := dedup.OpenCache(cfg.Storage.Backend, cfg.Storage.Postgres, cfg.Dedup.TTL)
	if err != nil {
		return nil, err
	}

	m := manifest.New(addonKey, "Rules Automation").
		WithDescription("Evaluates if/then rules against time entry events.").
		WithBaseURL(cfg.BaseURL).
		WithScopes("TIME_ENTRY_READ", "TIME_ENTRY_WRITE", "TAG_READ", "TAG_WRITE", "PROJECT_READ", "TASK_READ").
		WithComponent(manifest.Component{
			Type:        "settings-tab",
			Label:       "Rules",
			Path:        "/settings",
			AccessLevel: "ADMINS",
		})
	if err := m.Validate(); err != nil {
		return nil, err
	}

	a := addon.New(m)
	app := &app{
		cfg:       cfg,
		addon:     a,
		tokens:    tokens,
		ruleStore: rules.NewCachedStore(ruleStore, cfg.Rules.CacheTTL),
		cache:     cache,
		evaluator: rules.NewEvaluator(),
	}

	a.RegisterEndpoint("/manifest.json", addon.ManifestHandler(a))
	a.RegisterEndpoint("/settings", app.settingsHandler)
	a.RegisterPrefix("/api/rules", app.rulesAPIHandler)
	a.RegisterLifecycle(manifest.LifecycleInstalled, app.handleInstalled)
	a.RegisterLifecycle(manifest.LifecycleDeleted, app.handleDeleted)
	for _, event := range defaultEvents {
		a.RegisterWebhook(event, app.handleWebhook)
	}

	checks := health.NewRegistry()
	checks.Register(health.CheckFunc{CheckName: "token-store", Fn: func(ctx context.Context) error {
		_, err := tokens.Get(ctx, "health-probe")
		if errors.Is(err, token.ErrNotFound) || errors.Is(err, token.ErrExpired) {
			return nil
		}
		return err
	}})

	mw := []addon.Middleware{
		middleware.Mount("/metrics", metrics.Handler()),
		middleware.Mount("/healthz", checks.LivenessHandler()),
		middleware.Mount("/readyz", checks.ReadinessHandler()),
		middleware.RequestID,
		middleware.Logging,
		middleware.SecurityHeaders,
	}
	if cfg.RateLimit.RPS > 0 {
		app.limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		mw = append(mw, app.limiter.Middleware)
	}
	if validator := buildValidator(cfg, skipSignature); validator != nil {
		mw = append(mw, middleware.Signature(validator, "/webhook", "/lifecycle"))
	} else {
		logger.Warn().Msg("signature verification disabled")
	}

	app.server = addon.NewServer(a, addon.ServerConfig{Addr: cfg.Addr}, mw...)
	return app, nil
}

// buildValidator assembles the signature validator from the configured key
// material. Nil means verification is off.
func buildValidator(cfg *config.Config, skip bool) *security.Validator {
	if skip {
		return nil
	}
	var jwtVerifier *security.JWTVerifier
	var opts []security.JWTOption
	if cfg.Security.ExpectedSubject != "" {
		opts = append(opts, security.WithExpectedSubject(cfg.Security.ExpectedSubject))
	}
	switch {
	case cfg.Security.JWKSURL != "":
		jwtVerifier = security.NewJWTVerifier(security.NewJWKSClient(cfg.Security.JWKSURL), opts...)
	case cfg.Security.PublicKeyPEM != "":
		key, err := security.ParsePublicKeyPEM([]byte(cfg.Security.PublicKeyPEM))
		if err != nil {
			log.Errorf("failed to parse configured public key", err)
			return nil
		}
		jwtVerifier = security.NewJWTVerifier(security.StaticKeys{"": key}, opts...)
	}

	var hmacVerifier *security.HMACVerifier
	if cfg.Security.HMACSecret != "" {
		hmacVerifier = security.NewHMACVerifier(cfg.Security.HMACSecret)
	}
	if jwtVerifier == nil && hmacVerifier == nil {
		return nil
	}
	return security.NewValidator(jwtVerifier, hmacVerifier)
}

func (a *app) close() {
	a.tokens.Close()
	a.ruleStore.Close()
	a.cache.Close()
	if a.limiter != nil {
		a.limiter.Close()
	}
}
