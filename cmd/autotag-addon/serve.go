package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clockify/addon-sdk-go/pkg/addon"
	"github.com/clockify/addon-sdk-go/pkg/clockify"
	"github.com/clockify/addon-sdk-go/pkg/config"
	"github.com/clockify/addon-sdk-go/pkg/dedup"
	"github.com/clockify/addon-sdk-go/pkg/log"
	"github.com/clockify/addon-sdk-go/pkg/manifest"
	"github.com/clockify/addon-sdk-go/pkg/metrics"
	"github.com/clockify/addon-sdk-go/pkg/middleware"
	"github.com/clockify/addon-sdk-go/pkg/payload"
	"github.com/clockify/addon-sdk-go/pkg/security"
	"github.com/clockify/addon-sdk-go/pkg/token"
)

const addonKey = "autotag"

var watchedEvents = []string{"NEW_TIME_ENTRY", "TIME_ENTRY_UPDATED", "TIMER_STOPPED"}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the auto-tag addon HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		keywordPath, _ := cmd.Flags().GetString("keywords")
		tagByProject, _ := cmd.Flags().GetBool("tag-by-project")
		skipSignature, _ := cmd.Flags().GetBool("skip-signature")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})

		keywords, err := loadKeywords(keywordPath)
		if err != nil {
			return err
		}

		app, err := newApp(cfg, newSuggester(keywords, tagByProject), skipSignature)
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
	serveCmd.Flags().String("keywords", "", "path to a YAML tag->keywords mapping (built-in table when empty)")
	serveCmd.Flags().Bool("tag-by-project", false, "also tag entries with their project name")
	serveCmd.Flags().Bool("skip-signature", false, "disable webhook signature verification (development only)")
}

type app struct {
	cfg       *config.Config
	addon     *addon.Addon
	server    *addon.Server
	tokens    token.Store
	cache     *dedup.Cache
	suggester *suggester
}

func newApp(cfg *config.Config, s *suggester, skipSignature bool) (*app, error) {
	logger := log.WithAddon(addonKey)

	tokens, err := token.OpenStore(cfg.Storage.Backend, cfg.Storage.BoltPath, cfg.Storage.Postgres)
	if err != nil {
		return nil, err
	}
	cache, err := dedup.OpenCache(cfg.Storage.Backend, cfg.Storage.Postgres, cfg.Dedup.TTL)
	if err != nil {
		return nil, err
	}

	m := manifest.New(addonKey, "Auto-Tag").
		WithDescription("Tags untagged time entries from description keywords.").
		WithBaseURL(cfg.BaseURL).
		WithScopes("TIME_ENTRY_READ", "TIME_ENTRY_WRITE", "TAG_READ", "TAG_WRITE", "PROJECT_READ")
	if err := m.Validate(); err != nil {
		return nil, err
	}

	a := addon.New(m)
	app := &app{
		cfg:       cfg,
		addon:     a,
		tokens:    tokens,
		cache:     cache,
		suggester: s,
	}

	a.RegisterEndpoint("/manifest.json", addon.ManifestHandler(a))
	a.RegisterLifecycle(manifest.LifecycleInstalled, app.handleInstalled)
	a.RegisterLifecycle(manifest.LifecycleDeleted, app.handleDeleted)
	for _, event := range watchedEvents {
		a.RegisterWebhook(event, app.handleWebhook)
	}

	mw := []addon.Middleware{
		middleware.Mount("/metrics", metrics.Handler()),
		middleware.RequestID,
		middleware.Logging,
		middleware.SecurityHeaders,
	}
	if !skipSignature && cfg.Security.HMACSecret != "" {
		validator := security.NewValidator(nil, security.NewHMACVerifier(cfg.Security.HMACSecret))
		mw = append(mw, middleware.Signature(validator, "/webhook", "/lifecycle"))
	} else {
		logger.Warn().Msg("signature verification disabled")
	}

	app.server = addon.NewServer(a, addon.ServerConfig{Addr: cfg.Addr}, mw...)
	return app, nil
}

func (a *app) close() {
	a.tokens.Close()
	a.cache.Close()
}

func (a *app) handleInstalled(req *addon.Request) *addon.Response {
	p, err := req.Payload()
	if err != nil {
		return addon.Errorf(http.StatusBadRequest, "invalid lifecycle payload: %v", err)
	}
	workspaceID := p.String("workspaceId")
	authToken := p.String("authToken")
	if workspaceID == "" || authToken == "" {
		return addon.Errorf(http.StatusBadRequest, "lifecycle payload missing workspaceId or authToken")
	}
	t := token.New(workspaceID, authToken, p.String("apiBaseUrl"), time.Now())
	if err := a.tokens.Save(req.HTTP.Context(), t); err != nil {
		return addon.Errorf(http.StatusInternalServerError, "could not store installation token")
	}
	wlog := log.WithWorkspace(workspaceID)
	wlog.Info().Str("token", log.Redact(authToken)).Msg("addon installed")
	return addon.JSON(http.StatusOK, map[string]string{"status": "installed"})
}

func (a *app) handleDeleted(req *addon.Request) *addon.Response {
	p, err := req.Payload()
	if err != nil {
		return addon.Errorf(http.StatusBadRequest, "invalid lifecycle payload: %v", err)
	}
	workspaceID := p.String("workspaceId")
	if workspaceID == "" {
		return addon.Errorf(http.StatusBadRequest, "lifecycle payload missing workspaceId")
	}
	if err := a.tokens.Delete(req.HTTP.Context(), workspaceID); err != nil && !errors.Is(err, token.ErrNotFound) {
		wlog := log.WithWorkspace(workspaceID)
		wlog.Error().Err(err).Msg("removing installation token")
	}
	return addon.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// handleWebhook tags untagged entries. Entries that already carry tags are
// acknowledged untouched so user tagging always wins.
func (a *app) handleWebhook(req *addon.Request) *addon.Response {
	started := time.Now()
	p, err := req.Payload()
	if err != nil {
		return addon.Errorf(http.StatusBadRequest, "invalid webhook payload: %v", err)
	}
	event := req.Header(addon.EventTypeHeader)
	if event == "" {
		event = p.String("event")
	}
	workspaceID := p.String("workspaceId")
	if workspaceID == "" {
		metrics.WebhookEventsTotal.WithLabelValues(event, "rejected").Inc()
		return addon.Errorf(http.StatusBadRequest, "webhook payload missing workspaceId")
	}
	req.SetWorkspaceID(workspaceID)

	ctx := req.HTTP.Context()
	if !a.cache.FirstDelivery(ctx, workspaceID, event, p, req.RawBody()) {
		metrics.WebhookEventsTotal.WithLabelValues(event, "duplicate").Inc()
		return addon.JSON(http.StatusOK, map[string]string{"status": "duplicate"})
	}

	outcome, resp := a.tagEntry(ctx, workspaceID, p)
	metrics.WebhookEventsTotal.WithLabelValues(event, outcome).Inc()
	metrics.WebhookDuration.WithLabelValues(event).Observe(time.Since(started).Seconds())
	return resp
}

func (a *app) tagEntry(ctx context.Context, workspaceID string, p payload.Payload) (string, *addon.Response) {
	logger := log.WithWorkspace(workspaceID)

	if tags, _ := p.Lookup("tags"); tagsPresent(tags) {
		return "skipped", addon.JSON(http.StatusOK, map[string]string{"status": "skipped", "reason": "entry already tagged"})
	}
	entryID := p.String("id")
	if entryID == "" {
		return "skipped", addon.JSON(http.StatusOK, map[string]string{"status": "skipped", "reason": "no time entry id"})
	}

	suggestions := a.suggester.Suggest(p.String("description"), p.String("project.name"))
	if len(suggestions) == 0 {
		return "no_match", addon.JSON(http.StatusOK, map[string]string{"status": "acknowledged"})
	}

	tok, err := a.tokens.Get(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) || errors.Is(err, token.ErrExpired) {
			return "skipped", addon.JSON(http.StatusOK, map[string]string{"status": "skipped", "reason": "no installation token"})
		}
		return "error", addon.Errorf(http.StatusInternalServerError, "token lookup failed")
	}
	client := clockify.NewClient(tok.Token, clockify.WithBaseURL(tok.APIBaseURL))

	entry, err := client.GetTimeEntry(ctx, workspaceID, entryID)
	if err != nil {
		logger.Error().Err(err).Str("entry", entryID).Msg("loading time entry")
		return "error", addon.Errorf(http.StatusInternalServerError, "could not load time entry")
	}
	if len(entry.TagIDs) > 0 {
		return "skipped", addon.JSON(http.StatusOK, map[string]string{"status": "skipped", "reason": "entry already tagged"})
	}

	update := clockify.UpdateFrom(entry)
	for _, name := range suggestions {
		tag, err := client.EnsureTag(ctx, workspaceID, name)
		if err != nil {
			logger.Error().Err(err).Str("tag", name).Msg("ensuring tag")
			return "error", addon.Errorf(http.StatusInternalServerError, "could not ensure tag %q", name)
		}
		update.TagIDs = append(update.TagIDs, tag.ID)
	}
	if _, err := client.UpdateTimeEntry(ctx, workspaceID, entryID, update); err != nil {
		logger.Error().Err(err).Str("entry", entryID).Msg("updating time entry")
		return "error", addon.Errorf(http.StatusInternalServerError, "could not update time entry")
	}

	logger.Info().Str("entry", entryID).Strs("tags", suggestions).Msg("entry tagged")
	return "processed", addon.JSON(http.StatusOK, map[string]any{"status": "processed", "tags": suggestions})
}

// tagsPresent reports whether the payload tags value holds at least one tag.
func tagsPresent(v any) bool {
	list, ok := v.([]any)
	return ok && len(list) > 0
}
