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

const addonKey = "overtime"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the overtime addon HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		threshold, _ := cmd.Flags().GetDuration("daily-threshold")
		tagName, _ := cmd.Flags().GetString("tag")
		skipSignature, _ := cmd.Flags().GetBool("skip-signature")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})

		app, err := newApp(cfg, threshold, tagName, skipSignature)
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
	serveCmd.Flags().Duration("daily-threshold", 8*time.Hour, "daily tracked time above which entries are tagged")
	serveCmd.Flags().String("tag", "Overtime", "tag attached to entries exceeding the threshold")
	serveCmd.Flags().Bool("skip-signature", false, "disable webhook signature verification (development only)")
}

type app struct {
	cfg       *config.Config
	addon     *addon.Addon
	server    *addon.Server
	tokens    token.Store
	cache     *dedup.Cache
	ledger    *ledger
	threshold time.Duration
	tagName   string
}

func newApp(cfg *config.Config, threshold time.Duration, tagName string, skipSignature bool) (*app, error) {
	logger := log.WithAddon(addonKey)
	if threshold <= 0 {
		threshold = 8 * time.Hour
	}
	if tagName == "" {
		tagName = "Overtime"
	}

	tokens, err := token.OpenStore(cfg.Storage.Backend, cfg.Storage.BoltPath, cfg.Storage.Postgres)
	if err != nil {
		return nil, err
	}
	cache, err := dedup.OpenCache(cfg.Storage.Backend, cfg.Storage.Postgres, cfg.Dedup.TTL)
	if err != nil {
		return nil, err
	}

	m := manifest.New(addonKey, "Overtime").
		WithDescription("Tags time entries that push a day over its tracked-time limit.").
		WithBaseURL(cfg.BaseURL).
		WithScopes("TIME_ENTRY_READ", "TIME_ENTRY_WRITE", "TAG_READ", "TAG_WRITE")
	if err := m.Validate(); err != nil {
		return nil, err
	}

	a := addon.New(m)
	app := &app{
		cfg:       cfg,
		addon:     a,
		tokens:    tokens,
		cache:     cache,
		ledger:    newLedger(),
		threshold: threshold,
		tagName:   tagName,
	}

	a.RegisterEndpoint("/manifest.json", addon.ManifestHandler(a))
	a.RegisterLifecycle(manifest.LifecycleInstalled, app.handleInstalled)
	a.RegisterLifecycle(manifest.LifecycleDeleted, app.handleDeleted)
	a.RegisterWebhook("TIMER_STOPPED", app.handleTimerStopped)

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
	a.ledger.Purge(workspaceID)
	return addon.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// handleTimerStopped folds the stopped entry into the user's daily total
// and tags the entry when the total crosses the threshold.
func (a *app) handleTimerStopped(req *addon.Request) *addon.Response {
	started := time.Now()
	const event = "TIMER_STOPPED"

	p, err := req.Payload()
	if err != nil {
		return addon.Errorf(http.StatusBadRequest, "invalid webhook payload: %v", err)
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

	outcome, resp := a.trackEntry(ctx, workspaceID, p)
	metrics.WebhookEventsTotal.WithLabelValues(event, outcome).Inc()
	metrics.WebhookDuration.WithLabelValues(event).Observe(time.Since(started).Seconds())
	return resp
}

func (a *app) trackEntry(ctx context.Context, workspaceID string, p payload.Payload) (string, *addon.Response) {
	logger := log.WithWorkspace(workspaceID)

	entryID := p.String("id")
	userID := p.String("userId")
	start, end := p.String("timeInterval.start"), p.String("timeInterval.end")
	if entryID == "" || userID == "" || start == "" || end == "" {
		return "skipped", addon.JSON(http.StatusOK, map[string]string{"status": "skipped", "reason": "incomplete time entry"})
	}

	tracked, day, err := interval(start, end)
	if err != nil {
		return "skipped", addon.Errorf(http.StatusBadRequest, "invalid time interval: %v", err)
	}

	total := a.ledger.Add(workspaceID, userID, day, tracked)
	logger.Debug().
		Str("user", userID).
		Dur("tracked", tracked).
		Dur("total", total).
		Msg("daily total updated")
	if total <= a.threshold {
		return "processed", addon.JSON(http.StatusOK, map[string]any{
			"status":     "processed",
			"dailyTotal": total.String(),
		})
	}

	tok, err := a.tokens.Get(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) || errors.Is(err, token.ErrExpired) {
			return "skipped", addon.JSON(http.StatusOK, map[string]string{"status": "skipped", "reason": "no installation token"})
		}
		return "error", addon.Errorf(http.StatusInternalServerError, "token lookup failed")
	}
	client := clockify.NewClient(tok.Token, clockify.WithBaseURL(tok.APIBaseURL))

	if err := a.tagOvertime(ctx, client, workspaceID, entryID); err != nil {
		logger.Error().Err(err).Str("entry", entryID).Msg("tagging overtime entry")
		return "error", addon.Errorf(http.StatusInternalServerError, "could not tag time entry")
	}

	logger.Info().
		Str("user", userID).
		Str("entry", entryID).
		Dur("total", total).
		Msg("daily threshold exceeded, entry tagged")
	return "processed", addon.JSON(http.StatusOK, map[string]any{
		"status":     "processed",
		"dailyTotal": total.String(),
		"tagged":     true,
	})
}

func (a *app) tagOvertime(ctx context.Context, client *clockify.Client, workspaceID, entryID string) error {
	tag, err := client.EnsureTag(ctx, workspaceID, a.tagName)
	if err != nil {
		return err
	}
	entry, err := client.GetTimeEntry(ctx, workspaceID, entryID)
	if err != nil {
		return err
	}
	for _, id := range entry.TagIDs {
		if id == tag.ID {
			return nil
		}
	}
	update := clockify.UpdateFrom(entry)
	update.TagIDs = append(update.TagIDs, tag.ID)
	_, err = client.UpdateTimeEntry(ctx, workspaceID, entryID, update)
	return err
}

// interval parses an RFC3339 start/end pair into the tracked duration and
// the day bucket the entry belongs to (by its start time).
func interval(start, end string) (time.Duration, time.Time, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return 0, time.Time{}, err
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return 0, time.Time{}, err
	}
	d := e.Sub(s)
	if d < 0 {
		return 0, time.Time{}, errors.New("interval ends before it starts")
	}
	return d, s, nil
}
