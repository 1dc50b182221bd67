package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/clockify/addon-sdk-go/pkg/addon"
	"github.com/clockify/addon-sdk-go/pkg/clockify"
	"github.com/clockify/addon-sdk-go/pkg/log"
	"github.com/clockify/addon-sdk-go/pkg/metrics"
	"github.com/clockify/addon-sdk-go/pkg/payload"
	"github.com/clockify/addon-sdk-go/pkg/rules"
	"github.com/clockify/addon-sdk-go/pkg/token"
)

// handleInstalled stores the workspace installation token so webhook
// processing can call back into the workspace API.
func (app *app) handleInstalled(req *addon.Request) *addon.Response {
	p, err := req.Payload()
	if err != nil {
		return addon.Errorf(http.StatusBadRequest, "invalid lifecycle payload: %v", err)
	}
	workspaceID := p.String("workspaceId")
	authToken := p.String("authToken")
	if workspaceID == "" || authToken == "" {
		return addon.Errorf(http.StatusBadRequest, "lifecycle payload missing workspaceId or authToken")
	}
	apiBaseURL := p.String("apiBaseUrl")

	t := token.New(workspaceID, authToken, apiBaseURL, time.Now())
	if err := app.tokens.Save(req.HTTP.Context(), t); err != nil {
		wlog := log.WithWorkspace(workspaceID)
		wlog.Error().Err(err).Msg("storing installation token")
		return addon.Errorf(http.StatusInternalServerError, "could not store installation token")
	}
	wlog := log.WithWorkspace(workspaceID)
	wlog.Info().
		Str("token", log.Redact(authToken)).
		Str("apiBaseUrl", t.APIBaseURL).
		Msg("addon installed")
	return addon.JSON(http.StatusOK, map[string]string{"status": "installed"})
}

// handleDeleted removes the installation token and purges every rule the
// workspace had configured.
func (app *app) handleDeleted(req *addon.Request) *addon.Response {
	p, err := req.Payload()
	if err != nil {
		return addon.Errorf(http.StatusBadRequest, "invalid lifecycle payload: %v", err)
	}
	workspaceID := p.String("workspaceId")
	if workspaceID == "" {
		return addon.Errorf(http.StatusBadRequest, "lifecycle payload missing workspaceId")
	}

	ctx := req.HTTP.Context()
	logger := log.WithWorkspace(workspaceID)
	if err := app.tokens.Delete(ctx, workspaceID); err != nil && !errors.Is(err, token.ErrNotFound) {
		logger.Error().Err(err).Msg("removing installation token")
	}
	if err := app.ruleStore.DeleteAll(ctx, workspaceID); err != nil {
		logger.Error().Err(err).Msg("purging workspace rules")
	}
	logger.Info().Msg("addon uninstalled")
	return addon.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// handleWebhook runs the event pipeline: dedup, token lookup, rule
// selection, action execution. Unknown or duplicate deliveries are
// acknowledged with 200 so Clockify does not retry them.
func (app *app) handleWebhook(req *addon.Request) *addon.Response {
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
	logger := log.WithWorkspace(workspaceID).With().Str("event", event).Logger()

	ctx := req.HTTP.Context()
	if !app.cache.FirstDelivery(ctx, workspaceID, event, p, req.RawBody()) {
		logger.Debug().Msg("duplicate delivery acknowledged")
		metrics.WebhookEventsTotal.WithLabelValues(event, "duplicate").Inc()
		return addon.JSON(http.StatusOK, map[string]string{"status": "duplicate"})
	}

	outcome, status, body := app.processEvent(ctx, logger, workspaceID, event, p)
	metrics.WebhookEventsTotal.WithLabelValues(event, outcome).Inc()
	metrics.WebhookDuration.WithLabelValues(event).Observe(time.Since(started).Seconds())
	return addon.JSON(status, body)
}

func (app *app) processEvent(ctx context.Context, logger zerolog.Logger, workspaceID, event string, p payload.Payload) (string, int, any) {
	tok, err := app.tokens.Get(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) || errors.Is(err, token.ErrExpired) {
			logger.Warn().Err(err).Msg("no usable installation token, skipping")
			return "skipped", http.StatusOK, map[string]string{"status": "skipped", "reason": "no installation token"}
		}
		logger.Error().Err(err).Msg("loading installation token")
		return "error", http.StatusInternalServerError, map[string]string{"error": "token lookup failed"}
	}

	list, err := app.ruleStore.List(ctx, workspaceID)
	if err != nil {
		logger.Error().Err(err).Msg("listing rules")
		return "error", http.StatusInternalServerError, map[string]string{"error": "rule lookup failed"}
	}

	matched := app.evaluator.Select(list, event, p)
	if len(matched) == 0 {
		return "no_match", http.StatusOK, map[string]string{"status": "acknowledged"}
	}

	client := clockify.NewClient(tok.Token, clockify.WithBaseURL(tok.APIBaseURL))
	executor := rules.NewExecutor(client, app.cfg.Rules.ApplyChanges)

	applied := make([]string, 0, len(matched))
	var failed int
	for _, r := range matched {
		if err := executor.Execute(ctx, r, p); err != nil {
			failed++
			logger.Error().Err(err).Str("rule", r.Name).Msg("rule execution failed")
			continue
		}
		applied = append(applied, r.Name)
	}

	if failed > 0 {
		return "partial", http.StatusOK, map[string]any{"status": "partial", "applied": applied, "failed": failed}
	}
	return "processed", http.StatusOK, map[string]any{"status": "processed", "applied": applied}
}
