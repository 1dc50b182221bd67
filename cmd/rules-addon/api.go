package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/clockify/addon-sdk-go/pkg/addon"
	"github.com/clockify/addon-sdk-go/pkg/log"
	"github.com/clockify/addon-sdk-go/pkg/rules"
)

const rulesAPIPrefix = "/api/rules"

// rulesAPIHandler serves the rule management API used by the settings page:
//
//	GET    /api/rules?workspace=ID       list rules
//	POST   /api/rules?workspace=ID       create a rule
//	GET    /api/rules/{id}?workspace=ID  fetch one rule
//	PUT    /api/rules/{id}?workspace=ID  replace a rule
//	DELETE /api/rules/{id}?workspace=ID  delete a rule
func (app *app) rulesAPIHandler(req *addon.Request) *addon.Response {
	workspaceID := req.HTTP.URL.Query().Get("workspace")
	if workspaceID == "" {
		return addon.Errorf(http.StatusBadRequest, "workspace query parameter is required")
	}
	req.SetWorkspaceID(workspaceID)

	rest := strings.TrimPrefix(addon.SanitizePath(req.HTTP.URL.Path), rulesAPIPrefix)
	ruleID := strings.Trim(rest, "/")
	if strings.Contains(ruleID, "/") {
		return addon.Errorf(http.StatusNotFound, "no such resource")
	}

	ctx := req.HTTP.Context()
	switch {
	case ruleID == "" && req.HTTP.Method == http.MethodGet:
		return app.listRules(ctx, workspaceID)
	case ruleID == "" && req.HTTP.Method == http.MethodPost:
		return app.saveRule(req, workspaceID, "")
	case ruleID != "" && req.HTTP.Method == http.MethodGet:
		return app.getRule(ctx, workspaceID, ruleID)
	case ruleID != "" && req.HTTP.Method == http.MethodPut:
		return app.saveRule(req, workspaceID, ruleID)
	case ruleID != "" && req.HTTP.Method == http.MethodDelete:
		return app.deleteRule(ctx, workspaceID, ruleID)
	default:
		return addon.Errorf(http.StatusMethodNotAllowed, "method %s not allowed", req.HTTP.Method)
	}
}

func (app *app) listRules(ctx context.Context, workspaceID string) *addon.Response {
	list, err := app.ruleStore.List(ctx, workspaceID)
	if err != nil {
		wlog := log.WithWorkspace(workspaceID)
		wlog.Error().Err(err).Msg("listing rules")
		return addon.Errorf(http.StatusInternalServerError, "could not list rules")
	}
	rules.SortByPriority(list)
	return addon.JSON(http.StatusOK, map[string]any{"rules": list})
}

func (app *app) getRule(ctx context.Context, workspaceID, ruleID string) *addon.Response {
	r, err := app.ruleStore.Get(ctx, workspaceID, ruleID)
	if errors.Is(err, rules.ErrNotFound) {
		return addon.Errorf(http.StatusNotFound, "rule %s not found", ruleID)
	}
	if err != nil {
		return addon.Errorf(http.StatusInternalServerError, "could not load rule")
	}
	return addon.JSON(http.StatusOK, r)
}

// saveRule handles both create (empty ruleID) and replace. The document is
// schema-checked before decoding so malformed input never reaches the store.
func (app *app) saveRule(req *addon.Request, workspaceID, ruleID string) *addon.Response {
	raw := req.RawBody()
	if err := rules.ValidateDocument(raw); err != nil {
		return addon.Errorf(http.StatusUnprocessableEntity, "invalid rule: %v", err)
	}
	var r rules.Rule
	if err := json.Unmarshal(raw, &r); err != nil {
		return addon.Errorf(http.StatusBadRequest, "invalid rule document: %v", err)
	}
	r.WorkspaceID = workspaceID

	ctx := req.HTTP.Context()
	if ruleID != "" {
		existing, err := app.ruleStore.Get(ctx, workspaceID, ruleID)
		if errors.Is(err, rules.ErrNotFound) {
			return addon.Errorf(http.StatusNotFound, "rule %s not found", ruleID)
		}
		if err != nil {
			return addon.Errorf(http.StatusInternalServerError, "could not load rule")
		}
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
	}

	if err := rules.Validate(&r); err != nil {
		return addon.Errorf(http.StatusUnprocessableEntity, "invalid rule: %v", err)
	}
	if err := app.ruleStore.Save(ctx, &r); err != nil {
		wlog := log.WithWorkspace(workspaceID)
		wlog.Error().Err(err).Msg("saving rule")
		return addon.Errorf(http.StatusInternalServerError, "could not save rule")
	}

	// Rules may target events beyond the default set; make sure a webhook
	// handler exists so the event actually reaches the evaluator.
	if r.Event != "" && !app.addon.HasWebhook(r.Event) {
		app.addon.RegisterWebhook(r.Event, app.handleWebhook)
		wlog := log.WithWorkspace(workspaceID)
		wlog.Info().Str("event", r.Event).Msg("registered webhook for rule event")
	}

	status := http.StatusOK
	if ruleID == "" {
		status = http.StatusCreated
	}
	return addon.JSON(status, &r)
}

func (app *app) deleteRule(ctx context.Context, workspaceID, ruleID string) *addon.Response {
	err := app.ruleStore.Delete(ctx, workspaceID, ruleID)
	if errors.Is(err, rules.ErrNotFound) {
		return addon.Errorf(http.StatusNotFound, "rule %s not found", ruleID)
	}
	if err != nil {
		return addon.Errorf(http.StatusInternalServerError, "could not delete rule")
	}
	return addon.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}
