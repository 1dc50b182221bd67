package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clockify/addon-sdk-go/pkg/clockify"
	"github.com/clockify/addon-sdk-go/pkg/log"
	"github.com/clockify/addon-sdk-go/pkg/metrics"
	"github.com/clockify/addon-sdk-go/pkg/payload"
)

// Executor applies the actions of matched rules through the Clockify API.
// With ApplyChanges false it runs dry: every mutation is logged but nothing
// is written, which is how new rules are vetted in production workspaces.
type Executor struct {
	client       *clockify.Client
	applyChanges bool
	logger       zerolog.Logger
}

// NewExecutor builds an executor for one workspace client.
func NewExecutor(client *clockify.Client, applyChanges bool) *Executor {
	return &Executor{
		client:       client,
		applyChanges: applyChanges,
		logger:       log.WithComponent("rules"),
	}
}

// Execute runs all actions of a matched rule against the time entry the
// payload refers to. Entry mutations are folded into a single update so a
// rule with several actions issues one write.
func (x *Executor) Execute(ctx context.Context, r *Rule, p payload.Payload) error {
	workspaceID := p.String("workspaceId")
	entryID := p.String("id")

	var update *clockify.UpdateTimeEntryRequest
	loadUpdate := func() (*clockify.UpdateTimeEntryRequest, error) {
		if update != nil {
			return update, nil
		}
		if entryID == "" {
			return nil, fmt.Errorf("payload carries no time entry id")
		}
		entry, err := x.client.GetTimeEntry(ctx, workspaceID, entryID)
		if err != nil {
			return nil, fmt.Errorf("loading time entry %s: %w", entryID, err)
		}
		update = clockify.UpdateFrom(entry)
		return update, nil
	}

	dirty := false
	for i := range r.Actions {
		a := &r.Actions[i]
		changed, err := x.execute(ctx, a, p, workspaceID, loadUpdate)
		if err != nil {
			metrics.ActionExecutionsTotal.WithLabelValues(a.Type, "error").Inc()
			return fmt.Errorf("rule %q action %s: %w", r.Name, a.Type, err)
		}
		metrics.ActionExecutionsTotal.WithLabelValues(a.Type, "ok").Inc()
		dirty = dirty || changed
	}

	if !dirty {
		return nil
	}
	if !x.applyChanges {
		x.logger.Info().
			Str("rule", r.Name).
			Str("entry", entryID).
			Msg("dry run: time entry update suppressed")
		return nil
	}
	if _, err := x.client.UpdateTimeEntry(ctx, workspaceID, entryID, update); err != nil {
		return fmt.Errorf("rule %q: updating time entry %s: %w", r.Name, entryID, err)
	}
	return nil
}

// execute applies one action. It returns true when the pending time entry
// update was modified and needs flushing.
func (x *Executor) execute(
	ctx context.Context,
	a *Action,
	p payload.Payload,
	workspaceID string,
	loadUpdate func() (*clockify.UpdateTimeEntryRequest, error),
) (bool, error) {
	param := func(key string) string {
		v, _ := a.Params[key].(string)
		return Resolve(v, p)
	}

	switch a.Type {
	case ActionAddTag:
		name := param("name")
		if name == "" {
			return false, fmt.Errorf("add_tag requires a name param")
		}
		update, err := loadUpdate()
		if err != nil {
			return false, err
		}
		tag, err := x.ensureTag(ctx, workspaceID, name)
		if err != nil {
			return false, err
		}
		if tag == nil {
			// Dry run against a tag that does not exist yet.
			x.logger.Info().Str("tag", name).Msg("dry run: tag creation suppressed")
			return false, nil
		}
		for _, id := range update.TagIDs {
			if id == tag.ID {
				return false, nil
			}
		}
		update.TagIDs = append(update.TagIDs, tag.ID)
		return true, nil

	case ActionRemoveTag:
		name := param("name")
		if name == "" {
			return false, fmt.Errorf("remove_tag requires a name param")
		}
		update, err := loadUpdate()
		if err != nil {
			return false, err
		}
		tag, err := x.client.FindTagByName(ctx, workspaceID, name)
		if err != nil {
			return false, err
		}
		if tag == nil {
			return false, nil
		}
		kept := update.TagIDs[:0]
		removed := false
		for _, id := range update.TagIDs {
			if id == tag.ID {
				removed = true
				continue
			}
			kept = append(kept, id)
		}
		update.TagIDs = kept
		return removed, nil

	case ActionSetDescription:
		update, err := loadUpdate()
		if err != nil {
			return false, err
		}
		desc := param("description")
		if desc == update.Description {
			return false, nil
		}
		update.Description = desc
		return true, nil

	case ActionSetBillable:
		update, err := loadUpdate()
		if err != nil {
			return false, err
		}
		billable := strings.EqualFold(param("billable"), "true")
		if update.Billable == billable {
			return false, nil
		}
		update.Billable = billable
		return true, nil

	case ActionSetProjectByID:
		update, err := loadUpdate()
		if err != nil {
			return false, err
		}
		id := param("projectId")
		if id == "" {
			return false, fmt.Errorf("set_project_by_id requires a projectId param")
		}
		if update.ProjectID == id {
			return false, nil
		}
		update.ProjectID = id
		update.TaskID = ""
		return true, nil

	case ActionSetProjectByName:
		update, err := loadUpdate()
		if err != nil {
			return false, err
		}
		name := param("name")
		project, err := x.client.FindProjectByName(ctx, workspaceID, name)
		if err != nil {
			return false, err
		}
		if project == nil {
			return false, fmt.Errorf("project %q not found", name)
		}
		if update.ProjectID == project.ID {
			return false, nil
		}
		update.ProjectID = project.ID
		update.TaskID = ""
		return true, nil

	case ActionSetTaskByID:
		update, err := loadUpdate()
		if err != nil {
			return false, err
		}
		id := param("taskId")
		if id == "" {
			return false, fmt.Errorf("set_task_by_id requires a taskId param")
		}
		if update.TaskID == id {
			return false, nil
		}
		update.TaskID = id
		return true, nil

	case ActionSetTaskByName:
		update, err := loadUpdate()
		if err != nil {
			return false, err
		}
		if update.ProjectID == "" {
			return false, fmt.Errorf("set_task_by_name requires the entry to have a project")
		}
		name := param("name")
		task, err := x.client.FindTaskByName(ctx, workspaceID, update.ProjectID, name)
		if err != nil {
			return false, err
		}
		if task == nil {
			return false, fmt.Errorf("task %q not found in project %s", name, update.ProjectID)
		}
		if update.TaskID == task.ID {
			return false, nil
		}
		update.TaskID = task.ID
		return true, nil

	case ActionOpenAPICall:
		method := strings.ToUpper(param("method"))
		path := param("path")
		if method == "" || path == "" {
			return false, fmt.Errorf("openapi_call requires method and path params")
		}
		body := ResolveValue(a.Params["body"], p)
		if !x.applyChanges {
			x.logger.Info().
				Str("method", method).
				Str("path", path).
				Msg("dry run: API call suppressed")
			return false, nil
		}
		if err := x.client.Call(ctx, method, path, body, nil); err != nil {
			return false, err
		}
		return false, nil

	default:
		return false, fmt.Errorf("action type %q is not allowed", a.Type)
	}
}

// ensureTag resolves a tag by name, creating it only when changes are
// applied. In dry-run mode a missing tag yields nil.
func (x *Executor) ensureTag(ctx context.Context, workspaceID, name string) (*clockify.Tag, error) {
	if x.applyChanges {
		return x.client.EnsureTag(ctx, workspaceID, name)
	}
	return x.client.FindTagByName(ctx, workspaceID, name)
}
