package clockify

// Tag is a workspace tag.
type Tag struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
	Archived    bool   `json:"archived"`
}

// Project is a workspace project.
type Project struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ClientID string `json:"clientId"`
	Archived bool   `json:"archived"`
	Billable bool   `json:"billable"`
	Color    string `json:"color"`
}

// WorkspaceClient is a client (customer) record in a workspace. The name
// avoids colliding with the HTTP Client type.
type WorkspaceClient struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

// Task is a task within a project.
type Task struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
}

// User is a workspace member.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// TimeInterval is the start/end pair of a time entry, RFC 3339 encoded.
type TimeInterval struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// TimeEntry is a tracked time entry.
type TimeEntry struct {
	ID           string       `json:"id"`
	Description  string       `json:"description"`
	UserID       string       `json:"userId"`
	WorkspaceID  string       `json:"workspaceId"`
	ProjectID    string       `json:"projectId,omitempty"`
	TaskID       string       `json:"taskId,omitempty"`
	TagIDs       []string     `json:"tagIds"`
	Billable     bool         `json:"billable"`
	TimeInterval TimeInterval `json:"timeInterval"`
}

// UpdateTimeEntryRequest is the PUT body for a time entry. The API replaces
// the entry wholesale, so callers must send every field they want kept.
type UpdateTimeEntryRequest struct {
	Start       string   `json:"start"`
	End         string   `json:"end,omitempty"`
	Description string   `json:"description"`
	ProjectID   string   `json:"projectId,omitempty"`
	TaskID      string   `json:"taskId,omitempty"`
	TagIDs      []string `json:"tagIds"`
	Billable    bool     `json:"billable"`
}

// UpdateFrom seeds the request from an existing entry, so a caller can
// change one field without clobbering the rest.
func UpdateFrom(e *TimeEntry) *UpdateTimeEntryRequest {
	tagIDs := make([]string, len(e.TagIDs))
	copy(tagIDs, e.TagIDs)
	return &UpdateTimeEntryRequest{
		Start:       e.TimeInterval.Start,
		End:         e.TimeInterval.End,
		Description: e.Description,
		ProjectID:   e.ProjectID,
		TaskID:      e.TaskID,
		TagIDs:      tagIDs,
		Billable:    e.Billable,
	}
}
