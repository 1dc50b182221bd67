package addon

import (
	"strings"
)

// SanitizePath normalizes a registration path: forces a leading slash,
// collapses duplicate slashes, and strips traversal segments. An empty or
// fully rejected input maps to "/".
func SanitizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	path = strings.ReplaceAll(path, "\\", "/")
	segments := strings.Split(path, "/")
	cleaned := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".", "..":
			continue
		}
		cleaned = append(cleaned, seg)
	}
	if len(cleaned) == 0 {
		return "/"
	}
	return "/" + strings.Join(cleaned, "/")
}

// lifecyclePath returns the registration path for a lifecycle type,
// defaulting to /lifecycle/<type> in lower case.
func lifecyclePath(lifecycleType, path string) string {
	if strings.TrimSpace(path) == "" {
		return "/lifecycle/" + strings.ToLower(strings.TrimSpace(lifecycleType))
	}
	return SanitizePath(path)
}

// webhookPath returns the registration path for a webhook event, defaulting
// to DefaultWebhookPath.
func webhookPath(path string) string {
	if strings.TrimSpace(path) == "" {
		return DefaultWebhookPath
	}
	return SanitizePath(path)
}
