package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/clockify/addon-sdk-go/pkg/payload"
)

// preferredIDFields lists payload fields that uniquely identify a delivery,
// in lookup order. The first non-empty one wins.
var preferredIDFields = []string{
	"payloadId",
	"eventId",
	"id",
	"timeEntryId",
	"timeEntry.id",
	"assignmentId",
	"projectId",
	"clientId",
	"targetId",
	"taskId",
	"userId",
	"webhookId",
	"invoiceId",
}

// Key derives the idempotency key for a webhook delivery. When the payload
// carries no usable identifier the key falls back to a digest of the raw
// body, so byte-identical redeliveries still collapse.
func Key(workspaceID, event string, p payload.Payload, rawBody []byte) string {
	id := ""
	for _, field := range preferredIDFields {
		if v := strings.TrimSpace(p.String(field)); v != "" {
			id = v
			break
		}
	}
	if id == "" {
		sum := sha256.Sum256(rawBody)
		id = "sha256:" + hex.EncodeToString(sum[:])
	}
	return workspaceID + ":" + event + ":" + id
}
