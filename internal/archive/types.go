package archive

import "time"

// RawWebhook is a verified call webhook body as it arrived on the wire.
type RawWebhook struct {
	CallID     string
	Event      string
	TenantID   string
	Body       []byte
	ReceivedAt time.Time
}

// ManifestEntry is one line of the monthly JSONL manifest.
type ManifestEntry struct {
	CallID     string `json:"call_id"`
	Event      string `json:"event"`
	TenantID   string `json:"tenant_id,omitempty"`
	S3Key      string `json:"s3_key"`
	SizeBytes  int    `json:"size_bytes"`
	ArchivedAt string `json:"archived_at"`
}
