package entities

import "time"

// Well-known configuration flags toggled from the admin screens
const (
	SettingFreeMode        = "free_mode"
	SettingMaintenanceMode = "maintenance_mode"
)

// Setting is a single key/value configuration flag
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// UploadRequest asks for a pre-signed object storage upload
type UploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// SignedUpload is a time-limited upload target
type SignedUpload struct {
	URL       string            `json:"url"`
	Key       string            `json:"key"`
	Method    string            `json:"method"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Headers   map[string]string `json:"headers,omitempty"`
}
