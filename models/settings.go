package models

import "time"

// Settings are the user-adjustable knobs that survive restarts through the
// durable "settings" partition.
type Settings struct {
	// ServerURL overrides the configured base URL when non-empty.
	ServerURL string `json:"server_url,omitempty"`

	// SyncOnCellular allows drain cycles on metered connections.
	SyncOnCellular bool `json:"sync_on_cellular"`

	// LastFullSyncAt records when the entity caches were last rebuilt from
	// the server.
	LastFullSyncAt time.Time `json:"last_full_sync_at"`
}

// DefaultSettings returns the settings used until the user changes anything.
func DefaultSettings() Settings {
	return Settings{SyncOnCellular: true}
}
