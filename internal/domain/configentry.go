package domain

import "time"

// ConfigValueType describes how a config entry's stored value is interpreted.
type ConfigValueType string

const (
	ConfigTypeString    ConfigValueType = "string"
	ConfigTypeInt       ConfigValueType = "int"
	ConfigTypeBool      ConfigValueType = "bool"
	ConfigTypeJSON      ConfigValueType = "json"
	ConfigTypeSecretRef ConfigValueType = "secret_ref"
)

// ConfigEntry is one (scope, key) record in the scoped config store. For
// secret_ref entries Value holds the vault secret name, never the secret.
type ConfigEntry struct {
	Scope       string          `json:"scope"`
	Key         string          `json:"key"`
	Value       string          `json:"value"`
	Type        ConfigValueType `json:"type"`
	Description string          `json:"description,omitempty"`
	UpdatedBy   string          `json:"updated_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsSecretRef reports whether the entry indirects into the secret vault.
func (e *ConfigEntry) IsSecretRef() bool {
	return e.Type == ConfigTypeSecretRef
}
