package providers

// Info describes an upstream provider for diagnostics. Every provider key
// is optional: a missing key selects that provider's mock path.
type Info struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	RequiresKey bool   `json:"requires_key"`
	KeyEnvVar   string `json:"key_env_var,omitempty"`
	MockWhenOff bool   `json:"mock_when_key_absent"`
}
