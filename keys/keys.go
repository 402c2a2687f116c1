// Package keys loads provider API keys from environment variables.
// Keys are read once at startup and handed to the components that need
// them; nothing in this package writes a key to a log or response.
package keys

import (
	"os"
	"sort"
	"strings"
)

// providerEnvVars maps each supported provider to its environment variable.
var providerEnvVars = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"google":    "GOOGLE_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// Credential is an opaque API key. The zero value means "absent".
// Formatting a Credential never reveals the underlying token.
type Credential struct {
	value string
}

// NewCredential wraps a raw token. Intended for tests; production code
// should obtain credentials through the Load* functions.
func NewCredential(value string) Credential {
	return Credential{value: strings.TrimSpace(value)}
}

// Value returns the raw token for use in an outbound request header.
func (c Credential) Value() string {
	return c.value
}

// IsZero reports whether no credential is configured.
func (c Credential) IsZero() bool {
	return c.value == ""
}

// String implements fmt.Stringer and always redacts the token.
func (c Credential) String() string {
	if c.value == "" {
		return "[unset]"
	}
	return "[redacted]"
}

// GoString keeps %#v from leaking the token.
func (c Credential) GoString() string {
	return "keys.Credential{" + c.String() + "}"
}

// LoadAnthropic reads ANTHROPIC_API_KEY. The second return value
// reports whether the variable was set and non-blank.
func LoadAnthropic() (Credential, bool) {
	return load("anthropic")
}

// Load reads the credential for a named provider. Unknown providers
// yield an absent credential.
func Load(provider string) (Credential, bool) {
	return load(strings.ToLower(strings.TrimSpace(provider)))
}

func load(provider string) (Credential, bool) {
	envVar, ok := providerEnvVars[provider]
	if !ok {
		return Credential{}, false
	}
	cred := NewCredential(os.Getenv(envVar))
	return cred, !cred.IsZero()
}

// Availability lists which provider keys are configured.
type Availability struct {
	Available []string `json:"available"`
	Missing   []string `json:"missing"`
}

// ValidateAll checks every supported provider's environment variable.
// Only provider names are reported, never key material.
func ValidateAll() Availability {
	var avail Availability
	for provider := range providerEnvVars {
		if _, ok := load(provider); ok {
			avail.Available = append(avail.Available, provider)
		} else {
			avail.Missing = append(avail.Missing, provider)
		}
	}
	sort.Strings(avail.Available)
	sort.Strings(avail.Missing)
	return avail
}

// Providers returns the supported provider names in sorted order.
func Providers() []string {
	names := make([]string, 0, len(providerEnvVars))
	for provider := range providerEnvVars {
		names = append(names, provider)
	}
	sort.Strings(names)
	return names
}
