package vault

import (
	"context"
	"fmt"
	"strings"
)

// SecretVault is the narrow capability the platform consumes from the
// external vault. Writes are versioned: putting an existing name creates a
// new version rather than losing history.
type SecretVault interface {
	GetSecret(ctx context.Context, name string) (string, error)
	PutSecret(ctx context.Context, name, value string) error
}

const maxSecretNameLength = 512

// ValidateSecretName checks a name against the vault's length and
// character-set constraints before any write is attempted.
func ValidateSecretName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("secret name is empty")
	}
	if len(trimmed) > maxSecretNameLength {
		return fmt.Errorf("secret name exceeds %d characters", maxSecretNameLength)
	}
	for _, r := range trimmed {
		if !isAllowedNameRune(r) {
			return fmt.Errorf("secret name contains invalid character %q", r)
		}
	}
	return nil
}

func isAllowedNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case '/', '_', '+', '=', '.', '@', '-':
		return true
	}
	return false
}
