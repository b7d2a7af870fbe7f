package llm

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidKey = errors.New("invalid api key")

// ValidateKey checks the shape of a provider key before it is accepted from
// the credential dialog. The provider's expected prefix (e.g. "sk-") comes
// from configuration.
func ValidateKey(key, prefix string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: key must not be empty", ErrInvalidKey)
	}
	prefix = strings.TrimSpace(prefix)
	if prefix != "" && !strings.HasPrefix(key, prefix) {
		return fmt.Errorf("%w: key must start with %q", ErrInvalidKey, prefix)
	}
	return nil
}
