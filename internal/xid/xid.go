package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns an identifier of the form PREFIX-<uuid>.
func New(prefix string) string {
	id := uuid.NewString()
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
