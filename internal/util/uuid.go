package util

import (
	"github.com/google/uuid"
)

// NewToken returns an opaque identifier such as a deadline token or an inbox
// message id. The prefix only helps when reading logs.
func NewToken(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
