package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID returns prefix-<uuid>. Observer connections and process
// instances are named this way.
func GenerateID(prefix string) string {
	if prefix == "" {
		return uuid.New().String()
	}
	return prefix + "-" + uuid.New().String()
}

// GenerateRequestID returns req_<unix nanos>_<8 hex chars>.
func GenerateRequestID() string {
	short := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("req_%d_%s", time.Now().UnixNano(), short)
}
