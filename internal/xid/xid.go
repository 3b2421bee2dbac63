package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a prefixed random identifier, e.g. "tx-3f1c...".
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// Number returns a human-facing document number such as TRF-1760860800123-9C4A.
func Number(prefix string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("%s-%d-%s", prefix, at.UTC().UnixMilli(), suffix)
}
