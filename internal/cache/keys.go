package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Scope isolates cache entries per tenant and, optionally, per user. Two
// calls differing only in scope never collide.
type Scope struct {
	TenantID int
	UserID   string
}

func (s Scope) prefix() string {
	p := "t" + strconv.Itoa(s.TenantID)
	if s.UserID != "" {
		p += ":u" + s.UserID
	}
	return p
}

// paramSep keeps joined parameters unambiguous; it cannot appear in
// stringified values produced by fmt.
const paramSep = "\x1f"

// Key derives the deterministic cache key for a fetch. The fetch identifier
// is normalized (trimmed, lowercased) and kept verbatim in the key so that
// category invalidation can match on it; parameters collapse to a stable
// xxhash digest.
func Key(fetchID string, params []interface{}, scope Scope) string {
	return scope.prefix() + ":" + normalize(fetchID) + ":" + hashParams(params)
}

func normalize(fetchID string) string {
	return strings.ToLower(strings.TrimSpace(fetchID))
}

func hashParams(params []interface{}) string {
	h := xxhash.New()
	for i, p := range params {
		if i > 0 {
			h.WriteString(paramSep)
		}
		if p == nil {
			h.WriteString("<nil>")
			continue
		}
		fmt.Fprintf(h, "%v", p)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
