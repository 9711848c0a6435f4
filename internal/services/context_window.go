package services

import (
	"strconv"
	"strings"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// DefaultContextLimit applies when a context policy is empty or cannot be
// parsed.
const DefaultContextLimit = 50

// ContextNoLimit is the policy that sends the full history.
const ContextNoLimit = "No Limit"

// ParseContextPolicy turns a policy string such as "Last 10 Messages",
// "No Limit" or a bare "20" into a message count. Zero means unlimited.
func ParseContextPolicy(policy string) int {
	p := strings.TrimSpace(policy)
	if strings.EqualFold(p, ContextNoLimit) {
		return 0
	}
	if n, err := strconv.Atoi(p); err == nil && n > 0 {
		return n
	}
	f := strings.Fields(p)
	if len(f) >= 2 && strings.EqualFold(f[0], "last") {
		if n, err := strconv.Atoi(f[1]); err == nil && n > 0 {
			return n
		}
	}
	return DefaultContextLimit
}

// applyContextWindow keeps the most recent limit messages in their original
// order. A limit of zero keeps everything.
func applyContextWindow(msgs []domain.Message, limit int) []domain.Message {
	if limit <= 0 || len(msgs) <= limit {
		return msgs
	}
	return msgs[len(msgs)-limit:]
}
