// Package keeplist holds the protected sender domains: messages from
// these domains are never auto-archived, whatever the classifier says.
package keeplist

import (
	"strings"

	"go.uber.org/zap"
)

// Keeplist checks sender addresses against protected domains
type Keeplist struct {
	domains map[string]bool
	logger  *zap.Logger
}

// New creates a keeplist from a list of domains. Entries are compared
// case-insensitively; blank entries are ignored.
func New(domains []string, logger *zap.Logger) *Keeplist {
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = true
		}
	}
	if len(set) > 0 {
		logger.Info("Using protected sender domains", zap.Int("count", len(set)))
	}
	return &Keeplist{domains: set, logger: logger}
}

// Contains reports whether the sender address belongs to a protected
// domain. Addresses without a domain part never match.
func (k *Keeplist) Contains(sender string) bool {
	if len(k.domains) == 0 {
		return false
	}
	at := strings.LastIndex(sender, "@")
	if at < 0 || at == len(sender)-1 {
		return false
	}
	return k.domains[strings.ToLower(sender[at+1:])]
}
