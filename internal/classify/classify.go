// Package classify maps shell command strings to behavioral categories used
// for block lifecycle and input routing decisions: one-shot commands finish
// on their own, continuous commands stream until interrupted, and interactive
// commands hold the terminal and accept keystrokes.
package classify

import (
	"path"
	"strings"
	"sync"

	"github.com/devpocket/termcore/internal/logging"
)

var log = logging.ForComponent(logging.CompClassify)

// ProcessInfo describes how a command behaves once started. Immutable once
// computed; a pure function of the command string and the rule table.
type ProcessInfo struct {
	Category      Category
	RequiresInput bool
	IsPersistent  bool
	NeedsPTY      bool
}

// NeedsSpecialHandling reports whether the command needs active-block input
// routing: it must both accept stdin and stay alive.
func (p ProcessInfo) NeedsSpecialHandling() bool {
	return p.RequiresInput && p.IsPersistent
}

// maxCacheEntries caps the memoization cache. Oldest entries are evicted
// first; the bound only matters for pathological inputs since a user types
// far fewer distinct commands than this in one run.
const maxCacheEntries = 4096

// Classifier classifies command strings against a rule table.
// Safe for concurrent use.
type Classifier struct {
	table *RuleTable

	mu    sync.Mutex
	cache map[string]ProcessInfo
	order []string // FIFO eviction order
}

// New creates a Classifier with the default rule table.
func New() *Classifier {
	return NewWithTable(DefaultRuleTable())
}

// NewWithTable creates a Classifier with a custom rule table. The table is
// copied; later mutations of the argument do not affect the classifier.
func NewWithTable(table *RuleTable) *Classifier {
	if table == nil {
		table = DefaultRuleTable()
	}
	return &Classifier{
		table: table.clone(),
		cache: make(map[string]ProcessInfo),
	}
}

// Classify returns the ProcessInfo for a command string. It never fails:
// empty input, unknown commands and anything ambiguous default to one-shot
// with no special handling.
func (c *Classifier) Classify(command string) ProcessInfo {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return oneShotInfo()
	}

	c.mu.Lock()
	if info, ok := c.cache[trimmed]; ok {
		c.mu.Unlock()
		return info
	}
	c.mu.Unlock()

	info := c.classify(trimmed)

	c.mu.Lock()
	if _, ok := c.cache[trimmed]; !ok {
		if len(c.order) >= maxCacheEntries {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.cache, oldest)
		}
		c.cache[trimmed] = info
		c.order = append(c.order, trimmed)
	}
	c.mu.Unlock()

	return info
}

func (c *Classifier) classify(trimmed string) ProcessInfo {
	// Classification follows the last segment of a chain: for
	// "cd /tmp && vim x" the behavior is vim's, not cd's.
	segment := lastSegment(trimmed)
	fields := strings.Fields(segment)
	if len(fields) == 0 {
		return oneShotInfo()
	}

	token := baseToken(fields[0])

	// Phrase rules are the most specific match.
	if r, ok := c.matchPhrase(segment); ok {
		return infoFromRule(r)
	}

	// Flag-sensitive rules: tail/journalctl and docker/kubectl logs become
	// continuous only with a follow flag.
	if c.table.FollowFlagTokens[token] {
		if hasFollowFlag(fields[1:]) {
			return infoFromRule(rule{Category: CategoryContinuous})
		}
		return oneShotInfo()
	}
	if len(fields) >= 2 {
		sub := token + " " + fields[1]
		if c.table.FollowFlagSubcommands[sub] {
			if hasFollowFlag(fields[2:]) {
				return infoFromRule(rule{Category: CategoryContinuous})
			}
			return oneShotInfo()
		}
	}

	if r, ok := c.table.Tokens[token]; ok {
		return infoFromRule(r)
	}

	log.Debug("unknown_command_token", "token", token)
	return oneShotInfo()
}

// matchPhrase checks multi-word prefix rules against the segment.
func (c *Classifier) matchPhrase(segment string) (rule, bool) {
	for phrase, r := range c.table.Phrases {
		if segment == phrase || strings.HasPrefix(segment, phrase+" ") {
			return r, true
		}
	}
	return rule{}, false
}

// lastSegment returns the final command of a chain joined by &&, ; or |.
func lastSegment(s string) string {
	last := s
	for _, sep := range []string{"&&", ";", "|"} {
		if idx := strings.LastIndex(last, sep); idx >= 0 {
			last = last[idx+len(sep):]
		}
	}
	return strings.TrimSpace(last)
}

// baseToken strips any directory prefix so /usr/bin/vim classifies as vim.
func baseToken(tok string) string {
	if strings.ContainsRune(tok, '/') {
		return path.Base(tok)
	}
	return tok
}

func hasFollowFlag(args []string) bool {
	for _, a := range args {
		if a == "-f" || a == "--follow" {
			return true
		}
		// Combined short flags, e.g. tail -fn100
		if strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--") && strings.ContainsRune(a, 'f') {
			return true
		}
	}
	return false
}

func infoFromRule(r rule) ProcessInfo {
	switch r.Category {
	case CategoryInteractive:
		return ProcessInfo{
			Category:      CategoryInteractive,
			RequiresInput: true,
			IsPersistent:  true,
			NeedsPTY:      true,
		}
	case CategoryContinuous:
		return ProcessInfo{
			Category:     CategoryContinuous,
			IsPersistent: true,
			NeedsPTY:     r.NeedsPTY,
		}
	default:
		return oneShotInfo()
	}
}

func oneShotInfo() ProcessInfo {
	return ProcessInfo{Category: CategoryOneShot}
}
