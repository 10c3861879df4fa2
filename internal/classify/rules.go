package classify

// Category is the behavioral category of a shell command.
type Category string

const (
	// CategoryOneShot runs to completion and exits on its own (ls, cat, git status).
	CategoryOneShot Category = "oneShot"
	// CategoryContinuous runs until interrupted but takes no stdin (top, tail -f, dev servers).
	CategoryContinuous Category = "continuous"
	// CategoryInteractive holds the terminal and reads stdin (vim, python, ssh).
	CategoryInteractive Category = "interactive"
)

// rule describes how one command token (or phrase) behaves.
type rule struct {
	Category Category
	NeedsPTY bool
}

// RuleTable holds the classification rules, separated from the matching
// algorithm so the tables can be extended and tested independently.
type RuleTable struct {
	// Tokens maps a command's leading token to its rule.
	Tokens map[string]rule

	// Phrases maps multi-word command prefixes to rules. Phrase matches are
	// more specific than token matches and win over them, so
	// "python manage.py runserver" is continuous even though bare "python"
	// is an interactive REPL.
	Phrases map[string]rule

	// FollowFlagTokens are tokens that are one-shot by default but become
	// continuous when a follow flag (-f / --follow) is present, e.g. tail.
	FollowFlagTokens map[string]bool

	// FollowFlagSubcommands maps "token subcommand" pairs that become
	// continuous with a follow flag (docker logs -f, kubectl logs -f).
	FollowFlagSubcommands map[string]bool
}

// DefaultRuleTable returns the built-in classification rules.
func DefaultRuleTable() *RuleTable {
	t := &RuleTable{
		Tokens:  make(map[string]rule),
		Phrases: make(map[string]rule),
		FollowFlagTokens: map[string]bool{
			"tail": true,
		},
		FollowFlagSubcommands: map[string]bool{
			"docker logs":  true,
			"kubectl logs": true,
		},
	}

	interactive := rule{Category: CategoryInteractive, NeedsPTY: true}
	monitor := rule{Category: CategoryContinuous, NeedsPTY: true}
	streamer := rule{Category: CategoryContinuous, NeedsPTY: false}

	// Editors
	for _, c := range []string{"vi", "vim", "nvim", "nano", "emacs"} {
		t.Tokens[c] = interactive
	}
	// Pagers
	for _, c := range []string{"less", "more", "man"} {
		t.Tokens[c] = interactive
	}
	// REPLs
	for _, c := range []string{"python", "python3", "node", "irb", "psql", "mysql", "julia", "R"} {
		t.Tokens[c] = interactive
	}
	// Remote shells
	for _, c := range []string{"ssh", "telnet", "ftp"} {
		t.Tokens[c] = interactive
	}
	// Multiplexers
	for _, c := range []string{"tmux", "screen"} {
		t.Tokens[c] = interactive
	}

	// Full-screen monitors
	for _, c := range []string{"top", "htop", "btop", "atop"} {
		t.Tokens[c] = monitor
	}
	// Sampling monitors and streamers
	for _, c := range []string{"iostat", "vmstat", "watch", "ping"} {
		t.Tokens[c] = streamer
	}
	// journalctl follows with -f, otherwise dumps and exits
	t.FollowFlagTokens["journalctl"] = true

	// Dev servers
	for _, p := range []string{
		"npm run dev", "npm start",
		"yarn dev", "yarn start",
		"next dev",
		"rails server", "rails s",
		"flutter run",
		"python manage.py runserver",
		"python3 manage.py runserver",
		"flask run",
	} {
		t.Phrases[p] = streamer
	}
	t.Tokens["vite"] = streamer

	return t
}

// clone returns a deep copy so extensions never mutate the shared defaults.
func (t *RuleTable) clone() *RuleTable {
	c := &RuleTable{
		Tokens:                make(map[string]rule, len(t.Tokens)),
		Phrases:               make(map[string]rule, len(t.Phrases)),
		FollowFlagTokens:      make(map[string]bool, len(t.FollowFlagTokens)),
		FollowFlagSubcommands: make(map[string]bool, len(t.FollowFlagSubcommands)),
	}
	for k, v := range t.Tokens {
		c.Tokens[k] = v
	}
	for k, v := range t.Phrases {
		c.Phrases[k] = v
	}
	for k, v := range t.FollowFlagTokens {
		c.FollowFlagTokens[k] = v
	}
	for k, v := range t.FollowFlagSubcommands {
		c.FollowFlagSubcommands[k] = v
	}
	return c
}

// Extend appends user-supplied tokens to the interactive and continuous sets.
// Used by config overrides; unknown or duplicate tokens simply overwrite.
func (t *RuleTable) Extend(interactive, continuous []string) {
	for _, c := range interactive {
		if c != "" {
			t.Tokens[c] = rule{Category: CategoryInteractive, NeedsPTY: true}
		}
	}
	for _, c := range continuous {
		if c != "" {
			t.Tokens[c] = rule{Category: CategoryContinuous, NeedsPTY: false}
		}
	}
}
