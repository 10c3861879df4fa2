package classify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Categories(t *testing.T) {
	c := New()

	tests := []struct {
		command string
		want    Category
	}{
		// Interactive
		{"vim notes.txt", CategoryInteractive},
		{"vi", CategoryInteractive},
		{"nano /etc/hosts", CategoryInteractive},
		{"less +F app.log", CategoryInteractive},
		{"man tar", CategoryInteractive},
		{"python", CategoryInteractive},
		{"node", CategoryInteractive},
		{"psql -U admin mydb", CategoryInteractive},
		{"ssh user@host", CategoryInteractive},
		{"tmux attach", CategoryInteractive},
		{"R", CategoryInteractive},

		// Continuous
		{"top", CategoryContinuous},
		{"htop", CategoryContinuous},
		{"iostat 2", CategoryContinuous},
		{"watch date", CategoryContinuous},
		{"ping 8.8.8.8", CategoryContinuous},
		{"tail -f /var/log/syslog", CategoryContinuous},
		{"tail --follow app.log", CategoryContinuous},
		{"journalctl -f", CategoryContinuous},
		{"docker logs -f web", CategoryContinuous},
		{"kubectl logs -f pod/web", CategoryContinuous},
		{"npm run dev", CategoryContinuous},
		{"yarn dev", CategoryContinuous},
		{"yarn start", CategoryContinuous},
		{"next dev", CategoryContinuous},
		{"vite", CategoryContinuous},
		{"rails server", CategoryContinuous},
		{"flutter run", CategoryContinuous},
		{"python manage.py runserver", CategoryContinuous},
		{"flask run --port 8080", CategoryContinuous},

		// One-shot
		{"ls -la", CategoryOneShot},
		{"git status", CategoryOneShot},
		{"tail log.txt", CategoryOneShot},
		{"tail -n 100 log.txt", CategoryOneShot},
		{"journalctl -u sshd", CategoryOneShot},
		{"docker logs web", CategoryOneShot},
		{"docker ps", CategoryOneShot},
		{"echo hello", CategoryOneShot},
		{"", CategoryOneShot},
		{"   ", CategoryOneShot},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.command), func(t *testing.T) {
			got := c.Classify(tt.command)
			assert.Equal(t, tt.want, got.Category)
		})
	}
}

func TestClassify_ChainUsesLastSegment(t *testing.T) {
	c := New()

	assert.Equal(t, CategoryInteractive, c.Classify("cd /srv/app && vim main.go").Category)
	assert.Equal(t, CategoryContinuous, c.Classify("cd /srv/app; npm run dev").Category)
	assert.Equal(t, CategoryInteractive, c.Classify("cat data.csv | less").Category)
	assert.Equal(t, CategoryOneShot, c.Classify("vim --version && ls").Category)
}

func TestClassify_PathPrefixStripped(t *testing.T) {
	c := New()
	assert.Equal(t, CategoryInteractive, c.Classify("/usr/bin/vim x").Category)
	assert.Equal(t, CategoryContinuous, c.Classify("/usr/bin/top").Category)
}

func TestClassify_SpecialHandling(t *testing.T) {
	c := New()

	info := c.Classify("python")
	require.Equal(t, CategoryInteractive, info.Category)
	assert.True(t, info.RequiresInput)
	assert.True(t, info.IsPersistent)
	assert.True(t, info.NeedsPTY)
	assert.True(t, info.NeedsSpecialHandling())

	info = c.Classify("top")
	assert.False(t, info.RequiresInput)
	assert.True(t, info.IsPersistent)
	assert.False(t, info.NeedsSpecialHandling())

	info = c.Classify("ls -la")
	assert.False(t, info.RequiresInput)
	assert.False(t, info.IsPersistent)
	assert.False(t, info.NeedsSpecialHandling())

	info = c.Classify("")
	assert.Equal(t, CategoryOneShot, info.Category)
	assert.False(t, info.NeedsSpecialHandling())
}

func TestClassify_Deterministic(t *testing.T) {
	c := New()
	commands := []string{"vim x", "top", "ls -la", "tail -f log", "", "unknown-cmd --flag"}
	for _, cmd := range commands {
		first := c.Classify(cmd)
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, c.Classify(cmd), "command %q", cmd)
		}
	}
}

func TestClassify_CacheEviction(t *testing.T) {
	c := New()
	// Overflow the cache and make sure classification still works and stays
	// bounded.
	for i := 0; i < maxCacheEntries+100; i++ {
		c.Classify(fmt.Sprintf("echo %d", i))
	}
	c.mu.Lock()
	size := len(c.cache)
	c.mu.Unlock()
	require.LessOrEqual(t, size, maxCacheEntries)

	assert.Equal(t, CategoryInteractive, c.Classify("vim").Category)
}

func TestClassify_ExtendedRules(t *testing.T) {
	table := DefaultRuleTable()
	table.Extend([]string{"mytool"}, []string{"mywatcher"})
	c := NewWithTable(table)

	assert.Equal(t, CategoryInteractive, c.Classify("mytool").Category)
	assert.Equal(t, CategoryContinuous, c.Classify("mywatcher -v").Category)

	// Defaults must be untouched by the extension.
	assert.Equal(t, CategoryOneShot, New().Classify("mytool").Category)
}
