package exclude

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_DefaultPatterns(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		excluded bool
	}{
		{"file.tmp", true},
		{"snapshot.json.lifesync-tmp", true},
		{"~$report.docx", true},
		{".DS_Store", true},
		{"Thumbs.db", true},
		{"snapshot.json", false},
		{"tmpfile.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := m.Match(tt.name, false)
			assert.Equal(t, tt.excluded, result.Excluded)
			if tt.excluded {
				assert.Equal(t, LevelDefault, result.Level)
			}
		})
	}
}

func TestMatcher_ConfiguredPatterns(t *testing.T) {
	m, err := New([]string{"*.bak", "cache/", "logs/**", "draft-?.md", "[!a]*.old"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		isDir    bool
		excluded bool
	}{
		{"db.bak", false, true},
		{"cache", true, true},
		{"cache", false, false},
		{"logs/2024/app.log", false, true},
		{"draft-1.md", false, true},
		{"draft-12.md", false, false},
		{"b.old", false, true},
		{"a.old", false, false},
		{"notes.md", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := m.Match(tt.name, tt.isDir)
			assert.Equal(t, tt.excluded, result.Excluded)
			if tt.excluded {
				assert.Equal(t, LevelConfigured, result.Level)
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	for _, p := range []string{"", "/", "[]"} {
		_, err := Compile(p)
		assert.ErrorIs(t, err, ErrInvalidPattern, "pattern %q", p)
	}

	assert.Error(t, Validate([]string{"*.ok", "[]"}))
	assert.NoError(t, Validate([]string{"*.ok", "a["}))
}

func TestGlobToRegex(t *testing.T) {
	assert.Equal(t, `^[^/]*\.txt$`, globToRegex("*.txt"))
	assert.Equal(t, `^a/.*$`, globToRegex("a/**"))
	assert.Equal(t, `^file[^/]$`, globToRegex("file?"))
}

func TestNilMatcher(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Excluded("anything.tmp"))
}
