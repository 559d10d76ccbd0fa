// Package exclude matches file names against ignore globs.
package exclude

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrInvalidPattern is returned for a glob that cannot be compiled
var ErrInvalidPattern = errors.New("invalid ignore pattern")

// DefaultPatterns are always ignored in the snapshot directory
var DefaultPatterns = []string{
	"*.tmp",
	"*.lifesync-tmp",
	"~$*",
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// Level tells which rule set excluded a name
type Level int

const (
	LevelConfigured Level = iota
	LevelDefault
)

// String returns the string representation of Level
func (l Level) String() string {
	switch l {
	case LevelConfigured:
		return "configured"
	case LevelDefault:
		return "default"
	default:
		return "unknown"
	}
}

// Pattern represents a compiled glob
type Pattern struct {
	Raw   string
	Regex *regexp.Regexp
	IsDir bool // pattern ends with /
}

// Result indicates whether a name was excluded and why
type Result struct {
	Excluded bool
	Level    Level
	Pattern  string
}

// Matcher holds the default and configured patterns
type Matcher struct {
	defaults   []*Pattern
	configured []*Pattern
}

// New compiles the configured patterns on top of DefaultPatterns
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range DefaultPatterns {
		compiled, err := Compile(p)
		if err != nil {
			return nil, err
		}
		m.defaults = append(m.defaults, compiled)
	}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		compiled, err := Compile(p)
		if err != nil {
			return nil, err
		}
		m.configured = append(m.configured, compiled)
	}
	return m, nil
}

// Validate reports the first pattern that does not compile
func Validate(patterns []string) error {
	for _, p := range patterns {
		if _, err := Compile(p); err != nil {
			return err
		}
	}
	return nil
}

// Match checks a file name or slash-separated path
func (m *Matcher) Match(name string, isDir bool) *Result {
	if m == nil {
		return &Result{}
	}
	clean := filepath.ToSlash(filepath.Clean(name))
	base := filepath.Base(clean)

	for _, p := range m.configured {
		if matchPattern(p, base, clean, isDir) {
			return &Result{Excluded: true, Level: LevelConfigured, Pattern: p.Raw}
		}
	}
	for _, p := range m.defaults {
		if matchPattern(p, base, clean, isDir) {
			return &Result{Excluded: true, Level: LevelDefault, Pattern: p.Raw}
		}
	}
	return &Result{}
}

// Excluded is shorthand for Match(name, false).Excluded
func (m *Matcher) Excluded(name string) bool {
	return m.Match(name, false).Excluded
}

// Compile turns a glob into a Pattern. "*" and "?" stop at "/", "**" does not.
func Compile(glob string) (*Pattern, error) {
	p := &Pattern{
		Raw:   glob,
		IsDir: strings.HasSuffix(glob, "/"),
	}
	glob = strings.TrimSuffix(glob, "/")
	if glob == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}

	re, err := regexp.Compile(globToRegex(glob))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p.Raw, err)
	}
	p.Regex = re
	return p, nil
}

func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")

	for i := 0; i < len(glob); i++ {
		ch := glob[i]
		switch ch {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			// character classes pass through, "!" negation becomes "^"
			j := strings.IndexByte(glob[i:], ']')
			if j < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+j]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i += j
		case '.', '+', '(', ')', '{', '}', '^', '$', '|', '\\', ']':
			b.WriteByte('\\')
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}

	b.WriteString("$")
	return b.String()
}

func matchPattern(p *Pattern, base, full string, isDir bool) bool {
	if p.IsDir && !isDir {
		return false
	}
	if p.Regex.MatchString(base) {
		return true
	}
	if strings.Contains(p.Raw, "/") && p.Regex.MatchString(full) {
		return true
	}
	return false
}
