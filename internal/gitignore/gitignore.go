// Package gitignore matches paths against ignore files written in the
// gitignore syntax (https://git-scm.com/docs/gitignore).
//
// Rules are scoped to the directory holding the file they came from, so a
// walker can load files as it descends and keep a single Rules value for the
// whole tree. The last matching rule wins, and a "!" rule re-includes a path.
package gitignore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// rule is one compiled pattern line.
type rule struct {
	re      *regexp.Regexp
	negate  bool
	dirOnly bool
	base    string // slash path of the owning directory, "" for the root
}

// Rules is an ordered set of ignore rules. The zero value ignores nothing.
// Rules is not safe for concurrent mutation.
type Rules struct {
	rules []rule
}

// New returns an empty rule set.
func New() *Rules {
	return &Rules{}
}

// Len returns the number of rules loaded.
func (r *Rules) Len() int {
	return len(r.rules)
}

// Add compiles one pattern line owned by the directory base, a path
// relative to the walk root ("" or "." for the root itself). Blank lines
// and comments are skipped.
func (r *Rules) Add(line, base string) {
	pattern, negate, dirOnly, ok := splitLine(line)
	if !ok {
		return
	}

	anchored := strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	expr := globToRegex(pattern)
	if !anchored {
		expr = "(?:.*/)?" + expr
	}
	re, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return
	}

	base = strings.Trim(filepath.ToSlash(base), "/")
	if base == "." {
		base = ""
	}
	r.rules = append(r.rules, rule{
		re:      re,
		negate:  negate,
		dirOnly: dirOnly,
		base:    base,
	})
}

// Read adds every line from rd, owned by base.
func (r *Rules) Read(rd io.Reader, base string) error {
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		r.Add(sc.Text(), base)
	}
	return sc.Err()
}

// LoadDir reads the files named in names from dir, skipping the ones that
// do not exist. base is dir relative to the walk root.
func (r *Rules) LoadDir(dir, base string, names []string) error {
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to open ignore file: %w", err)
		}
		err = r.Read(f, base)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", filepath.Join(dir, name), err)
		}
	}
	return nil
}

// Ignored reports whether rel, a path relative to the walk root, is
// excluded. Callers skip ignored directories, so a file is never checked
// against rules that excluded one of its parents.
func (r *Rules) Ignored(rel string, isDir bool) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}

	ignored := false
	for _, ru := range r.rules {
		if ru.dirOnly && !isDir {
			continue
		}
		sub, ok := within(rel, ru.base)
		if !ok {
			continue
		}
		if ru.re.MatchString(sub) {
			ignored = !ru.negate
		}
	}
	return ignored
}

// within returns rel relative to base when rel lies under base.
func within(rel, base string) (string, bool) {
	if base == "" {
		return rel, true
	}
	if !strings.HasPrefix(rel, base+"/") {
		return "", false
	}
	return rel[len(base)+1:], true
}

// splitLine strips comments, negation and the directory marker from a line.
func splitLine(line string) (pattern string, negate, dirOnly, ok bool) {
	line = strings.TrimRight(line, "\r")
	line = trimTrailingSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false, false, false
	}

	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		negate = true
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if line == "" {
		return "", false, false, false
	}
	return line, negate, dirOnly, true
}

// trimTrailingSpace drops trailing spaces unless the last one is escaped.
func trimTrailingSpace(s string) string {
	end := len(s)
	for end > 0 && s[end-1] == ' ' {
		if end > 1 && s[end-2] == '\\' {
			return s[:end-2] + " "
		}
		end--
	}
	return s[:end]
}

// globToRegex translates glob syntax. "*" and "?" stay inside one path
// segment, "**" crosses segments.
func globToRegex(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch {
		case strings.HasPrefix(glob[i:], "**/"):
			b.WriteString("(?:.*/)?")
			i += 2
		case strings.HasPrefix(glob[i:], "/**") && i+3 == len(glob):
			b.WriteString("/.*")
			i += 2
		case strings.HasPrefix(glob[i:], "**"):
			b.WriteString(".*")
			i++
		case c == '*':
			b.WriteString("[^/]*")
		case c == '?':
			b.WriteString("[^/]")
		case c == '\\' && i+1 < len(glob):
			i++
			b.WriteString(regexp.QuoteMeta(string(glob[i])))
		case c == '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
