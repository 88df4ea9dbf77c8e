// Package rules rewrites recognized speech with deterministic substitutions
// so spoken technical vocabulary reads the way it is written.
//
// A rules file holds one rule per line:
//
//	spoken words => Written Form
//	s/regex/replacement/flags
//
// Blank lines and lines starting with # are ignored. Regex rules are
// case-insensitive; the g flag replaces every match instead of the first.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

//go:embed vocabulary.rules
var builtinVocabulary string

const defaultPassLimit = 30

type rule interface {
	apply(input string) (string, bool)
}

// Normalizer applies rules repeatedly until the text stops changing.
type Normalizer struct {
	rules     []rule
	passLimit int
}

// New returns a normalizer with the built-in vocabulary followed by the rules
// in path. A missing file is not an error.
func New(path string, passLimit int) (*Normalizer, error) {
	builtin, err := parse(builtinVocabulary)
	if err != nil {
		return nil, fmt.Errorf("built-in vocabulary: %w", err)
	}
	n := &Normalizer{rules: builtin, passLimit: passLimit}
	if n.passLimit <= 0 {
		n.passLimit = defaultPassLimit
	}

	if strings.TrimSpace(path) == "" {
		return n, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return n, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}
	custom, err := parse(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	n.rules = append(n.rules, custom...)
	return n, nil
}

// Apply rewrites text. Rules that keep changing the text stop after the pass
// limit.
func (n *Normalizer) Apply(text string) (string, error) {
	result := text
	for pass := 0; pass < n.passLimit; pass++ {
		changed := false
		for _, r := range n.rules {
			if next, ok := r.apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result, nil
}

// parse compiles a rules document.
func parse(contents string) ([]rule, error) {
	var out []rule
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			r   rule
			err error
		)
		switch {
		case isRegexRule(line):
			r, err = parseRegexRule(line)
		case strings.Contains(line, "=>"):
			r, err = parseLiteralRule(line)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		out = append(out, r)
	}
	return out, nil
}

type replaceRule struct {
	re          *regexp.Regexp
	replacement string
	all         bool
}

func (r replaceRule) apply(input string) (string, bool) {
	var output string
	if r.all {
		output = r.re.ReplaceAllString(input, r.replacement)
	} else {
		loc := r.re.FindStringSubmatchIndex(input)
		if loc == nil {
			return input, false
		}
		var dst []byte
		dst = r.re.ExpandString(dst, r.replacement, input, loc)
		output = input[:loc[0]] + string(dst) + input[loc[1]:]
	}
	return output, output != input
}

func parseLiteralRule(line string) (rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	pattern := regexp.QuoteMeta(from)
	if isWordByte(from[0]) {
		pattern = `\b` + pattern
	}
	if isWordByte(from[len(from)-1]) {
		pattern += `\b`
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return replaceRule{re: re, replacement: strings.ReplaceAll(to, "$", "$$"), all: true}, nil
}

func parseRegexRule(line string) (rule, error) {
	delim := line[1]
	pattern, rest, err := splitDelimited(line[2:], delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, flags, err := splitDelimited(rest, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	all := false
	modifiers := "i"
	for _, flag := range strings.TrimSpace(flags) {
		switch flag {
		case 'g':
			all = true
		case 'i':
		case 'm', 's':
			modifiers += string(flag)
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + modifiers + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return replaceRule{re: re, replacement: replacement, all: all}, nil
}

// splitDelimited returns the text up to the first unescaped delim and the
// remainder after it. Escapes are kept for the regex compiler.
func splitDelimited(s string, delim byte) (string, string, error) {
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == delim:
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", errors.New("unterminated expression")
}

func isRegexRule(line string) bool {
	return len(line) > 2 && line[0] == 's' && !isWordByte(line[1]) && line[1] != ' ' && line[1] != '\t'
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
