package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizerBuiltinVocabulary(t *testing.T) {
	t.Parallel()

	n, err := New("", 0)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{in: "I used java script and type script", want: "I used JavaScript and TypeScript"},
		{in: "deployed on kuber netes with post gres", want: "deployed on Kubernetes with Postgres"},
		{in: "binary search is o of log n", want: "binary search is O(log n)"},
		{in: "nested loops are o of n squared", want: "nested loops are O(n^2)"},
		{in: "a hash lookup is o of one", want: "a hash lookup is O(1)"},
		{in: "javascripting stays as is", want: "javascripting stays as is"},
	}
	for _, tt := range tests {
		got, err := n.Apply(tt.in)
		if err != nil {
			t.Fatalf("apply failed: %v", err)
		}
		if got != tt.want {
			t.Fatalf("Apply(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizerLoadsCustomRules(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vocabulary.rules")
	contents := `
# team terms
pull request => PR
s/\bdeep\s*gram\b/Deepgram/g
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	n, err := New(path, 30)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	got, _ := n.Apply("deep gram reviewed my pull request")
	if got != "Deepgram reviewed my PR" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestNormalizerMissingFileIsIgnored(t *testing.T) {
	t.Parallel()

	n, err := New(filepath.Join(t.TempDir(), "absent.rules"), 0)
	if err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
	if n.passLimit != defaultPassLimit {
		t.Fatalf("unexpected pass limit: %d", n.passLimit)
	}
}

func TestNormalizerIteratesUntilStable(t *testing.T) {
	t.Parallel()

	rules, err := parse("alpha => beta\nbeta => gamma\n")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	n := &Normalizer{rules: rules, passLimit: 5}
	got, _ := n.Apply("alpha")
	if got != "gamma" {
		t.Fatalf("expected chained rewrite, got %q", got)
	}
}

func TestNormalizerStopsAtPassLimit(t *testing.T) {
	t.Parallel()

	rules, err := parse("s/x/xx/")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	n := &Normalizer{rules: rules, passLimit: 3}
	got, _ := n.Apply("x")
	if got != "xxxx" {
		t.Fatalf("expected three passes, got %q", got)
	}
}

func TestRegexRuleWithoutGlobalReplacesFirstMatch(t *testing.T) {
	t.Parallel()

	rules, err := parse(`s/(\d+) ms/${1}ms/`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	got, changed := rules[0].apply("10 ms then 20 ms")
	if !changed || got != "10ms then 20 ms" {
		t.Fatalf("unexpected output: %q changed=%v", got, changed)
	}
}

func TestLiteralRuleKeepsDollarSigns(t *testing.T) {
	t.Parallel()

	rules, err := parse("dollar sign => $")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	got, _ := rules[0].apply("a dollar sign")
	if got != "a $" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want string
	}{
		{line: "no arrow here", want: "unsupported rule format"},
		{line: " => empty", want: "source cannot be empty"},
		{line: "s/open", want: "unterminated expression"},
		{line: "s/a/b/z", want: "unsupported regex flag"},
		{line: "s/(/x/", want: "invalid regex"},
	}
	for _, tt := range tests {
		_, err := parse("# header\n" + tt.line)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("parse(%q) error = %v, want %q", tt.line, err, tt.want)
		}
		if !strings.Contains(err.Error(), "line 2") {
			t.Fatalf("expected line number in %v", err)
		}
	}
}
