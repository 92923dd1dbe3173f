package transform

import (
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"
)

// RuleAction says what to do with a matched style declaration or block.
type RuleAction int

const (
	// ActionDropDeclaration removes the single matching declaration.
	ActionDropDeclaration RuleAction = iota
	// ActionDropBlock removes the whole rule block whose selector matches.
	ActionDropBlock
)

// Rule is one declarative style exclusion: a pattern over a selector or a
// property declaration, and the action taken on match. New exclusions are
// data, not code changes.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Action  RuleAction
}

// DefaultRules excludes style constructs known to break e-reader rendering.
var DefaultRules = []Rule{
	{
		Name:    "fixed-or-sticky-positioning",
		Pattern: regexp.MustCompile(`(?i)^\s*position\s*:\s*(fixed|sticky)\s*$`),
		Action:  ActionDropDeclaration,
	},
	{
		Name:    "hidden-overflow",
		Pattern: regexp.MustCompile(`(?i)^\s*overflow(-[xy])?\s*:\s*hidden\s*$`),
		Action:  ActionDropDeclaration,
	},
	{
		Name:    "viewport-sized-heights",
		Pattern: regexp.MustCompile(`(?i)^\s*(min-|max-)?height\s*:\s*\d+(\.\d+)?vh\s*$`),
		Action:  ActionDropDeclaration,
	},
	{
		Name:    "reader-chrome-selectors",
		Pattern: regexp.MustCompile(`(?i)\.(controls|toolbar|annotator)\b`),
		Action:  ActionDropBlock,
	},
}

// ApplyRules runs the exclusion rule set over a stylesheet body, returning
// the surviving CSS. The parser is a flat block scanner: nested at-rules are
// passed through untouched except for declaration-level matches.
func ApplyRules(css string, rules []Rule) string {
	blocks := splitBlocks(css)
	var out strings.Builder

blockLoop:
	for _, b := range blocks {
		for _, r := range rules {
			if r.Action == ActionDropBlock && r.Pattern.MatchString(b.selector) {
				continue blockLoop
			}
		}
		kept := make([]string, 0, len(b.declarations))
	declLoop:
		for _, d := range b.declarations {
			for _, r := range rules {
				if r.Action == ActionDropDeclaration && r.Pattern.MatchString(d) {
					continue declLoop
				}
			}
			kept = append(kept, strings.TrimSpace(d))
		}
		if len(kept) == 0 {
			continue
		}
		out.WriteString(strings.TrimSpace(b.selector))
		out.WriteString("{")
		out.WriteString(strings.Join(kept, ";"))
		out.WriteString("}")
	}
	return out.String()
}

// filterStyleAttr applies declaration-level rules to an element's style
// attribute, dropping the attribute entirely if nothing survives.
func filterStyleAttr(n *xhtml.Node, rules []Rule) {
	style := getAttr(n, "style")
	if style == "" {
		return
	}
	kept := make([]string, 0, 4)
declLoop:
	for _, d := range strings.Split(style, ";") {
		if strings.TrimSpace(d) == "" {
			continue
		}
		for _, r := range rules {
			if r.Action == ActionDropDeclaration && r.Pattern.MatchString(d) {
				continue declLoop
			}
		}
		kept = append(kept, strings.TrimSpace(d))
	}
	if len(kept) == 0 {
		removeAttr(n, "style")
		return
	}
	setAttr(n, "style", strings.Join(kept, ";"))
}

type cssBlock struct {
	selector     string
	declarations []string
}

// splitBlocks performs a shallow split of CSS text into selector/declaration
// blocks. Brace nesting (at-rules) is tracked so inner blocks stay attached
// to their outer selector.
func splitBlocks(css string) []cssBlock {
	var blocks []cssBlock
	depth := 0
	var selector, body strings.Builder
	for _, r := range css {
		switch r {
		case '{':
			depth++
			if depth == 1 {
				continue
			}
		case '}':
			depth--
			if depth == 0 {
				blocks = append(blocks, cssBlock{
					selector:     strings.TrimSpace(selector.String()),
					declarations: splitDeclarations(body.String()),
				})
				selector.Reset()
				body.Reset()
				continue
			}
		}
		if depth == 0 {
			selector.WriteRune(r)
		} else {
			body.WriteRune(r)
		}
	}
	return blocks
}

func splitDeclarations(body string) []string {
	parts := strings.Split(body, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
