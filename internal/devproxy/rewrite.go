package devproxy

import (
	"fmt"
	"regexp"
)

type compiledRule struct {
	re *regexp.Regexp
	to string
}

// pathRewriter applies the first matching RewriteRule to a request path.
type pathRewriter struct {
	rules []compiledRule
}

func newPathRewriter(rules []RewriteRule) (*pathRewriter, error) {
	pr := &pathRewriter{}
	for _, r := range rules {
		re, err := regexp.Compile(r.From)
		if err != nil {
			return nil, fmt.Errorf("compile rewrite %q: %w", r.From, err)
		}
		pr.rules = append(pr.rules, compiledRule{re: re, to: r.To})
	}
	return pr, nil
}

// rewrite returns path with the first matching rule applied to its first
// match only, or path unchanged when nothing matches.
func (pr *pathRewriter) rewrite(path string) string {
	for _, r := range pr.rules {
		loc := r.re.FindStringSubmatchIndex(path)
		if loc == nil {
			continue
		}
		repl := r.re.ExpandString(nil, r.to, path, loc)
		return path[:loc[0]] + string(repl) + path[loc[1]:]
	}
	return path
}
