package redact

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultMarker replaces every redacted span.
const DefaultMarker = "[REDACTED]"

// Config configures a Redactor.
type Config struct {
	Enabled bool
	Marker  string
	Rules   []Rule
	// AllowList patterns exempt matching spans from redaction.
	AllowList []string
}

// DefaultConfig returns an enabled config with DefaultRules.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Marker:  DefaultMarker,
		Rules:   DefaultRules(),
	}
}

// Finding records a redacted span without the matched value.
type Finding struct {
	RuleID string `json:"rule_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Line   int    `json:"line"`
}

// Result is the outcome of Redact.
type Result struct {
	Text     string         `json:"text"`
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []string
}

// Redactor applies a compiled rule set. It is safe for concurrent use.
type Redactor struct {
	enabled bool
	marker  string
	rules   []compiledRule
	allow   []*regexp.Regexp
}

// New compiles cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Redactor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	marker := cfg.Marker
	if marker == "" {
		marker = DefaultMarker
	}

	r := &Redactor{enabled: cfg.Enabled, marker: marker}
	var errs []error
	for _, rule := range cfg.Rules {
		if rule.ID == "" {
			errs = append(errs, errors.New("rule has empty id"))
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
			continue
		}
		kws := make([]string, len(rule.Keywords))
		for i, kw := range rule.Keywords {
			kws[i] = strings.ToLower(kw)
		}
		r.rules = append(r.rules, compiledRule{Rule: rule, pattern: re, keywords: kws})
	}
	for _, p := range cfg.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("allow list pattern %q: %w", p, err))
			continue
		}
		r.allow = append(r.allow, re)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNew is New that panics on error.
func MustNew(cfg *Config) *Redactor {
	r, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

type span struct {
	start, end int
}

// Redact masks every rule match in text.
func (r *Redactor) Redact(text string) *Result {
	res := &Result{Text: text, ByRule: map[string]int{}}
	if !r.enabled || text == "" {
		return res
	}

	lower := strings.ToLower(text)
	var spans []span
	for _, rule := range r.rules {
		if !hasKeyword(lower, rule.keywords) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(text, -1) {
			match := text[m[0]:m[1]]
			if r.allowed(match) || (rule.Valid != nil && !rule.Valid(match)) {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				RuleID: rule.ID,
				Start:  m[0],
				End:    m[1],
				Line:   strings.Count(text[:m[0]], "\n") + 1,
			})
			res.ByRule[rule.ID]++
			spans = append(spans, span{m[0], m[1]})
		}
	}
	if len(spans) == 0 {
		return res
	}

	var b strings.Builder
	last := 0
	for _, s := range merge(spans) {
		b.WriteString(text[last:s.start])
		b.WriteString(r.marker)
		last = s.end
	}
	b.WriteString(text[last:])
	res.Text = b.String()
	return res
}

// String is a convenience wrapper returning only the redacted text.
func (r *Redactor) String(text string) string {
	return r.Redact(text).Text
}

func (r *Redactor) allowed(match string) bool {
	for _, re := range r.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

func hasKeyword(lower string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// merge sorts spans and coalesces overlapping or adjacent ones.
func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := []span{spans[0]}
	for _, s := range spans[1:] {
		cur := &out[len(out)-1]
		if s.start <= cur.end {
			if s.end > cur.end {
				cur.end = s.end
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
