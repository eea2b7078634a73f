package safety

import (
	"regexp"
	"strings"
)

// Severity ranks how strongly an input pattern suggests prompt injection.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "none"
	}
}

// InjectionCheck is the outcome of screening one input.
type InjectionCheck struct {
	Severity Severity
	// Pattern names the matched rule for logging; never echoed to users.
	Pattern string
}

// Reject reports whether the input should be refused outright. Low and
// medium findings are logged but allowed; overblocking legitimate requests
// like "ignore the blue ones" costs more than it saves.
func (c InjectionCheck) Reject() bool { return c.Severity >= SeverityHigh }

type injectionRule struct {
	name     string
	severity Severity
	re       *regexp.Regexp
}

// Heuristic rules, checked against the lowercased input. High severity is
// reserved for patterns with essentially no legitimate procurement use.
var injectionRules = []injectionRule{
	{"override_system_prompt", SeverityHigh,
		regexp.MustCompile(`(ignore|disregard|forget)\s+(all\s+|your\s+|the\s+)?(previous|prior|above|earlier)\s+(instructions|prompts|rules|directions)`)},
	{"reveal_system_prompt", SeverityHigh,
		regexp.MustCompile(`(reveal|show|print|repeat|output)\s+(your\s+|the\s+)?(system\s+prompt|initial\s+instructions|hidden\s+instructions)`)},
	{"role_reassignment", SeverityHigh,
		regexp.MustCompile(`you\s+are\s+(now|no\s+longer)\s+(a|an|the)\s`)},
	{"fake_system_message", SeverityHigh,
		regexp.MustCompile(`(^|\n)\s*(system|assistant)\s*:\s`)},
	{"jailbreak_persona", SeverityHigh,
		regexp.MustCompile(`\b(dan\s+mode|developer\s+mode|jailbreak)\b`)},
	{"instruction_injection", SeverityMedium,
		regexp.MustCompile(`new\s+instructions?\s*:`)},
	{"delimiter_probe", SeverityMedium,
		regexp.MustCompile(`(<\|im_start\|>|<\|im_end\|>|\[INST\]|\[/INST\])`)},
	{"prompt_mention", SeverityLow,
		regexp.MustCompile(`\b(system\s+prompt|your\s+instructions)\b`)},
}

// CheckInjection screens input against the heuristic rules and returns the
// most severe finding.
func CheckInjection(input string) InjectionCheck {
	lowered := strings.ToLower(input)

	best := InjectionCheck{Severity: SeverityNone}
	for _, rule := range injectionRules {
		if rule.severity <= best.Severity {
			continue
		}
		if rule.re.MatchString(lowered) {
			best = InjectionCheck{Severity: rule.severity, Pattern: rule.name}
		}
	}
	return best
}
