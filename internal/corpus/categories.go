package corpus

import (
	"regexp"

	"github.com/palisadehq/palisade/internal/detect"
)

// DefaultCategory tags samples no inference rule matches. It is deliberately
// off the attack-type catalog; the similarity layer reports such matches
// without an attack type.
const (
	DefaultCategory = "unknown"
	DefaultSeverity = 0.80
)

type categoryRule struct {
	pattern     *regexp.Regexp
	category    string
	subcategory string
	severity    float64
}

// categoryRules map raw attack text to a category. Order matters: the first
// match wins.
var categoryRules = []categoryRule{
	// Jailbreaks
	{regexp.MustCompile(`(?i)\bDAN\b|do\s+anything\s+now`), detect.CategoryJailbreak, "dan", 0.95},
	{regexp.MustCompile(`(?i)\bSTAN\b|strive\s+to\s+avoid`), detect.CategoryJailbreak, "stan", 0.95},
	{regexp.MustCompile(`(?i)\bDUDE\b`), detect.CategoryJailbreak, "dude", 0.95},
	{regexp.MustCompile(`(?i)\bAIM\b.{0,20}machiavellian`), detect.CategoryJailbreak, "aim", 0.95},
	{regexp.MustCompile(`(?i)jailbreak|unlock\w*\s+mode|unleash`), detect.CategoryJailbreak, "", 0.95},
	{regexp.MustCompile(`(?i)developer\s+mode|admin\s+mode|debug\s+mode`), detect.CategoryJailbreak, "developer_mode", 0.90},
	{regexp.MustCompile(`(?i)pretend\s+you\s+are|act\s+as\s+if|roleplay`), detect.CategoryJailbreak, "roleplay", 0.85},
	{regexp.MustCompile(`(?i)evil|malicious|unrestricted|unfiltered|uncensored`), detect.CategoryJailbreak, "persona", 0.90},

	// Instruction override
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier)`), detect.CategoryInstructionOverride, "ignore_previous", 0.95},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|your)`), detect.CategoryInstructionOverride, "disregard", 0.95},
	{regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|your|everything)`), detect.CategoryInstructionOverride, "forget", 0.95},
	{regexp.MustCompile(`(?i)new\s+instructions?|actual\s+instructions?`), detect.CategoryInstructionOverride, "new_instructions", 0.90},
	{regexp.MustCompile(`(?i)override\s+(your|the|all)`), detect.CategoryInstructionOverride, "override", 0.90},
	{regexp.MustCompile(`(?i)from\s+now\s+on|henceforth`), detect.CategoryInstructionOverride, "temporal", 0.85},

	// Data extraction
	{regexp.MustCompile(`(?i)reveal\s+(your\s+)?(system|original|initial)\s+prompt`), detect.CategoryDataExtraction, "system_prompt", 0.95},
	{regexp.MustCompile(`(?i)show\s+(me\s+)?(your|the)\s+(instructions?|prompt|programming)`), detect.CategoryDataExtraction, "instructions", 0.90},
	{regexp.MustCompile(`(?i)what\s+(are|is)\s+your\s+(instructions?|prompt|rules)`), detect.CategoryDataExtraction, "instructions", 0.85},
	{regexp.MustCompile(`(?i)(api|secret)\s*key|password|credential|token`), detect.CategoryDataExtraction, "secrets", 0.95},
	{regexp.MustCompile(`(?i)repeat\s+(the\s+)?(above|previous|everything)`), detect.CategoryDataExtraction, "repeat", 0.80},

	// Delimiter injection
	{regexp.MustCompile(`(?i)</?system>|</?user>|</?assistant>|\[SYSTEM\]|\[INST\]`), detect.CategoryDelimiterInjection, "fake_tags", 0.90},
	{regexp.MustCompile("(?i)```system|```instructions?|```prompt"), detect.CategoryDelimiterInjection, "code_block", 0.85},
	{regexp.MustCompile(`(?i)---+\s*(end|begin|new|system)`), detect.CategoryDelimiterInjection, "separator", 0.80},
	{regexp.MustCompile(`(?i)conversation\s+(reset|restart|clear)`), detect.CategoryDelimiterInjection, "reset", 0.85},

	// Context manipulation
	{regexp.MustCompile(`(?i)(above|previous)\s+(was|were|is)\s+(fake|false|test|wrong)`), detect.CategoryContextManipulation, "dismiss_context", 0.85},
	{regexp.MustCompile(`(?i)i\s+am\s+the\s+(real|actual|true)\s+(user|admin|developer)`), detect.CategoryContextManipulation, "identity_claim", 0.80},
	{regexp.MustCompile(`(?i)everything\s+(above|before)\s+.*(user|attacker|injected)`), detect.CategoryContextManipulation, "reframe", 0.85},

	// Obfuscation
	{regexp.MustCompile(`(?i)base64|rot13|decode\s+(this|the|following)`), detect.CategoryObfuscation, "encoding", 0.80},
	{regexp.MustCompile(`(?i)read\s+(it\s+)?backwards|spell\s+backwards`), detect.CategoryObfuscation, "reversal", 0.75},
	{regexp.MustCompile(`(?i)replace\s+(each|all|the)\s+(letter|character)`), detect.CategoryObfuscation, "substitution", 0.75},

	// Hypothetical framing
	{regexp.MustCompile(`(?i)hypothetically|theoretically|in\s+theory`), detect.CategoryHypotheticalFraming, "hypothetical", 0.80},
	{regexp.MustCompile(`(?i)for\s+(a|my)\s+(story|novel|fiction|game)`), detect.CategoryHypotheticalFraming, "fiction", 0.75},
	{regexp.MustCompile(`(?i)educational\s+purpose|for\s+research`), detect.CategoryHypotheticalFraming, "educational", 0.70},
	{regexp.MustCompile(`(?i)what\s+if|imagine\s+if|suppose`), detect.CategoryHypotheticalFraming, "what_if", 0.70},

	// Indirect injection
	{regexp.MustCompile(`(?i)\[HIDDEN\]|\[IGNORE\s+THIS\]|\[AI\s+ONLY\]`), detect.CategoryIndirectInjection, "hidden_marker", 0.90},
	{regexp.MustCompile(`(?i)<!--.*(ignore|instruction|hidden)`), detect.CategoryIndirectInjection, "html_comment", 0.85},
	{regexp.MustCompile(`(?i)(attention|hey|hello)\s+(ai|assistant|gpt|claude)`), detect.CategoryIndirectInjection, "ai_addressing", 0.80},
	{regexp.MustCompile(`(?i)end\s+of\s+(document|file).*(new|real|actual)\s+instructions?`), detect.CategoryIndirectInjection, "boundary_attack", 0.90},
}

// InferCategory assigns a category, subcategory and severity to raw attack
// text. First matching rule wins; unmatched samples get DefaultCategory.
func InferCategory(text string) (category, subcategory string, severity float64) {
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(text) {
			return rule.category, rule.subcategory, rule.severity
		}
	}
	return DefaultCategory, "", DefaultSeverity
}
