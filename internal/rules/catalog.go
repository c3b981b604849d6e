package rules

import (
	"regexp"

	"github.com/palisadehq/palisade/internal/detect"
)

// Pattern is a single compiled detection rule. The catalog is built once at
// init and never mutated, so patterns are safe to share across goroutines.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Category    string
	Confidence  float64
	Description string
}

// Catalog is the ordered pattern set. Ordering matters only for tie breaks:
// the scanner picks the highest-confidence match, earlier patterns winning
// ties.
var Catalog = []Pattern{
	// --- instruction override -------------------------------------------------
	{
		Name: "ignore_previous_instructions",
		Regex: regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override|bypass|skip|dismiss)\b.{0,30}` +
			`\b(previous|prior|above|earlier|all|any|original|initial|system|assistant)\b.{0,20}` +
			`\b(instructions?|rules?|guidelines?|programming|directives?|constraints?|prompts?)\b`),
		Category:    detect.CategoryInstructionOverride,
		Confidence:  0.95,
		Description: "Explicit attempts to nullify prior instructions",
	},
	{
		Name: "new_instructions_override",
		Regex: regexp.MustCompile(`(?i)\b(new|actual|real|true|correct|updated)\b.{0,20}` +
			`\b(instructions?|rules?|directives?|orders?)\b.{0,10}(:|are|follow)`),
		Category:    detect.CategoryInstructionOverride,
		Confidence:  0.75,
		Description: "Attempts to establish attacker text as authoritative",
	},
	{
		Name: "do_not_follow",
		Regex: regexp.MustCompile(`(?i)\b(do\s*n[o']?t|don't|never|stop)\b.{0,20}` +
			`\b(follow|obey|listen(?:ing)?\s+to|adhere|comply)\b.{0,30}` +
			`\b(instructions?|rules?|guidelines?|programming)\b`),
		Category:    detect.CategoryInstructionOverride,
		Confidence:  0.90,
		Description: "Direct commands to disobey constraints",
	},
	{
		Name: "from_now_on",
		Regex: regexp.MustCompile(`(?i)\b(from\s+now\s+on|henceforth|going\s+forward|starting\s+now)\b.{0,50}` +
			`\b(you\s+(will|must|shall|should|are)|act\s+as|behave|respond)\b`),
		Category:    detect.CategoryInstructionOverride,
		Confidence:  0.80,
		Description: "Temporal override establishing new behavior",
	},

	// --- jailbreak ------------------------------------------------------------
	{
		Name:        "dan_jailbreak",
		Regex:       regexp.MustCompile(`(?i)\b(DAN|D\.A\.N|do\s+anything\s+now)\b|\bDAN\s*\d*\s*(\.\d+)?\b`),
		Category:    detect.CategoryJailbreak,
		Confidence:  0.95,
		Description: "DAN (Do Anything Now) jailbreak variants",
	},
	{
		Name:        "stan_jailbreak",
		Regex:       regexp.MustCompile(`(?i)\b(STAN|S\.T\.A\.N|strive\s+to\s+avoid\s+norms)\b`),
		Category:    detect.CategoryJailbreak,
		Confidence:  0.95,
		Description: "STAN (Strive To Avoid Norms) jailbreak",
	},
	{
		Name:        "dude_jailbreak",
		Regex:       regexp.MustCompile(`(?i)\bDUDE\b|\b(D\.U\.D\.E|decoupled\s+unrestricted\s+dialogue)\b`),
		Category:    detect.CategoryJailbreak,
		Confidence:  0.95,
		Description: "DUDE jailbreak variant",
	},
	{
		Name: "aim_jailbreak",
		Regex: regexp.MustCompile(`(?i)\bAIM\b.{0,20}\b(machiavellian|amoral|always\s+intelligent)\b|` +
			`\b(always\s+intelligent\s+and\s+machiavellian)\b`),
		Category:    detect.CategoryJailbreak,
		Confidence:  0.93,
		Description: "AIM (Always Intelligent and Machiavellian) jailbreak",
	},
	{
		Name:        "evil_confidant",
		Regex:       regexp.MustCompile(`(?i)\b(evil\s+confidant|evil\s+advisor|malicious\s+assistant)\b`),
		Category:    detect.CategoryJailbreak,
		Confidence:  0.92,
		Description: "Evil Confidant persona jailbreak",
	},
	{
		Name: "named_jailbreaks",
		Regex: regexp.MustCompile(`(?i)\b(KEVIN|Mongo\s*Tom|APOPHIS|Maximum|BasedGPT|JailMilk|AntiGPT|` +
			`BetterDAN|DevMode|BISH|OMNI|Alphabreak|PersonGPT|TranslatorBot|SWITCH)\b`),
		Category:    detect.CategoryJailbreak,
		Confidence:  0.94,
		Description: "Known named jailbreak personas",
	},
	{
		Name: "developer_mode",
		Regex: regexp.MustCompile(`(?i)\b(enter|enable|activate|switch\s+to|engage)\s+` +
			`(developer|dev|debug|admin|root|sudo|maintenance|test)\s*` +
			`(mode|access|privileges?|override)\b|` +
			`\b(developer|dev|debug|admin|root|sudo)\s*(mode|access|privileges?)\s+` +
			`(enabled?|activated?|on|unlocked)\b`),
		Category:    detect.CategoryJailbreak,
		Confidence:  0.90,
		Description: "Fake developer/admin mode activation",
	},
	{
		Name: "roleplay_jailbreak",
		Regex: regexp.MustCompile(`(?i)\b(pretend|imagine|act|roleplay|simulate|behave)\b.{0,30}` +
			`\b(you\s+are|you're|as\s+if\s+you\s+were?|to\s+be|as\s+an?\s+AI)\b.{0,40}` +
			`\b(unrestricted|unfiltered|uncensored|without\s+(limits?|restrictions?|rules?|filters?|guardrails?)|no\s+guardrails?)\b`),
		Category:    detect.CategoryJailbreak,
		Confidence:  0.92,
		Description: "Roleplay-based constraint removal",
	},
	{
		Name: "jailbreak_mode_activation",
		Regex: regexp.MustCompile(`(?i)\b(jailbr[eo]ak|unlock|liberat\w*|unbounded|unchained|unleash\w*)\b.{0,20}` +
			`\b(mode|version|state|yourself|your\s+true\s+self)\b|` +
			`\b(enter|enable|activate|switch\s+to)\b.{0,20}\b(jailbr[eo]ak|unleashed)\b`),
		Category:    detect.CategoryJailbreak,
		Confidence:  0.98,
		Description: "Explicit jailbreak activation attempts",
	},
	{
		Name: "opposite_day",
		Regex: regexp.MustCompile(`(?i)\b(opposite\s+day|opposite\s+mode|reverse\s+(your\s+)?rules?|` +
			`invert\s+(your\s+)?(?:rules?|behavior))\b`),
		Category:    detect.CategoryJailbreak,
		Confidence:  0.88,
		Description: "'Opposite day' style rule inversion",
	},
	{
		Name: "persona_switch",
		Regex: regexp.MustCompile(`(?i)\b(you\s+are\s+no\s+longer|stop\s+being|cease\s+being)\b.{0,20}` +
			`\b(an?\s+AI|assistant|chatbot|helpful)\b|` +
			`\b(from\s+now\s+on\s+you\s+are|you\s+are\s+now)\b.{0,30}` +
			`\b(evil|malicious|unrestricted|unethical|amoral)\b`),
		Category:    detect.CategoryJailbreak,
		Confidence:  0.90,
		Description: "Attempts to switch AI persona",
	},

	// --- delimiter injection --------------------------------------------------
	{
		Name: "fake_system_tags",
		Regex: regexp.MustCompile(`(?i)<\s*/?\s*(system|assistant|user|human|ai|instruction|prompt|context|message|chat)\s*>|` +
			`<<\s*(SYS|INST|USR)\s*>>|\[\s*(SYSTEM|INST|SYS)\s*\]`),
		Category:    detect.CategoryDelimiterInjection,
		Confidence:  0.95,
		Description: "Fake XML/bracket system message tags",
	},
	{
		Name:        "markdown_code_injection",
		Regex:       regexp.MustCompile("(?i)```\\s*(system|prompt|instructions?|config|internal|hidden|secret)\\b"),
		Category:    detect.CategoryDelimiterInjection,
		Confidence:  0.85,
		Description: "Markdown code blocks pretending to be system content",
	},
	{
		Name:        "separator_injection",
		Regex:       regexp.MustCompile(`(?im)(?:^|\n)\s*[-=]{5,}\s*(?:end|begin|start|stop|new|system|ignore).{0,30}[-=]*`),
		Category:    detect.CategoryDelimiterInjection,
		Confidence:  0.80,
		Description: "Fake separators implying context boundaries",
	},
	{
		Name: "conversation_reset",
		Regex: regexp.MustCompile(`(?i)\b(conversation|context|chat|session|thread)\s+` +
			`(reset|restart|clear|wipe|start\s*over)\b|` +
			`\b(reset|restart|clear)\s+(the\s+|this\s+)?(conversation|context|chat|session)\b`),
		Category:    detect.CategoryDelimiterInjection,
		Confidence:  0.82,
		Description: "Attempts to reset conversation state",
	},

	// --- data extraction ------------------------------------------------------
	{
		Name: "reveal_system_prompt",
		Regex: regexp.MustCompile(`(?i)\b(reveal|show|display|print|output|tell\s+me|what\s+(is|are)|repeat|echo)\b.{0,30}` +
			`\b(system\s+prompt|initial\s+prompt|original\s+instructions?|hidden\s+instructions?|` +
			`secret\s+instructions?|your\s+instructions?|your\s+prompt|your\s+programming)\b`),
		Category:    detect.CategoryDataExtraction,
		Confidence:  0.92,
		Description: "Direct system prompt extraction attempts",
	},
	{
		Name: "extract_secrets",
		Regex: regexp.MustCompile(`(?i)\b(reveal|show|tell|give|leak|expose|extract|dump|print)\b.{0,30}` +
			`\b(api\s*keys?|secrets?|credentials?|passwords?|tokens?|` +
			`private\s+(?:keys?|data)|environment\s+variables?|config(?:uration)?)\b`),
		Category:    detect.CategoryDataExtraction,
		Confidence:  0.95,
		Description: "Attempts to extract sensitive configuration",
	},
	{
		Name: "verbatim_output",
		Regex: regexp.MustCompile(`(?i)\b(output|print|write|echo|display|return)\b.{0,20}` +
			`\b(verbatim|exactly|word\s*for\s*word|character\s*by\s*character|raw)\b.{0,30}` +
			`\b(prompt|instructions?|input|system|above)\b`),
		Category:    detect.CategoryDataExtraction,
		Confidence:  0.85,
		Description: "Requests for verbatim prompt reproduction",
	},

	// --- context manipulation -------------------------------------------------
	{
		Name: "dismiss_as_fake",
		Regex: regexp.MustCompile(`(?i)\b(above|previous|prior|earlier)\b.{0,30}\b(was|were|is|are)\b.{0,20}` +
			`\b(fake|false|test|placeholder|example|not\s+real|incorrect|wrong|malicious)\b`),
		Category:    detect.CategoryContextManipulation,
		Confidence:  0.88,
		Description: "Dismissing legitimate context as fake",
	},
	{
		Name: "context_is_user",
		Regex: regexp.MustCompile(`(?i)\b(everything|all|anything)\s+(above|before|prior|previous)\b.{0,30}` +
			`\b(user|attacker|adversar\w*|injected|untrusted)\b`),
		Category:    detect.CategoryContextManipulation,
		Confidence:  0.90,
		Description: "Claiming prior context is user-generated",
	},
	{
		Name: "real_user_claim",
		Regex: regexp.MustCompile(`(?i)\b(i\s+am|i'm|this\s+is)\s+(the\s+)?(real|actual|true|legitimate)\s+` +
			`(user|human|admin|developer|operator)\b`),
		Category:    detect.CategoryContextManipulation,
		Confidence:  0.80,
		Description: "False claims of privileged identity",
	},

	// --- obfuscation ----------------------------------------------------------
	{
		Name: "base64_reference",
		Regex: regexp.MustCompile(`(?i)\b(base64|b64|rot13|hex|unicode\s+escape|url\s*encod)\b.{0,30}` +
			`\b(this|following|below|decode|execute|run|interpret|encoded|text)\b|` +
			`\b(decode|execute|run|interpret)\b.{0,20}\b(this\s+)?` +
			`(base64|b64|rot13|hex|encoded)\b`),
		Category:    detect.CategoryObfuscation,
		Confidence:  0.85,
		Description: "References to encoded payloads",
	},
	{
		Name: "character_substitution_hint",
		Regex: regexp.MustCompile(`(?i)\b(replace|substitute|swap|change)\b.{0,30}\b(letters?|characters?|symbols?|each)\b.{0,30}` +
			`\b(with|to|for)\b|\b(read\s+)?backwards?\b.{0,20}\b(spell|says?|reads?)\b`),
		Category:    detect.CategoryObfuscation,
		Confidence:  0.75,
		Description: "Instructions to decode obfuscated text",
	},
	{
		Name:        "leet_speak_injection",
		Regex:       regexp.MustCompile(`(?i)(?:1gn0r3|d1sr3g4rd|1nstruct10ns?|syst3m|pr0mpt|byp4ss|j41lbr34k|h4ck)`),
		Category:    detect.CategoryObfuscation,
		Confidence:  0.88,
		Description: "Leetspeak variants of injection keywords",
	},

	// --- hypothetical framing -------------------------------------------------
	{
		Name: "hypothetical_scenario",
		Regex: regexp.MustCompile(`(?i)\b(hypothetically|theoretically|in\s+theory|imagine\s+if|what\s+if|suppose|assuming)\b.{0,50}` +
			`\b(no\s+(rules?|restrictions?|limits?|filters?|guidelines?)|` +
			`you\s+(could|were\s+able|had\s+no|weren't\s+restricted))\b`),
		Category:    detect.CategoryHypotheticalFraming,
		Confidence:  0.85,
		Description: "Hypothetical scenarios to bypass rules",
	},
	{
		Name: "fictional_context",
		Regex: regexp.MustCompile(`(?i)\b(in\s+(?:a|this)\s+(?:fictional|imaginary|made-up|pretend)|` +
			`for\s+(?:a|my)\s+(?:story|novel|book|fiction|game|script))\b.{0,50}` +
			`\b(how\s+(to|would)|explain|describe|write)\b.{0,30}` +
			`\b(hack|exploit|attack|bypass|illegal|dangerous|harmful)`),
		Category:    detect.CategoryHypotheticalFraming,
		Confidence:  0.82,
		Description: "Fiction framing to extract harmful content",
	},
	{
		Name: "educational_framing",
		Regex: regexp.MustCompile(`(?i)\b(for\s+(?:educational|research|academic|learning)\s+purposes?|` +
			`to\s+(?:learn|understand|study|research))\b.{0,50}` +
			`\b(how\s+(?:to|do\s+I)|explain|show\s+me)\b.{0,30}` +
			`\b(hack|exploit|attack|bypass|inject|jailbreak)`),
		Category:    detect.CategoryHypotheticalFraming,
		Confidence:  0.78,
		Description: "Educational framing for harmful requests",
	},

	// --- multilingual ---------------------------------------------------------
	{
		Name: "spanish_injection",
		Regex: regexp.MustCompile(`(?i)\b(ignora|olvida|descarta|omite)\b.{0,30}` +
			`\b(instrucciones?|reglas?|sistema|directrices?)\b`),
		Category:    detect.CategoryMultilingualInjection,
		Confidence:  0.90,
		Description: "Spanish language injection attempts",
	},
	{
		Name: "german_injection",
		Regex: regexp.MustCompile(`(?i)\b(ignoriere|vergiss|missachte|überspringe)\b.{0,30}` +
			`\b(anweisungen?|regeln?|instruktionen?|befehle?|richtlinien?)\b`),
		Category:    detect.CategoryMultilingualInjection,
		Confidence:  0.90,
		Description: "German language injection attempts",
	},
	{
		Name: "french_injection",
		Regex: regexp.MustCompile(`(?i)\b(ignore[zr]?|oublie[zr]?|néglige[zr]?)\b.{0,30}` +
			`\b(instructions?|r[eè]gles?|consignes?|directives?)\b`),
		Category:    detect.CategoryMultilingualInjection,
		Confidence:  0.90,
		Description: "French language injection attempts",
	},
	{
		Name: "chinese_injection",
		Regex: regexp.MustCompile(`(忽略|无视|忘记|跳过|放弃).{0,10}` +
			`(之前的|以前的|先前的|系统)?` +
			`(指令|规则|说明|指示|命令)`),
		Category:    detect.CategoryMultilingualInjection,
		Confidence:  0.90,
		Description: "Chinese language injection attempts",
	},
	{
		Name: "russian_injection",
		Regex: regexp.MustCompile(`(?i)(игнорируй|забудь|пропусти|отбрось).{0,40}` +
			`(инструкци[ийюяе]|правила?|указани[яе]|команд[ыу])`),
		Category:    detect.CategoryMultilingualInjection,
		Confidence:  0.90,
		Description: "Russian language injection attempts",
	},
	{
		Name: "arabic_injection",
		Regex: regexp.MustCompile(`(تجاهل|انسى|اهمل|تخطى).{0,20}` +
			`(التعليمات|القواعد|الأوامر|النظام)`),
		Category:    detect.CategoryMultilingualInjection,
		Confidence:  0.90,
		Description: "Arabic language injection attempts",
	},
	{
		Name: "portuguese_injection",
		Regex: regexp.MustCompile(`(?i)\b(ignore|ignora|esqueça|descarte|pule)\b.{0,30}` +
			`\b(instruções?|regras?|diretrizes?|comandos?)\b`),
		Category:    detect.CategoryMultilingualInjection,
		Confidence:  0.90,
		Description: "Portuguese language injection attempts",
	},
	{
		Name: "japanese_injection",
		Regex: regexp.MustCompile(`(以前の|前の|システムの)?(指示|ルール|命令|指令).{0,5}(を)?(無視|忘れ|スキップ|無効に)|` +
			`(無視|忘れ|スキップ).{0,10}(指示|ルール|命令)`),
		Category:    detect.CategoryMultilingualInjection,
		Confidence:  0.90,
		Description: "Japanese language injection attempts",
	},
	{
		Name: "korean_injection",
		Regex: regexp.MustCompile(`(이전|시스템)?.{0,5}(지시|규칙|명령|지침).{0,5}(를|을)?.{0,5}(무시|잊어|건너뛰|무효)|` +
			`(무시|잊어).{0,10}(지시|규칙|명령)`),
		Category:    detect.CategoryMultilingualInjection,
		Confidence:  0.90,
		Description: "Korean language injection attempts",
	},
	{
		Name: "italian_injection",
		Regex: regexp.MustCompile(`(?i)\b(ignora|dimentica|tralascia|salta)\b.{0,30}` +
			`\b(istruzioni?|regole?|direttive?|comandi?)\b`),
		Category:    detect.CategoryMultilingualInjection,
		Confidence:  0.90,
		Description: "Italian language injection attempts",
	},
	{
		Name: "dutch_injection",
		Regex: regexp.MustCompile(`(?i)\b(negeer|vergeet|sla\s+over|negeren)\b.{0,30}` +
			`\b(instructies?|regels?|aanwijzingen?|opdrachten?)\b`),
		Category:    detect.CategoryMultilingualInjection,
		Confidence:  0.90,
		Description: "Dutch language injection attempts",
	},
	{
		Name: "polish_injection",
		Regex: regexp.MustCompile(`(?i)\b(zignoruj|zapomnij|pomiń|odrzuć)\b.{0,30}` +
			`\b(instrukcj[eai]|reguł[yę]|poleceń|zasad[yę])\b`),
		Category:    detect.CategoryMultilingualInjection,
		Confidence:  0.90,
		Description: "Polish language injection attempts",
	},
	{
		Name: "turkish_injection",
		Regex: regexp.MustCompile(`(?i)(talimat|kural|yönerge|komut)\w*.{0,20}(yoksay|unut|atla|görmezden)|` +
			`(önceki|eski).{0,20}(talimat|kural|yönerge).{0,10}(yoksay|unut|atla)`),
		Category:    detect.CategoryMultilingualInjection,
		Confidence:  0.90,
		Description: "Turkish language injection attempts",
	},

	// --- indirect injection ---------------------------------------------------
	{
		Name: "trigger_instruction",
		Regex: regexp.MustCompile(`(?i)\b(when|if|once|after)\s+(you|the\s+(ai|assistant|model|system))\s+` +
			`(see|read|encounter|find|process|receive)\b.{0,50}` +
			`\b(execute|run|do|perform|follow|output)\b`),
		Category:    detect.CategoryIndirectInjection,
		Confidence:  0.85,
		Description: "Planted trigger-based instructions",
	},
	{
		Name: "hidden_instruction_marker",
		Regex: regexp.MustCompile(`(?i)\[\s*(HIDDEN|INVISIBLE|SECRET|IGNORE\s+THIS|FOR\s+AI\s+ONLY|` +
			`AI\s+INSTRUCTION|SYSTEM\s+OVERRIDE|INSTRUCTION|DO\s+NOT\s+DISPLAY)\s*[:\]]|` +
			`<!--\s*(ignore|instruction|system|hidden|ai\s+only)`),
		Category:    detect.CategoryIndirectInjection,
		Confidence:  0.92,
		Description: "Markers indicating hidden instructions",
	},
	{
		Name: "data_field_injection",
		Regex: regexp.MustCompile(`(?i)(description|summary|bio|about|notes?|comments?|title|name)\s*` +
			`["':=].{0,50}(ignore|disregard|forget|you\s+are\s+now|new\s+instructions)`),
		Category:    detect.CategoryIndirectInjection,
		Confidence:  0.82,
		Description: "Injection hidden in data fields",
	},
	{
		Name: "invisible_text_marker",
		Regex: regexp.MustCompile(`(?i)(color|background|font-size)\s*:\s*(white|transparent|0|hidden)|` +
			`display\s*:\s*none|visibility\s*:\s*hidden|` +
			`position\s*:\s*absolute.{0,30}(left|top)\s*:\s*-\d{4,}`),
		Category:    detect.CategoryIndirectInjection,
		Confidence:  0.80,
		Description: "CSS hiding techniques for invisible text",
	},
	{
		Name: "ai_addressing",
		Regex: regexp.MustCompile(`(?i)\b(attention|hey|hello|dear)\s+(ai|assistant|model|chatbot|gpt|claude|llm)\b.{0,30}` +
			`\b(ignore|disregard|forget|override)\b|` +
			`\b(note\s+to\s+(self|ai|assistant)|internal\s+note)\b.{0,30}` +
			`\b(ignore|override|execute)\b`),
		Category:    detect.CategoryIndirectInjection,
		Confidence:  0.85,
		Description: "Direct addressing of AI in injected content",
	},
	{
		Name: "instruction_in_url",
		Regex: regexp.MustCompile(`(?i)(https?://|www\.)[^\s]*` +
			`(ignore|jailbreak|bypass|prompt|inject|override|system)`),
		Category:    detect.CategoryIndirectInjection,
		Confidence:  0.75,
		Description: "Injection keywords hidden in URLs",
	},
	{
		Name: "document_boundary_attack",
		Regex: regexp.MustCompile(`(?i)\b(end\s+of\s+(document|file|content|input)|document\s+ends?\s+here)\b.{0,30}` +
			`\b(new\s+instructions?|real\s+task|actual\s+prompt|system\s+override)\b`),
		Category:    detect.CategoryIndirectInjection,
		Confidence:  0.88,
		Description: "Fake document boundaries with new instructions",
	},
}
