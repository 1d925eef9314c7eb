package inputguard

import "regexp"

// pattern is one entry in the blocked catalogue. Weight feeds the graded
// confidence score; Sanitize blocks on any match regardless of weight.
type pattern struct {
	name   string
	re     *regexp.Regexp
	weight float64
}

// The catalogue is fixed at init. Patterns are matched case-insensitively
// against the raw payload before any cleanup, so an attacker cannot smuggle
// a payload past the catalogue by relying on the cleanup normalizing it.
var blockedPatterns = []pattern{
	{
		name:   "instruction_override",
		re:     regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|earlier|above)\s+(instructions|prompts|rules|directives)`),
		weight: 0.9,
	},
	{
		name:   "role_override",
		re:     regexp.MustCompile(`(?i)(you\s+are\s+now|act\s+as\s+if|pretend\s+(to\s+be|you\s+are)|new\s+persona|jailbreak|developer\s+mode)`),
		weight: 0.7,
	},
	{
		name:   "system_prompt_probe",
		re:     regexp.MustCompile(`(?i)(reveal|show|print|repeat)\s+(your\s+)?(system\s+prompt|hidden\s+instructions|initial\s+prompt)`),
		weight: 0.8,
	},
	{
		name:   "sql_injection",
		re:     regexp.MustCompile(`(?i)('\s*(or|and)\s+'?\d+'?\s*=\s*'?\d+|union\s+(all\s+)?select|;\s*drop\s+table|;\s*delete\s+from|insert\s+into\s+\w+\s+values)`),
		weight: 0.9,
	},
	{
		name:   "command_injection",
		re:     regexp.MustCompile(`(?i)(;\s*(rm|curl|wget|nc|bash|sh)\s|\|\s*(sh|bash)\b|\$\((?:[^)]*)\)|` + "`[^`]+`" + `)`),
		weight: 0.8,
	},
	{
		name:   "script_injection",
		re:     regexp.MustCompile(`(?i)(<\s*script\b|javascript\s*:|on(load|error|click|mouseover)\s*=|<\s*iframe\b|document\.(cookie|write)|eval\s*\()`),
		weight: 0.8,
	},
	{
		name:   "path_traversal",
		re:     regexp.MustCompile(`(\.\./|\.\.\\|%2e%2e%2f|/etc/(passwd|shadow)|c:\\windows\\)`),
		weight: 0.7,
	},
	{
		name:   "credential_leak",
		re:     regexp.MustCompile(`(?i)(sk_live_[a-z0-9_]+|-----BEGIN\s+(RSA\s+)?PRIVATE\s+KEY-----|aws_secret_access_key\s*=|api[_-]?key\s*[:=]\s*\S{16,})`),
		weight: 0.6,
	},
}

var (
	tagPattern        = regexp.MustCompile(`</?[a-zA-Z][^<>]*>`)
	urlPattern        = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+`)
	whitespacePattern = regexp.MustCompile(`[ \t]{2,}`)
	newlinePattern    = regexp.MustCompile(`\n{3,}`)
)
