package inputguard

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/smallbiznis/sentra/internal/config"
	obsmetrics "github.com/smallbiznis/sentra/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Options tunes a single sanitization call. Zero values fall back to the
// guard's configured defaults.
type Options struct {
	MaxLength int
	AllowURLs bool
}

// Result is the outcome of a sanitization pass. When Blocked is set the
// payload matched the blocked catalogue and Sanitized is empty: known-bad
// input is rejected whole, never partially cleaned.
type Result struct {
	Sanitized string   `json:"sanitized"`
	Warnings  []string `json:"warnings,omitempty"`
	Blocked   bool     `json:"blocked"`
	Reason    string   `json:"reason,omitempty"`
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Guard struct {
	log       *zap.Logger
	maxLength int
	metrics   *obsmetrics.Metrics
}

func New(p Params) *Guard {
	return &Guard{
		log:       p.Log.Named("inputguard"),
		maxLength: p.Config.MaxPayloadLength,
		metrics:   p.Metrics,
	}
}

var Module = fx.Module("inputguard",
	fx.Provide(New),
)

// Sanitize clamps, screens and cleans a free-text payload. The blocked
// catalogue is checked before any cleanup so the verdict is made on the
// payload as presented. Cleanup is idempotent: sanitizing already-sanitized
// output changes nothing and raises no new warnings.
func (g *Guard) Sanitize(text string, opts Options) Result {
	maxLength := opts.MaxLength
	if maxLength <= 0 {
		maxLength = g.maxLength
	}

	var warnings []string
	if maxLength > 0 && len(text) > maxLength {
		text = truncate(text, maxLength)
		warnings = append(warnings, "payload_truncated")
	}

	for _, p := range blockedPatterns {
		if p.re.MatchString(text) {
			if g.metrics != nil {
				g.metrics.RecordInputBlocked(p.name)
			}
			g.log.Warn("payload blocked", zap.String("pattern", p.name))
			return Result{Blocked: true, Reason: "blocked_pattern:" + p.name}
		}
	}

	cleaned := tagPattern.ReplaceAllString(text, "")
	if !opts.AllowURLs {
		if urlPattern.MatchString(cleaned) {
			cleaned = urlPattern.ReplaceAllString(cleaned, "[url]")
			warnings = append(warnings, "url_removed")
		}
	}
	cleaned = stripControl(cleaned)
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = newlinePattern.ReplaceAllString(cleaned, "\n\n")
	cleaned = escapeAngles(cleaned)
	cleaned = strings.TrimSpace(cleaned)

	// Escaping can grow the payload past the clamp, so re-clamp the cleaned
	// output. Ampersands are never escaped, so a second pass over the
	// re-clamped text cannot grow it again.
	if maxLength > 0 && len(cleaned) > maxLength {
		cleaned = strings.TrimSpace(truncate(cleaned, maxLength))
		if !slices.Contains(warnings, "payload_truncated") {
			warnings = append(warnings, "payload_truncated")
		}
	}

	return Result{Sanitized: cleaned, Warnings: warnings}
}

// truncate clamps to maxLen bytes without splitting a UTF-8 sequence.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

func stripControl(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}

// escapeAngles neutralizes leftover angle brackets after tag stripping.
// Ampersands are left alone so a second pass over escaped output is a no-op.
func escapeAngles(text string) string {
	text = strings.ReplaceAll(text, "<", "&lt;")
	return strings.ReplaceAll(text, ">", "&gt;")
}
