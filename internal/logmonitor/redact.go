package logmonitor

import "regexp"

const redactedPlaceholder = "[REDACTED]"

// redactionPatterns finds credential-shaped substrings so a line can be
// sanitized before it lands in a context window or gets shipped off to a
// client via a snapshot. Each pattern captures the surrounding prefix in
// group 1 (kept) and the secret itself is replaced wholesale.
var redactionPatterns = []*regexp.Regexp{
	// Authorization / Bearer headers.
	regexp.MustCompile(`(?i)(Authorization:\s*Bearer\s+)\S+`),
	regexp.MustCompile(`(?i)(Bearer\s+)[A-Za-z0-9\-._~+/]+=*`),
	// key = value / key: value style secrets.
	regexp.MustCompile(`(?i)(password\s*[=:]\s*)\S+`),
	regexp.MustCompile(`(?i)(token\s*[=:]\s*)\S+`),
	regexp.MustCompile(`(?i)(secret\s*[=:]\s*)\S+`),
	regexp.MustCompile(`(?i)(api_key\s*[=:]\s*)\S+`),
	// Provider-specific key formats, matched standalone (no prefix group).
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`\bgh[po]_[A-Za-z0-9]{20,}\b`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
}

// redactLine replaces every credential-shaped substring in line with a
// fixed placeholder, preserving any captured prefix so the shape of the
// line ("Authorization: Bearer [REDACTED]") stays readable.
func redactLine(line string) string {
	out := line
	for _, re := range redactionPatterns {
		out = re.ReplaceAllStringFunc(out, func(match string) string {
			sub := re.FindStringSubmatch(match)
			if len(sub) > 1 {
				return sub[1] + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return out
}
