package prompt

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// charsPerToken is the divisor for the byte-based estimator
// (roughly 4 bytes per token for typical English/code).
const charsPerToken = 4

// ResponseReserve is the number of tokens kept free for the generated message
// when comparing a prompt against the context limit.
const ResponseReserve = 512

// EstimateTokens returns an estimated token count for p: (len(p)+3)/4.
// Empty string returns 0.
func EstimateTokens(p string) int {
	n := len(p)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}

// CheckContext returns a warning when the estimated prompt size plus
// ResponseReserve reaches warnThreshold of contextLimit. It returns "" when
// the prompt fits or contextLimit <= 0.
func CheckContext(p string, contextLimit int, warnThreshold float64) string {
	if contextLimit <= 0 || warnThreshold <= 0 {
		return ""
	}
	promptTokens := EstimateTokens(p)
	if ResponseReserve > math.MaxInt-promptTokens {
		return fmt.Sprintf("token estimate overflow (prompt %d)", promptTokens)
	}
	total := promptTokens + ResponseReserve
	limit := float64(contextLimit) * warnThreshold
	threshold := int(limit)
	if limit > float64(threshold) {
		threshold++
	}
	if total < threshold {
		return ""
	}
	return fmt.Sprintf("estimated tokens %d (prompt %d + reserve %d) exceed %.0f%% of context limit %d; the model may ignore part of the diff",
		total, promptTokens, ResponseReserve, warnThreshold*100, contextLimit)
}

// TruncateDiff cuts diff to at most maxBytes bytes without splitting a UTF-8
// sequence and appends a marker. maxBytes <= 0 disables truncation.
// The second return value reports whether anything was cut.
func TruncateDiff(diff string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(diff) <= maxBytes {
		return diff, false
	}
	return truncateUTF8(diff, maxBytes) + "\n\n[truncated for context]", true
}

// truncateUTF8 returns the longest prefix of s that is at most maxBytes long
// and ends on a rune boundary.
func truncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
