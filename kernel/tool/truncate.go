package tool

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const approxBytesPerToken = 4

// TruncationPolicy bounds the tool output sent back to the model.
type TruncationPolicy struct {
	MaxTokens int
	MaxBytes  int
}

// DefaultTruncationPolicy returns default tool output truncation policy.
func DefaultTruncationPolicy() TruncationPolicy {
	return TruncationPolicy{MaxTokens: 10000}
}

// TruncateString truncates a string in the middle to fit the policy budget
// and reports the estimated number of removed tokens.
func TruncateString(s string, policy TruncationPolicy) (string, int) {
	if s == "" {
		return s, 0
	}
	budgetBytes := policy.byteBudget()
	if budgetBytes <= 0 || len(s) <= budgetBytes {
		return s, 0
	}
	leftBudget := budgetBytes / 2
	rightBudget := budgetBytes - leftBudget
	prefixEnd, suffixStart := splitUTF8Bounds(s, leftBudget, rightBudget)
	left := s[:prefixEnd]
	right := s[suffixStart:]
	removedBytes := len(s) - (len(left) + len(right))
	removedTokens := approxTokensFromBytes(removedBytes)
	marker := formatTruncationMarker(policy, removedTokens, removedBytes)
	return left + marker + right, removedTokens
}

// TruncateText truncates text and includes total line count when truncated.
func TruncateText(s string, policy TruncationPolicy) (string, int) {
	truncated, removed := TruncateString(s, policy)
	if removed == 0 {
		return truncated, removed
	}
	if strings.Contains(s, "\n") {
		lines := strings.Count(s, "\n") + 1
		truncated = fmt.Sprintf("Total lines: %d\n\n%s", lines, truncated)
	}
	return truncated, removed
}

func splitUTF8Bounds(s string, leftBudget, rightBudget int) (int, int) {
	leftBudget = max(leftBudget, 0)
	rightBudget = max(rightBudget, 0)
	length := len(s)
	targetSuffix := max(length-rightBudget, 0)
	prefixEnd := 0
	suffixStart := length
	for idx, r := range s {
		end := idx + utf8.RuneLen(r)
		if end <= leftBudget {
			prefixEnd = end
		}
		if idx >= targetSuffix {
			suffixStart = idx
			break
		}
	}
	if suffixStart < prefixEnd {
		suffixStart = prefixEnd
	}
	return prefixEnd, suffixStart
}

func formatTruncationMarker(policy TruncationPolicy, removedTokens, removedBytes int) string {
	if policy.MaxTokens > 0 {
		if removedTokens <= 0 {
			return "\n...truncated...\n"
		}
		return fmt.Sprintf("\n...%d tokens truncated...\n", removedTokens)
	}
	if removedBytes <= 0 {
		return "\n...truncated...\n"
	}
	return fmt.Sprintf("\n...%d chars truncated...\n", removedBytes)
}

func approxTokensFromBytes(bytes int) int {
	if bytes <= 0 {
		return 0
	}
	tokens := bytes / approxBytesPerToken
	if bytes%approxBytesPerToken != 0 {
		tokens++
	}
	return tokens
}

func (p TruncationPolicy) byteBudget() int {
	if p.MaxBytes > 0 {
		return p.MaxBytes
	}
	if p.MaxTokens > 0 {
		return p.MaxTokens * approxBytesPerToken
	}
	return 0
}
