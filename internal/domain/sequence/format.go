package sequence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Format renders a document number from template. Supported tokens are
// {YYYY}, {YY}, {MM}, {DD} and a run of '#' inside braces ({######}) which is
// replaced by n zero-padded to the run length. Everything else is copied as is.
// An empty template yields "<fallbackPrefix>-<n>".
func Format(template, fallbackPrefix string, asOf time.Time, n int64) string {
	if template == "" {
		return fmt.Sprintf("%s-%d", fallbackPrefix, n)
	}

	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += open

		b.WriteString(rest[:open])
		token := rest[open+1 : end]
		if v, ok := expand(token, asOf, n); ok {
			b.WriteString(v)
		} else {
			b.WriteString(rest[open : end+1])
		}
		rest = rest[end+1:]
	}
	return b.String()
}

func expand(token string, asOf time.Time, n int64) (string, bool) {
	switch token {
	case "YYYY":
		return fmt.Sprintf("%04d", asOf.Year()), true
	case "YY":
		return fmt.Sprintf("%02d", asOf.Year()%100), true
	case "MM":
		return fmt.Sprintf("%02d", int(asOf.Month())), true
	case "DD":
		return fmt.Sprintf("%02d", asOf.Day()), true
	}
	if isSequenceToken(token) {
		s := strconv.FormatInt(n, 10)
		if pad := len(token) - len(s); pad > 0 {
			s = strings.Repeat("0", pad) + s
		}
		return s, true
	}
	return "", false
}

func isSequenceToken(token string) bool {
	return token != "" && strings.Trim(token, "#") == ""
}

func hasToken(template, token string) bool {
	return strings.Contains(template, "{"+token+"}")
}

// ValidateTemplate checks that numbers rendered from template stay unique for
// the given reset rule: a sequence token is required, and a resetting counter
// needs the date tokens that tell its buckets apart.
func ValidateTemplate(template string, rule ResetRule) error {
	if template == "" {
		return nil
	}
	found := false
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			break
		}
		if isSequenceToken(rest[open+1 : open+end]) {
			found = true
		}
		rest = rest[open+end+1:]
	}
	if !found {
		return fmt.Errorf("format %q has no sequence token", template)
	}

	hasYear := hasToken(template, "YYYY") || hasToken(template, "YY")
	switch rule {
	case ResetYearly:
		if !hasYear {
			return fmt.Errorf("format %q resets yearly but has no year token", template)
		}
	case ResetMonthly:
		if !hasYear || !hasToken(template, "MM") {
			return fmt.Errorf("format %q resets monthly but lacks year and month tokens", template)
		}
	case ResetDaily:
		if !hasYear || !hasToken(template, "MM") || !hasToken(template, "DD") {
			return fmt.Errorf("format %q resets daily but lacks year, month and day tokens", template)
		}
	}
	return nil
}
