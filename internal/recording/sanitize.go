// SPDX-License-Identifier: MIT

package recording

import (
	"strings"
	"time"
)

// SanitizeName reduces a team name to filename-safe characters.
// Anything outside [A-Za-z0-9_-] becomes an underscore, runs of
// underscores collapse to one, and leading/trailing separators are
// trimmed. The result is valid on all target filesystems and the
// transformation is idempotent.
func SanitizeName(name string) string {
	var b strings.Builder
	lastWasUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			lastWasUnderscore = false
		default:
			if !lastWasUnderscore {
				b.WriteByte('_')
				lastWasUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_-")
}

// FileName builds the session filename from sanitized team names and
// the start timestamp, second precision, colons replaced by dashes:
// "<home>-<away>-2024-01-01T10-00-00.json".
func FileName(homeName, awayName string, startedAt time.Time) string {
	ts := startedAt.UTC().Format("2006-01-02T15-04-05")
	return SanitizeName(homeName) + "-" + SanitizeName(awayName) + "-" + ts + ".json"
}
