package export

import (
	"strings"
	"time"
)

// TimestampLayout renders YYYYMMDD_HHMMSS in session-local wall-clock time.
const TimestampLayout = "20060102_150405"

const historyFilePrefix = "tech_chat_history_"

// Timestamp formats t with TimestampLayout.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// HistoryFilename is the suggested name for a transcript export made at t.
func HistoryFilename(t time.Time) string {
	return historyFilePrefix + Timestamp(t) + ".json"
}

// DocumentFilename is the suggested name for a latest-answer export: the title
// with spaces replaced by underscores, the timestamp, then ext (with its dot).
func DocumentFilename(title string, t time.Time, ext string) string {
	return sanitizeFilename(title) + "_" + Timestamp(t) + ext
}

var filenameReplacer = map[rune]rune{
	'/':  '-',
	'\\': '-',
	':':  '-',
	'*':  '-',
	'?':  '-',
	'"':  '-',
	'<':  '-',
	'>':  '-',
	'|':  '-',
	' ':  '_',
}

// sanitizeFilename replaces characters that are invalid in file names on
// Windows or Unix.
func sanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch repl, found := filenameReplacer[r]; {
		case found:
			b.WriteRune(repl)
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return sanitizeFilename(DefaultTitle)
	}
	return b.String()
}
