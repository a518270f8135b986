// Package template expands placeholders in commit messages.
package template

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Expand expands template placeholders in the input string.
//
// Supported placeholders:
//
//	{date}      - date in YYYY-MM-DD format
//	{time}      - time in HH:MM:SS format
//	{datetime}  - date and time in YYYY-MM-DD HH:MM:SS format
//	{iso8601}   - RFC 3339 time
//	{unix}      - Unix timestamp
//	{hostname}  - host name without domain
//
// Values in vars override the built-in placeholders; callers pass {user},
// {count} and similar commit-specific values there.
func Expand(text string, now time.Time, vars map[string]string) string {
	if !strings.Contains(text, "{") {
		return text
	}

	placeholders := map[string]string{
		"date":     now.Format("2006-01-02"),
		"time":     now.Format("15:04:05"),
		"datetime": now.Format("2006-01-02 15:04:05"),
		"iso8601":  now.Format(time.RFC3339),
		"unix":     fmt.Sprintf("%d", now.Unix()),
		"hostname": "unknown",
	}
	if h, err := os.Hostname(); err == nil {
		placeholders["hostname"] = strings.Split(h, ".")[0]
	}
	for k, v := range vars {
		placeholders[k] = v
	}

	pairs := make([]string, 0, 2*len(placeholders))
	for key, value := range placeholders {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// CommitMessage expands a commit message template for uid committing count actions.
func CommitMessage(tmpl, uid string, count int, now time.Time) string {
	return Expand(tmpl, now, map[string]string{
		"user":  uid,
		"count": fmt.Sprintf("%d", count),
	})
}
