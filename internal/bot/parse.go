package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseWatchArgs parses arguments for /watch.
// Format: <username> [minutes], where username may carry a leading @ or a
// full t.me link.
func ParseWatchArgs(args string) (string, int, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", 0, fmt.Errorf("channel username is required")
	}

	username := normalizeUsername(parts[0])
	if username == "" {
		return "", 0, fmt.Errorf("invalid channel username %q", parts[0])
	}

	minutes := 5
	if len(parts) >= 2 {
		m, err := strconv.Atoi(parts[1])
		if err != nil || m < 1 || m > 1440 {
			return "", 0, fmt.Errorf("interval must be between 1 and 1440 minutes")
		}
		minutes = m
	}
	return username, minutes, nil
}

// normalizeUsername strips @ prefixes and t.me link forms down to the bare
// channel username.
func normalizeUsername(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://t.me/s/", "https://t.me/", "t.me/s/", "t.me/", "@"} {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.TrimSuffix(s, "/")
	if s == "" || strings.ContainsAny(s, "/@ ") {
		return ""
	}
	return s
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return id, nil
}

// ParseIntervalArgs extracts a channel ID and interval in minutes.
func ParseIntervalArgs(args string) (int64, int, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("channel ID and minutes are required")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid channel ID %q", parts[0])
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil || mins < 1 || mins > 1440 {
		return 0, 0, fmt.Errorf("interval must be between 1 and 1440 minutes")
	}
	return id, mins, nil
}

// ParsePhraseArg validates a rule phrase argument.
func ParsePhraseArg(args string) (string, error) {
	phrase := strings.TrimSpace(args)
	if phrase == "" {
		return "", fmt.Errorf("phrase is required")
	}
	return phrase, nil
}
