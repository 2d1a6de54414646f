package dialog

import (
	"regexp"
	"strconv"
	"strings"
)

// ValidationError carries the message shown to the admin when an answer
// does not parse.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

var delayPattern = regexp.MustCompile(`(?i)^(\d+)\s*(s|m|min|h|hr)?$`)

// ParseDelay parses a "<number><unit>" delay into seconds. Accepted
// units: s, m/min, h/hr. A bare number is seconds; 0 disables.
func ParseDelay(text string) (int, error) {
	m := delayPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, &ValidationError{`Could not read that delay. Use e.g. "30s", "5 min" or "1h".`}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &ValidationError{"That number is too large."}
	}
	switch strings.ToLower(m[2]) {
	case "", "s":
		return n, nil
	case "m", "min":
		return n * 60, nil
	default: // h or hr, the pattern admits nothing else
		return n * 3600, nil
	}
}

func parseChannelID(text string) (int64, error) {
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, &ValidationError{"That does not look like a channel id. Forward a message from the channel to @userinfobot to find it."}
	}
	return id, nil
}

func parseUserID(text string) (int64, error) {
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{"That does not look like a user id."}
	}
	return id, nil
}
