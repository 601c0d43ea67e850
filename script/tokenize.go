package script

import (
	"github.com/pkg/errors"
)

// Line scanning limits inherited from the boot loader's command parser: at
// most 10 tokens per line, sharing a 181-byte scratch budget where every
// token costs its length plus one.
const (
	maxTokens    = 10
	maxLineBytes = 181
)

func isBlank(c byte) bool {
	return c == ' ' || c == '\t'
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// printable ASCII, excluding space
func isGraph(c byte) bool {
	return c > 0x20 && c < 0x7f
}

// splitLine scans one script line into tokens. Blanks separate tokens; any
// other whitespace byte ends the scan early. Tokens are runs of printable
// bytes, so a stray control byte produces empty tokens until the token cap
// trips.
func splitLine(line string) ([]string, error) {
	var argv []string
	used := 0
	for i := 0; i < len(line); {
		c := line[i]
		if isSpace(c) {
			i++
			if isBlank(c) {
				continue
			}
			break
		}
		if len(argv) >= maxTokens {
			return nil, errors.New("too many arguments")
		}
		j := i
		for j < len(line) && isGraph(line[j]) {
			j++
		}
		if used+(j-i) >= maxLineBytes {
			return nil, errors.New("command buffer too small")
		}
		used += (j - i) + 1
		argv = append(argv, line[i:j])
		i = j
	}
	return argv, nil
}
