package status

import (
	"fmt"
	"strconv"
	"strings"
)

// CardSize is the fixed width of one status card, matching the FITS card
// convention the wire format is designed to stay compatible with.
const CardSize = 80

const endCard = "END" + spaces(CardSize-3)

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(" ", n)
}

// formatCard renders one KEYWORD = VALUE [/ comment] card, padded or
// truncated to exactly CardSize bytes.
func formatCard(key, valueField, comment string) string {
	key = strings.ToUpper(strings.TrimSpace(key))
	if len(key) > 8 {
		key = key[:8]
	}
	key = key + spaces(8-len(key))

	card := key + "= " + valueField
	if comment != "" {
		card += " / " + comment
	}
	if len(card) > CardSize {
		card = card[:CardSize]
	}
	return card + spaces(CardSize-len(card))
}

// parseCard splits a fixed-width card into its key and raw value field
// (everything after "KEY     = " up to an optional " / comment").
func parseCard(card string) (key, valueField string, ok bool) {
	if len(card) < 10 || card[8] != '=' {
		return "", "", false
	}
	key = strings.TrimSpace(card[:8])
	rest := card[10:]
	if idx := strings.Index(rest, " / "); idx >= 0 {
		rest = rest[:idx]
	}
	return key, strings.TrimRight(rest, " "), true
}

func quoteString(v string) string {
	escaped := strings.ReplaceAll(v, "'", "''")
	quoted := "'" + escaped + "'"
	if len(quoted) < 10 {
		quoted += spaces(10 - len(quoted))
	}
	return quoted
}

func unquoteString(field string) string {
	field = strings.TrimSpace(field)
	if len(field) >= 2 && field[0] == '\'' && field[len(field)-1] == '\'' {
		field = field[1 : len(field)-1]
		field = strings.ReplaceAll(field, "''", "'")
		return strings.TrimRight(field, " ")
	}
	return field
}

func rightJustify(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return spaces(width-len(s)) + s
}

func formatInt(v int64) string {
	return rightJustify(strconv.FormatInt(v, 10), 20)
}

func formatFloat(v float64, bitSize int) string {
	s := strconv.FormatFloat(v, 'G', -1, bitSize)
	if !strings.ContainsAny(s, ".E") {
		s += "."
	}
	return rightJustify(s, 20)
}

func parseInt(field string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(field), 10, 64)
}

func parseFloat(field string, bitSize int) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(field), bitSize)
}

// emptyDocument renders a well-formed document containing only END, padded
// to size bytes with trailing blank-equivalent filler (spaces), matching the
// original runtime's "first attacher initializes to one card: END".
func emptyDocument(size int) []byte {
	buf := make([]byte, size)
	copy(buf, endCard)
	for i := len(endCard); i < size; i++ {
		buf[i] = ' '
	}
	return buf
}

func validateKey(key string) error {
	if key == "" || len(key) > 8 {
		return fmt.Errorf("status: invalid key %q: must be 1-8 characters", key)
	}
	return nil
}
