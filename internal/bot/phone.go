package bot

import (
	"fmt"
	"strings"
	"unicode"
)

// normalizePhone приводит российский номер к виду 7XXXXXXXXXX. Пустая строка если номер не распознан.
func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 11 && digits[0] == '8':
		return "7" + digits[1:]
	case len(digits) == 11 && digits[0] == '7':
		return digits
	case len(digits) == 10:
		return "7" + digits
	default:
		return ""
	}
}

func formatPhoneForDisplay(digits string) string {
	if len(digits) != 11 {
		return "+" + digits
	}
	return fmt.Sprintf("+7 (%s) %s-%s-%s", digits[1:4], digits[4:7], digits[7:9], digits[9:11])
}
