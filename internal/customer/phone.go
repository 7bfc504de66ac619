package customer

import "strings"

// NormalizePhone 电话号码归一化：去掉所有非数字，超长取后 10 位（美国习惯），
// 恰好 10 位时格式化为 (###) ###-####，否则原样返回数字串。
func NormalizePhone(raw string) string {
	if raw == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	if len(digits) == 10 {
		return "(" + digits[0:3] + ") " + digits[3:6] + "-" + digits[6:10]
	}
	return digits
}
