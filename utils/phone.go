package utils

import "strings"

// 巴西号码规则：国家码 55 + DDD 两位 + 本地号 8~9 位。
// 手机号在 DDD 后带一个 9 前缀（共 11 位国内号），固话 10 位。
const (
	countryCode    = "55"
	minLocalDigits = 10 // DDD + 8 位本地号，低于此长度视为不可投递
)

// Normalize 将任意格式的手机号输入规整为可投递的国际格式（纯数字，55 开头）。
// 纯函数，幂等。过短的输入原样返回，由调用方按 IsDeliverable 判定并落 SKIPPED。
func Normalize(raw string) string {
	digits := stripNonDigits(raw)

	// 去掉拨号 trunk 前缀 0（含 "00" 国际直拨写法）
	digits = strings.TrimLeft(digits, "0")

	// 已带国家码且国内段长度合理，原样接受
	if len(digits) >= len(countryCode)+minLocalDigits && strings.HasPrefix(digits, countryCode) {
		return countryCode + collapseDoubledNine(digits[len(countryCode):])
	}

	if len(digits) < minLocalDigits {
		return digits
	}

	return countryCode + collapseDoubledNine(digits)
}

// IsDeliverable 判断归一化后的号码是否达到最小可投递长度。
func IsDeliverable(normalized string) bool {
	if len(normalized) < len(countryCode)+minLocalDigits {
		return false
	}
	return stripNonDigits(normalized) == normalized
}

// collapseDoubledNine 修正录入时重复敲了手机 9 前缀的已知脏数据：
// 国内段 12 位且 DDD 后紧跟 "99" 时，去掉多余的一个 9。
// 纯长度/位置判断，不做猜测。
func collapseDoubledNine(national string) string {
	if len(national) == 12 && national[2] == '9' && national[3] == '9' {
		return national[:2] + national[3:]
	}
	return national
}

func stripNonDigits(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
