package tracing

import (
	"strings"
)

// 各类span属性与日志预览的长度上限
const (
	// MaxQdrantLength 向量分块内容预览最大长度
	MaxQdrantLength = 100

	// MaxResumeLength 简历文本预览最大长度
	MaxResumeLength = 150

	// MaxJDLength 岗位描述预览最大长度
	MaxJDLength = 150
)

// piiKeywords 属性名中出现这些关键字时，值整体按敏感信息掩码
var piiKeywords = []string{
	"email", "phone", "password", "secret", "token",
	"id_card", "身份证", "address", "地址",
	"name", "姓名", "age", "年龄",
}

// SafeAttributeValue 处理即将写入span的属性值：
// 属性名命中敏感关键字时掩码，否则按maxLength截断
func SafeAttributeValue(name string, value string, maxLength int) string {
	lowerName := strings.ToLower(name)
	for _, keyword := range piiKeywords {
		if strings.Contains(lowerName, keyword) {
			return MaskPII(value)
		}
	}
	return TruncateString(value, maxLength)
}

// MaskPII 掩码个人敏感信息，只保留首尾少量字符。
// "张三" -> "张*"，"王小明" -> "王*明"，"13812345678" -> "13*******78"
func MaskPII(value string) string {
	runes := []rune(value)
	switch n := len(runes); {
	case n == 0:
		return ""
	case n == 1:
		return "*"
	case n == 2:
		return string(runes[:1]) + "*"
	case n <= 4:
		return string(runes[:1]) + strings.Repeat("*", n-2) + string(runes[n-1:])
	default:
		return string(runes[:2]) + strings.Repeat("*", n-4) + string(runes[n-2:])
	}
}

// TruncateString 按rune数截断，保留首尾、中间替换为省略号
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeResumeContent 简历文本的日志预览
func SafeResumeContent(content string) string {
	return TruncateString(content, MaxResumeLength)
}

// SafeJDContent 岗位描述的日志预览
func SafeJDContent(content string) string {
	return TruncateString(content, MaxJDLength)
}
