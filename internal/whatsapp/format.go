package whatsapp

import (
	"regexp"
	"strings"
)

var (
	bracketed = regexp.MustCompile(`\[.*?\]`)
	boldMD    = regexp.MustCompile(`\*\*(.*?)\*\*`)
	uaeMobile = regexp.MustCompile(`^\+9715\d{8}$`)
)

// FormatText prepares a model reply for WhatsApp: leftover bracketed
// fragments are removed and Markdown bold becomes WhatsApp bold.
func FormatText(text string) string {
	text = strings.TrimSpace(bracketed.ReplaceAllString(text, ""))
	return boldMD.ReplaceAllString(text, "*$1*")
}

// ValidUAEMobile reports whether number is a +9715XXXXXXXX mobile number.
func ValidUAEMobile(number string) bool {
	return uaeMobile.MatchString(strings.TrimSpace(number))
}

// Recipient converts a +-prefixed number to the digits-only form the Graph
// API and webhooks use.
func Recipient(number string) string {
	return strings.TrimPrefix(strings.TrimSpace(number), "+")
}
