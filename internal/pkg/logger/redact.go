package logger

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// redactPIIValue masks subscriber identity. Values under email or
// subscriber keys are masked whole; anything else only has embedded
// addresses masked (click URLs carry them in query strings).
func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "email"):
		return RedactEmail(val)
	case strings.Contains(key, "subscriber"):
		return RedactSubscriberKey(val)
	}
	return emailPattern.ReplaceAllStringFunc(val, RedactEmail)
}

// RedactEmail keeps the first two characters of the local part:
// "maria.lopez@mifarma.pe" becomes "ma***@mifarma.pe". Local parts of two
// characters or less are masked entirely.
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

// RedactSubscriberKey masks a Marketing Cloud subscriber key. Keys that are
// addresses go through RedactEmail; opaque keys keep their last four
// characters.
func RedactSubscriberKey(key string) string {
	if strings.Contains(key, "@") {
		return RedactEmail(key)
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
