// Package redact removes credentials and other sensitive fragments from
// strings before they are logged, returned in error responses, or written to
// a task record's error message. Provider errors frequently echo signed
// artifact URLs and authorization headers back to the caller.
package redact

import (
	"regexp"
)

// Constants for redaction placeholders
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedSignaturePlaceholder  = "[REDACTED_SIGNATURE]"
)

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Rules run in order. Earlier rules may rewrite text later rules would otherwise match.
var rules = []rule{
	// Database connection strings: keep the scheme, drop user info.
	{regexp.MustCompile(`(?i)\b(postgres(?:ql)?|mysql|mongodb|redis)://[^@\s]+@`), "${1}://" + RedactedCredentialPlaceholder + "@"},

	// Signed URL query parameters (GCS V4, S3 SigV4, generic sig/token params).
	{regexp.MustCompile(`(?i)([?&](?:x-goog-signature|x-goog-credential|x-amz-signature|x-amz-credential|x-amz-security-token|signature|sig|token|access_token|key)=)[^&\s"']+`), "${1}" + RedactedSignaturePlaceholder},

	// Authorization headers.
	{regexp.MustCompile(`(?i)\b(bearer|basic)\s+[A-Za-z0-9_\-.~+/=]{8,}`), "${1} " + RedactedCredentialPlaceholder},

	// JWTs: three base64url segments.
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), "[REDACTED_JWT]"},

	// key=value style secrets.
	{regexp.MustCompile(`(?i)\b(password|passwd|pwd)([=:\s]+['"]?)[^'"&\s]{3,}`), "${1}${2}" + RedactedCredentialPlaceholder},
	{regexp.MustCompile(`(?i)\b(api[_-]?key|secret|client[_-]?secret)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`), "${1}${2}" + RedactedKeyPlaceholder},

	// AWS access key ids and Google API keys.
	{regexp.MustCompile(`\bAKIA[A-Z0-9]{12,}\b`), RedactedKeyPlaceholder},
	{regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{30,}\b`), RedactedKeyPlaceholder},

	// Local file paths outside URLs.
	{regexp.MustCompile(`(?:^|\s)(/(?:home|root|var|etc|tmp|Users|opt)(?:/[\w.-]+)+)`), " " + RedactedPathPlaceholder},

	// Goroutine dumps.
	{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), "[STACK_TRACE_REDACTED]"},

	// SQL fragments from driver errors.
	{regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE)\b[\s\w,*()$.]+\b(FROM|INTO|SET)\b[\s\w,*()$='".]*`), "[REDACTED_SQL]"},
}

// String redacts sensitive information from the input string
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.re.ReplaceAllString(result, r.replacement)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}

	return String(err.Error())
}
