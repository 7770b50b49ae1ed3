package source

import "strings"

// defaultCountryCode is assumed for bare 10-digit numbers.
const defaultCountryCode = "+1"

// NormalizePhone reduces a phone number to canonical +<countrycode><digits>
// form: all non-digit characters are stripped, and a bare 10-digit number is
// assumed to be local. Anything else keeps its digits verbatim behind a +.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 10 {
		return defaultCountryCode + digits
	}
	return "+" + digits
}

// isImageFilename reports whether a filename looks like a receipt photo.
func isImageFilename(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".heic", ".heif"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// mimeTypeFor derives a MIME type from the attachment's file extension.
func mimeTypeFor(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".heic"):
		return "image/heic"
	case strings.HasSuffix(lower, ".heif"):
		return "image/heif"
	default:
		return "image/jpeg"
	}
}
