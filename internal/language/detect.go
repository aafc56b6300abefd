// Package language detects Arabic and Persian text by script analysis and
// reconciles the result with frontmatter declarations.
//
// Detection is deliberately narrow: it only distinguishes Arabic-script
// languages from everything else. Latin-script languages all come back as
// English, so a frontmatter tag is the only way to declare them.
package language

import "unicode"

const (
	// arabicThreshold is the fraction of non-whitespace runes that must be
	// Arabic-script before a document counts as Arabic.
	arabicThreshold = 0.20

	// farsiThreshold is the fraction of Arabic-script runes that must be
	// Persian-specific letters before Arabic is reclassified as Farsi.
	farsiThreshold = 0.10
)

// farsiLetters are the letters Persian added to the Arabic alphabet.
// Their presence above farsiThreshold separates fa from ar.
var farsiLetters = map[rune]bool{
	'پ': true, // peh
	'چ': true, // tcheh
	'ژ': true, // jeh
	'گ': true, // gaf
	'ی': true, // farsi yeh
}

// isArabicScript reports whether r falls in one of the Arabic Unicode
// blocks, including the supplement and presentation forms.
func isArabicScript(r rune) bool {
	switch {
	case r >= 0x0600 && r <= 0x06FF:
		return true
	case r >= 0x0750 && r <= 0x077F:
		return true
	case r >= 0xFB50 && r <= 0xFDFF:
		return true
	case r >= 0xFE70 && r <= 0xFEFF:
		return true
	}
	return false
}

// Detect classifies text by script. It returns the ISO code ("ar", "fa" or
// "en") and whether the text is right-to-left.
func Detect(text string) (string, bool) {
	var total, arabic, farsi int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isArabicScript(r) {
			arabic++
			if farsiLetters[r] {
				farsi++
			}
		}
	}
	if total == 0 {
		return "en", false
	}
	if float64(arabic)/float64(total) < arabicThreshold {
		return "en", false
	}
	if float64(farsi) > farsiThreshold*float64(arabic) {
		return "fa", true
	}
	return "ar", true
}

// Resolve reconciles a frontmatter language tag with the detected language.
// Script detection wins for non-English results: the corpus carries legacy
// files tagged "en" whose bodies are Arabic or Persian. A detected "en"
// defers to the frontmatter, which may legitimately name a Latin-script
// language the detector cannot see.
func Resolve(frontmatter, detected string) string {
	if detected != "" && detected != "en" {
		return detected
	}
	if frontmatter != "" {
		return frontmatter
	}
	return "en"
}

// IsRTL reports whether a language code is written right to left.
func IsRTL(code string) bool {
	switch code {
	case "ar", "fa", "ur", "he":
		return true
	}
	return false
}
