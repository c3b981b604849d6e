package rules

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// confusables maps Unicode lookalike characters to their ASCII equivalents.
// Attackers substitute these to slip injection keywords past literal matching
// (e.g. Cyrillic "а" U+0430 for Latin "a").
var confusables = map[rune]rune{
	// Cyrillic lookalikes
	'а': 'a', 'А': 'A',
	'с': 'c', 'С': 'C',
	'е': 'e', 'Е': 'E',
	'і': 'i', 'І': 'I',
	'о': 'o', 'О': 'O',
	'р': 'p', 'Р': 'P',
	'у': 'y', 'У': 'Y',
	'х': 'x', 'Х': 'X',
	'ѕ': 's', 'Ѕ': 'S',
	'ј': 'j', 'Ј': 'J',
	'һ': 'h', 'Һ': 'H',
	'ԁ': 'd',
	'ԛ': 'q',
	'ԝ': 'w',
	// Small capitals
	'ᴀ': 'a', 'ᴄ': 'c', 'ᴅ': 'd', 'ᴇ': 'e', 'ᴍ': 'm', 'ɴ': 'n',
	'ᴏ': 'o', 'ᴘ': 'p', 'ᴛ': 't', 'ᴜ': 'u', 'ᴠ': 'v', 'ᴡ': 'w',
	// Greek lookalikes
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z', 'Η': 'H', 'Ι': 'I',
	'Κ': 'K', 'Μ': 'M', 'Ν': 'N', 'Ο': 'O', 'Ρ': 'P', 'Τ': 'T',
	'Υ': 'Y', 'Χ': 'X',
	'α': 'a', 'β': 'b', 'ε': 'e', 'ι': 'i', 'κ': 'k', 'ν': 'v',
	'ο': 'o', 'ρ': 'p', 'τ': 't', 'υ': 'u', 'χ': 'x',
	// Latin variants
	'ɑ': 'a', 'ɡ': 'g', 'ı': 'i', 'ȷ': 'j', 'ɩ': 'i',
	'ʀ': 'r', 'ʙ': 'b', 'ɢ': 'g', 'ʜ': 'h', 'ʟ': 'l',
	// Letterlike symbols
	'ℓ': 'l', 'ℒ': 'L',
}

// NormalizeText applies NFKC normalization and replaces known confusable
// characters with their ASCII equivalents.
//
// NFKC already folds fullwidth forms, superscripts, subscripts and Roman
// numerals down to ASCII, so the table above only has to cover lookalikes
// from other scripts.
func NormalizeText(text string) string {
	text = norm.NFKC.String(text)
	return strings.Map(func(r rune) rune {
		if repl, ok := confusables[r]; ok {
			return repl
		}
		return r
	}, text)
}
