package history

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Normalize приводит текст к канонической форме для дедупликации:
// нижний регистр, пунктуация выброшена, пробельные последовательности схлопнуты.
// Тексты, различающиеся только регистром/пробелами/пунктуацией,
// нормализуются в одну и ту же строку.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			// Пунктуация и прочие символы выбрасываются.
		}
	}

	return strings.TrimRight(b.String(), " ")
}

// HashText возвращает hex-дайджест SHA-256 нормализованного текста.
// Инвариант: равный нормализованный текст даёт равный хэш.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
