package util

// Mark labels pack up to six characters into 32 bits, base 40, first
// character in the lowest digit. Alphabet: NUL, A-Z, 0-9, '.', '-', '/'.

const base40Chars = "\x00ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789.-/"

// Base40ToChar unpacks a base-40 value into its label string.
func Base40ToChar(x uint64) string {
	var b []byte
	for x > 0 {
		c := base40Chars[x%40]
		if c == 0 {
			break
		}
		b = append(b, c)
		x /= 40
	}
	return string(b)
}

// CharToBase40 packs up to six label characters into a base-40 value.
// Lowercase letters pack as their uppercase forms; any other character
// outside the alphabet maps to NUL, which ends the label.
func CharToBase40(s string) uint64 {
	var x uint64
	n := len(s)
	if n > 6 {
		n = 6
	}
	for i := n - 1; i >= 0; i-- {
		x = x*40 + uint64(base40Index(s[i]))
	}
	return x
}

func base40Index(c byte) int {
	switch {
	case 'A' <= c && c <= 'Z':
		return int(c-'A') + 1
	case 'a' <= c && c <= 'z':
		return int(c-'a') + 1
	case '0' <= c && c <= '9':
		return int(c-'0') + 27
	case c == '.':
		return 37
	case c == '-':
		return 38
	case c == '/':
		return 39
	}
	return 0
}
