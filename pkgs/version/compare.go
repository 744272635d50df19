package version

// Compare orders two version strings the way GNU strverscmp does: runs of
// digits compare numerically, everything else compares per character with
// letters before punctuation and '~' before the end of the string.
// It returns -1 if a < b, 0 if a == b and 1 if a > b.
func Compare(a, b string) int {
	for a != "" || b != "" {
		for (a != "" && !isDigit(a[0])) || (b != "" && !isDigit(b[0])) {
			oa, ob := order(head(a)), order(head(b))
			if oa != ob {
				return sign(oa - ob)
			}
			a, b = tail(a), tail(b)
		}

		a, b = trimZeros(a), trimZeros(b)

		diff := 0
		for a != "" && b != "" && isDigit(a[0]) && isDigit(b[0]) {
			if diff == 0 {
				diff = int(a[0]) - int(b[0])
			}
			a, b = a[1:], b[1:]
		}
		// the longer run of digits is the bigger number
		if a != "" && isDigit(a[0]) {
			return 1
		}
		if b != "" && isDigit(b[0]) {
			return -1
		}
		if diff != 0 {
			return sign(diff)
		}
	}
	return 0
}

// Less reports whether version a orders before version b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// order returns the sort weight of c.
// digits and the end of string weigh 0, letters their ASCII value,
// '~' sorts before everything and other bytes after all letters.
func order(c byte) int {
	switch {
	case isDigit(c), c == 0:
		return 0
	case isAlpha(c):
		return int(c)
	case c == '~':
		return -1
	default:
		return int(c) + 256
	}
}

func head(s string) byte {
	if s == "" {
		return 0
	}
	return s[0]
}

func tail(s string) string {
	if s == "" {
		return s
	}
	return s[1:]
}

func trimZeros(s string) string {
	for s != "" && s[0] == '0' {
		s = s[1:]
	}
	return s
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
