package analysis

// ExtractOptions bounds a single string extraction.
type ExtractOptions struct {
	MinLength       int  // shortest accepted string
	MaxLength       int  // longest accepted string, terminator excluded
	AllowWhitespace bool // accept \t, \r and \n inside a string
}

func (o ExtractOptions) withDefaults() ExtractOptions {
	if o.MinLength <= 0 {
		o.MinLength = MinStringLength
	}
	if o.MaxLength <= 0 {
		o.MaxLength = MaxStringLength
	}
	if o.MaxLength < o.MinLength {
		o.MaxLength = o.MinLength
	}
	return o
}

// IsPrintable reports whether b may appear inside an extracted string.
func IsPrintable(b byte, allowWhitespace bool) bool {
	if b >= 0x20 && b <= 0x7e {
		return true
	}
	return allowWhitespace && (b == '\t' || b == '\n' || b == '\r')
}

// ExtractString reads a NUL-terminated printable string starting at addr.
// It never reads at or past limit. A non-printable byte, a string longer than
// MaxLength, a string shorter than MinLength, or running into limit before the
// terminator all yield ok == false.
//
// Callers advance by len(s)+1 on success and by one byte otherwise.
func ExtractString(src ByteSource, addr, limit uint64, opts ExtractOptions) (s string, ok bool) {
	opts = opts.withDefaults()

	buf := make([]byte, 0, 32)
	for cur := addr; cur < limit; cur++ {
		b := src.ByteAt(cur)
		if b == 0 {
			if len(buf) < opts.MinLength {
				return "", false
			}
			return string(buf), true
		}
		if !IsPrintable(b, opts.AllowWhitespace) || len(buf) == opts.MaxLength {
			return "", false
		}
		buf = append(buf, b)
	}
	return "", false
}
