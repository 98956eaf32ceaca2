package newline

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Well-known newline sequences.
const (
	LF   = "\n"
	CRLF = "\r\n"
	CR   = "\r"
)

const (
	cr = '\r'
	lf = '\n'
)

// Native returns the newline used by text files on the host platform.
func Native() string {
	if runtime.GOOS == "windows" {
		return CRLF
	}
	return LF
}

// Kind identifies which form a single newline occurrence took in the input.
type Kind int

const (
	KindLF     Kind = iota // "\n"
	KindCRLF               // "\r\n"
	KindCR                 // lone "\r"
	KindCRCRLF             // "\r\r\n", a common corruption of CRLF
)

func (k Kind) String() string {
	switch k {
	case KindLF:
		return "lf"
	case KindCRLF:
		return "crlf"
	case KindCR:
		return "cr"
	case KindCRCRLF:
		return "crcrlf"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// next finds the first newline occurrence in b at or after i.
// It returns the start offset, the length in bytes and the kind, or start -1 when
// there is none. Matching follows `\r{1,2}\n|\r|\n`.
func next(b []byte, i int) (start, n int, kind Kind) {
	for ; i < len(b); i++ {
		switch b[i] {
		case lf:
			return i, 1, KindLF
		case cr:
			if i+1 < len(b) && b[i+1] == lf {
				return i, 2, KindCRLF
			}
			if i+2 < len(b) && b[i+1] == cr && b[i+2] == lf {
				return i, 3, KindCRCRLF
			}
			return i, 1, KindCR
		}
	}
	return -1, 0, 0
}

// Normalize replaces every newline occurrence in content with target.
// The input is never modified; the returned slice is always a fresh copy.
func Normalize(content []byte, target string) []byte {
	var buf bytes.Buffer
	buf.Grow(len(content))

	i := 0
	for {
		start, n, _ := next(content, i)
		if start < 0 {
			break
		}
		buf.Write(content[i:start])
		buf.WriteString(target)
		i = start + n
	}
	buf.Write(content[i:])
	return buf.Bytes()
}

// IsNormalized reports whether content already uses target for every newline.
func IsNormalized(content []byte, target string) bool {
	return bytes.Equal(Normalize(content, target), content)
}

// Counts tallies newline occurrences by kind.
type Counts struct {
	LF     int
	CRLF   int
	CR     int
	CRCRLF int
}

// Count scans content with the same rule Normalize uses.
func Count(content []byte) Counts {
	var c Counts
	i := 0
	for {
		start, n, kind := next(content, i)
		if start < 0 {
			return c
		}
		switch kind {
		case KindLF:
			c.LF++
		case KindCRLF:
			c.CRLF++
		case KindCR:
			c.CR++
		case KindCRCRLF:
			c.CRCRLF++
		}
		i = start + n
	}
}

// Total is the number of newline occurrences.
func (c Counts) Total() int {
	return c.LF + c.CRLF + c.CR + c.CRCRLF
}

// Mixed reports whether more than one kind of newline was seen.
func (c Counts) Mixed() bool {
	kinds := 0
	for _, n := range []int{c.LF, c.CRLF, c.CR, c.CRCRLF} {
		if n > 0 {
			kinds++
		}
	}
	return kinds > 1
}

func (c Counts) String() string {
	return fmt.Sprintf("lf=%d crlf=%d cr=%d crcrlf=%d", c.LF, c.CRLF, c.CR, c.CRCRLF)
}

// Valid reports whether s can be used as a target newline: it must be exactly
// one newline occurrence (lf, cr, crlf or crcrlf), so that normalized content
// reads back as the same newlines.
func Valid(s string) bool {
	start, n, _ := next([]byte(s), 0)
	return start == 0 && n == len(s)
}

// Parse resolves a newline given by name (lf, crlf, cr, native/auto) or as an
// escaped literal such as `\r\n`. An empty name resolves to the native newline.
func Parse(name string) (string, error) {
	s, err := resolve(name)
	if err != nil {
		return "", err
	}
	if !Valid(s) {
		return "", fmt.Errorf("unknown newline %q: must be one of lf, cr, crlf or \\r\\r\\n", name)
	}
	return s, nil
}

func resolve(name string) (string, error) {
	if name != "" && strings.Trim(name, "\r\n") == "" {
		return name, nil
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "native", "auto", "system":
		return Native(), nil
	case "lf", "unix", "\\n":
		return LF, nil
	case "crlf", "dos", "windows", "\\r\\n":
		return CRLF, nil
	case "cr", "mac", "\\r":
		return CR, nil
	}

	s, err := strconv.Unquote(`"` + name + `"`)
	if err != nil {
		return "", fmt.Errorf("unknown newline %q: %w", name, err)
	}
	if s == "" || strings.Trim(s, "\r\n") != "" {
		return "", fmt.Errorf("unknown newline %q: must consist of CR and LF characters", name)
	}
	return s, nil
}

// Name returns the conventional name of a newline sequence, or its quoted form.
func Name(s string) string {
	switch s {
	case LF:
		return "lf"
	case CRLF:
		return "crlf"
	case CR:
		return "cr"
	}
	return strconv.Quote(s)
}
