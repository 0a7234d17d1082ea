package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// ResolutionNotFound is stored when a document has no operative part
const ResolutionNotFound = "Резолютивна частина не знайдена"

// UnavailableSentinel is stored when a document could not be downloaded
func UnavailableSentinel(attempts int) string {
	return "Не вдалося завантажити документ (після " + strconv.Itoa(attempts) + " спроб)"
}

// DownloadFailed is stored when a fetch fails with a permanent error,
// a bad URL or a non-timeout HTTP status. Recorded on the first attempt.
const DownloadFailed = "Не вдалося завантажити документ (помилка запиту)"

// IsSentinel reports whether a stored clause is a placeholder rather
// than an actual operative part.
func IsSentinel(clause string) bool {
	return clause == ResolutionNotFound ||
		strings.HasPrefix(clause, "Не вдалося завантажити документ")
}

// Markers that open the operative part of a Ukrainian commercial court
// ruling, in priority order. Spaced spellings occur in scanned documents.
var resolutionMarkers = []string{
	"УХВАЛИВ:",
	"УХВАЛИВ :",
	"У Х В А Л И В :",
	"У Х В А Л И В",
	"У Х В А Л И В:",
	"ПОСТАНОВИВ:",
	"ПОСТАНОВИВ :",
	"П О С Т А Н О В И В :",
	"П О С Т А Н О В И В",
	"П О С Т А Н О В И В:",
	"ВИРІШИВ:",
	"ВИРІШИВ :",
	"В И Р І Ш И В :",
	"В И Р І Ш И В",
	"В И Р І Ш И В:",
}

var resolutionPatterns = func() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(resolutionMarkers))
	for i, marker := range resolutionMarkers {
		patterns[i] = regexp.MustCompile(`(?is)` + regexp.QuoteMeta(marker) + `(.*)`)
	}
	return patterns
}()

var (
	collapseRe  = regexp.MustCompile(`\s+`)
	controlRe   = regexp.MustCompile(`\\[a-zA-Z]+-?\d* ?`)
	hexEscapeRe = regexp.MustCompile(`\\'[0-9a-fA-F]{2}`)
	braceRe     = regexp.MustCompile(`[{}]`)
	sanitizeRe  = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F]")
)

// ExtractResolution finds the operative part of a decision text. The
// second return value is false when no marker matched.
func ExtractResolution(text string) (string, bool) {
	for _, re := range resolutionPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			clause := collapseRe.ReplaceAllString(m[1], " ")
			clause = strings.TrimSpace(clause)
			if clause != "" {
				return clause, true
			}
		}
	}
	return "", false
}

// Sanitize strips NUL bytes and control characters so the clause is
// safe to persist.
func Sanitize(s string) string {
	return sanitizeRe.ReplaceAllString(strings.ReplaceAll(s, "\x00", ""), "")
}

// RTF destination groups whose content is metadata, not document text
var skipDestinations = map[string]bool{
	"fonttbl":    true,
	"colortbl":   true,
	"stylesheet": true,
	"info":       true,
	"pict":       true,
	"themedata":  true,
	"generator":  true,
	"header":     true,
	"footer":     true,
}

// RTFToText converts RTF content to plain text. Court documents carry
// Cyrillic text as cp1251 hex escapes or \u escapes, both are decoded.
// Malformed input falls through to a coarse control-word strip.
func RTFToText(data []byte) string {
	text := parseRTF(data)
	if strings.TrimSpace(text) == "" && len(data) > 0 {
		return stripRTF(data)
	}
	return text
}

func parseRTF(data []byte) string {
	var out strings.Builder
	skipDepth := 0
	depth := 0
	ucSkip := 1

	i := 0
	for i < len(data) {
		c := data[i]
		switch c {
		case '{':
			depth++
			i++
		case '}':
			if skipDepth > 0 && depth <= skipDepth {
				skipDepth = 0
			}
			depth--
			i++
		case '\\':
			i++
			if i >= len(data) {
				return out.String()
			}
			c = data[i]
			switch {
			case c == '\'':
				if i+2 < len(data) {
					if v, err := strconv.ParseUint(string(data[i+1:i+3]), 16, 8); err == nil && skipDepth == 0 {
						out.WriteRune(charmap.Windows1251.DecodeByte(byte(v)))
					}
					i += 3
				} else {
					i = len(data)
				}
			case c == '*':
				// optional destination, skip the whole group
				if skipDepth == 0 {
					skipDepth = depth
				}
				i++
			case !isAlpha(c):
				if skipDepth == 0 {
					switch c {
					case '\\', '{', '}':
						out.WriteByte(c)
					case '~':
						out.WriteByte(' ')
					}
				}
				i++
			default:
				word, param, next := readControlWord(data, i)
				i = next
				switch {
				case skipDestinations[word]:
					if skipDepth == 0 {
						skipDepth = depth
					}
				case word == "par" || word == "line" || word == "row" || word == "sect" || word == "page":
					if skipDepth == 0 {
						out.WriteByte('\n')
					}
				case word == "tab" || word == "cell":
					if skipDepth == 0 {
						out.WriteByte(' ')
					}
				case word == "uc":
					if n, err := strconv.Atoi(param); err == nil && n >= 0 {
						ucSkip = n
					}
				case word == "u":
					if n, err := strconv.Atoi(param); err == nil {
						if n < 0 {
							n += 65536
						}
						if skipDepth == 0 {
							out.WriteRune(rune(n))
						}
					}
					i = skipFallbackChars(data, i, ucSkip)
				}
			}
		case '\r', '\n':
			i++
		default:
			if skipDepth == 0 {
				out.WriteByte(c)
			}
			i++
		}
	}
	return out.String()
}

func readControlWord(data []byte, i int) (word, param string, next int) {
	start := i
	for i < len(data) && isAlpha(data[i]) {
		i++
	}
	word = string(data[start:i])

	numStart := i
	if i < len(data) && (data[i] == '-' || isDigit(data[i])) {
		i++
		for i < len(data) && isDigit(data[i]) {
			i++
		}
	}
	param = string(data[numStart:i])

	// a single space after a control word is its delimiter
	if i < len(data) && data[i] == ' ' {
		i++
	}
	return word, param, i
}

// skipFallbackChars consumes the legacy replacement characters that
// follow a \u escape.
func skipFallbackChars(data []byte, i, n int) int {
	for j := 0; j < n && i < len(data); j++ {
		if data[i] == '\\' && i+1 < len(data) && data[i+1] == '\'' {
			i += 4
		} else {
			i++
		}
	}
	return i
}

// stripRTF is the fallback conversion for documents the parser cannot
// walk. Hex escapes are decoded as cp1251, everything else structural
// is dropped.
func stripRTF(data []byte) string {
	text := hexEscapeRe.ReplaceAllStringFunc(string(data), func(m string) string {
		v, err := strconv.ParseUint(m[2:], 16, 8)
		if err != nil {
			return " "
		}
		return string(charmap.Windows1251.DecodeByte(byte(v)))
	})
	text = controlRe.ReplaceAllString(text, " ")
	text = braceRe.ReplaceAllString(text, "")
	return collapseRe.ReplaceAllString(text, " ")
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
