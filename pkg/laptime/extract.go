package laptime

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// AnchorPhrase marks the best-time block on the result screen ("best time").
const AnchorPhrase = "최단 시간"

var (
	mapNameRE = regexp.MustCompile(`(.+)\n\(.*\)`)
	lapTimeRE = regexp.MustCompile(regexp.QuoteMeta(AnchorPhrase) + `(?s:.*?)(\d{1,2}:\d{2}\.\d{2,3})`)
	// rank marker, number, then a token with at least one non-digit so that a
	// trailing column number is not mistaken for the driver name.
	usernameRE = regexp.MustCompile(`(?:Te|\d+)\s+\d+\s+(\S*[^\s\d]\S*)`)
	grammarRE  = regexp.MustCompile(`^\d{1,2}:\d{2}\.\d{2,3}$`)
)

// Rule is a single field-extraction pattern. Find reports the raw captured
// substring, or false when the pattern does not occur in text.
type Rule struct {
	Name string
	re   *regexp.Regexp
}

// Find returns the first capture group of the rule's pattern.
func (r Rule) Find(text string) (string, bool) {
	m := r.re.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// Rules in application order. The order carries no meaning, each rule only
// reads the text.
var (
	MapNameRule  = Rule{Name: "map_name", re: mapNameRE}
	LapTimeRule  = Rule{Name: "lap_time", re: lapTimeRE}
	UsernameRule = Rule{Name: "username", re: usernameRE}

	Rules = []Rule{MapNameRule, LapTimeRule, UsernameRule}
)

// Match is an optional raw field value.
type Match struct {
	Value string
	Found bool
}

// Fields holds the raw, untrimmed output of the extraction rules.
type Fields struct {
	MapName  Match
	LapTime  Match
	Username Match
}

// Extract applies every rule to the recognized text. A rule that does not
// match leaves its field absent; it never fails the extraction.
func Extract(text string) Fields {
	text = prepareText(text)
	var f Fields
	for _, r := range Rules {
		v, ok := r.Find(text)
		m := Match{Value: v, Found: ok}
		switch r.Name {
		case MapNameRule.Name:
			f.MapName = m
		case LapTimeRule.Name:
			f.LapTime = m
		case UsernameRule.Name:
			f.Username = m
		}
	}
	return f
}

// prepareText folds recognizer output into NFC with LF line endings so the
// Hangul anchor and the line-based rules see a single representation.
func prepareText(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// ValidLapTime reports whether s matches the lap-time grammar M:SS.ff[f].
func ValidLapTime(s string) bool {
	return grammarRE.MatchString(s)
}
