package fetch

import (
	"fmt"
	"regexp"
	"strings"
)

const expectedSerials = 2

var serialLine = regexp.MustCompile(`Serial Number: (.*)`)

// ParseError reports an artifact that did not contain exactly two serial
// number lines.
type ParseError struct {
	Matches int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("fetch: expected %d serial numbers in the info file, found %d", expectedSerials, e.Matches)
}

// ParseSerials extracts the head and body serial numbers from a hardware
// report.
//
// The report lists the debug module first and the attached debug cable
// second, so the first match is the body and the second is the head.
func ParseSerials(text string) (Serials, error) {
	matches := serialLine.FindAllStringSubmatch(text, -1)
	if len(matches) != expectedSerials {
		return Serials{}, &ParseError{Matches: len(matches)}
	}
	return Serials{
		Head: strings.TrimSpace(matches[1][1]),
		Body: strings.TrimSpace(matches[0][1]),
	}, nil
}
