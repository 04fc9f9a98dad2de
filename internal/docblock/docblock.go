// Package docblock parses the leading comment of a source file for
// annotations — notably the `@flow` family — and reports the strictness
// metadata the rest of the parsing service gates on.
package docblock

import (
	"bufio"
	"regexp"
	"strings"
)

// FlowAnnotation is the closed set of `@flow` variants a docblock may carry.
type FlowAnnotation uint8

const (
	// OptOut marks a file as explicitly unchecked. Parse never produces it
	// (a missing `@flow` leaves Flow nil); it is only set by an override
	// such as `noflow` forcing this value post-parse via WithFlow.
	OptOut FlowAnnotation = iota
	// OptIn marks a file as checked in weak mode (`@flow`).
	OptIn
	// OptInStrict marks a file as checked in strict mode (`@flow strict`).
	OptInStrict
	// OptInStrictLocal marks a file as checked in local-strict mode
	// (`@flow strict-local`).
	OptInStrictLocal
)

func (f FlowAnnotation) String() string {
	switch f {
	case OptIn:
		return "opt-in"
	case OptInStrict:
		return "opt-in-strict"
	case OptInStrictLocal:
		return "opt-in-strict-local"
	default:
		return "opt-out"
	}
}

// Docblock is the parsed prelude metadata of a source file.
type Docblock struct {
	Flow     *FlowAnnotation // nil means "no @flow annotation present"
	IsStrict bool
}

// WithFlow returns a copy of d with Flow forced to ann. Used to apply the
// `noflow` post-override (§4.3 step 2, §9 "must be applied after docblock
// parsing but before the types-checked gate").
func (d Docblock) WithFlow(ann FlowAnnotation) Docblock {
	d.Flow = &ann
	return d
}

var (
	flowStrictLocalRe = regexp.MustCompile(`^@flow\s+strict-local\b`)
	flowStrictRe      = regexp.MustCompile(`^@flow\s+strict\b`)
	flowRe            = regexp.MustCompile(`^@flow\b`)
)

// Error describes a single malformed docblock directive.
type Error struct {
	Line    int
	Message string
}

func (e Error) Error() string {
	return e.Message
}

// DefaultMaxHeaderTokens bounds how many leading lines of a file are scanned
// for a docblock when Parse is given a non-positive maxHeaderTokens (the
// Reducer's `max_header_tokens` input, §4.5).
const DefaultMaxHeaderTokens = 128

// Parse scans the leading comment of content for `@flow` annotations and
// returns any docblock-level errors plus the resulting Docblock. A file
// with no leading comment, or no `@flow` annotation within it, parses
// successfully to a Docblock with Flow == nil (callers must not assume this
// means OptOut — that distinction matters for types_checked, §4.2).
func Parse(content []byte, maxHeaderTokens int) ([]Error, Docblock) {
	if maxHeaderTokens <= 0 {
		maxHeaderTokens = DefaultMaxHeaderTokens
	}

	block, errs := extractLeadingComment(content, maxHeaderTokens)
	if len(errs) > 0 {
		return errs, Docblock{}
	}
	if block == "" {
		return nil, Docblock{}
	}

	db := Docblock{}
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		line = strings.TrimSpace(line)
		switch {
		case flowStrictLocalRe.MatchString(line):
			ann := OptInStrictLocal
			db.Flow = &ann
			db.IsStrict = true
		case flowStrictRe.MatchString(line):
			ann := OptInStrict
			db.Flow = &ann
			db.IsStrict = true
		case flowRe.MatchString(line):
			ann := OptIn
			db.Flow = &ann
		}
	}
	return nil, db
}

// extractLeadingComment returns the body of the first `/* ... */` or
// contiguous run of `//` lines at the very top of content, scanning at most
// maxLines. Malformed leading block comments (unterminated `/*`) are
// reported as a docblock error rather than silently ignored.
func extractLeadingComment(content []byte, maxLines int) (string, []Error) {
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	for i := 0; i < maxLines && scanner.Scan(); i++ {
		lines = append(lines, scanner.Text())
	}

	joined := strings.Join(lines, "\n")
	trimmed := strings.TrimLeft(joined, " \t\n\r")

	if strings.HasPrefix(trimmed, "/*") {
		end := strings.Index(trimmed, "*/")
		if end == -1 {
			return "", []Error{{Line: 1, Message: "unterminated docblock comment"}}
		}
		return trimmed[2:end], nil
	}

	if strings.HasPrefix(trimmed, "//") {
		var body []string
		for _, l := range strings.Split(trimmed, "\n") {
			l = strings.TrimSpace(l)
			if !strings.HasPrefix(l, "//") {
				break
			}
			body = append(body, strings.TrimPrefix(l, "//"))
		}
		return strings.Join(body, "\n"), nil
	}

	return "", nil
}
