// Package header pulls the Subject and From values out of a message header
// without parsing the rest of the message.
package header

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Want selects the fields to extract.
type Want uint8

const (
	Subject Want = 1 << iota
	From

	None Want = 0
	Both      = Subject | From
)

func (w Want) Has(field Want) bool {
	return w&field != 0
}

// Result holds the extracted values. A field is only set when its Has flag is true.
type Result struct {
	Subject    string
	From       string
	HasSubject bool
	HasFrom    bool
}

const (
	subjectPrefix = "Subject: "
	fromPrefix    = "From: "
)

type state int

const (
	stateHeader state = iota
	stateSubject
	stateFrom
)

// Extract reads the header fields named by want from the message at path.
// An unreadable file yields an empty Result.
func Extract(path string, want Want) Result {
	if want == None {
		return Result{}
	}
	f, err := os.Open(path)
	if err != nil {
		return Result{}
	}
	defer f.Close()
	return Scan(f, want)
}

// Scan processes r line by line until every wanted field is complete or the
// input ends. Folded continuation lines are appended verbatim, so
// "Subject: a\n b\n" yields "a b". The first occurrence of a field wins.
//
// There is no header/body boundary detection: a missing field is searched for
// until EOF.
func Scan(r io.Reader, want Want) Result {
	var (
		res   Result
		value strings.Builder
		st    = stateHeader
	)

	pending := func() Want {
		var w Want
		if want.Has(Subject) && !res.HasSubject {
			w |= Subject
		}
		if want.Has(From) && !res.HasFrom {
			w |= From
		}
		return w
	}

	finish := func() {
		switch st {
		case stateSubject:
			res.Subject, res.HasSubject = value.String(), true
		case stateFrom:
			res.From, res.HasFrom = value.String(), true
		}
		value.Reset()
		st = stateHeader
	}

	br := bufio.NewReader(r)
	for pending() != None {
		line, err := br.ReadString('\n')
		if line == "" && err != nil {
			break
		}
		line = trimEOL(line)

		for {
			if st != stateHeader {
				if isContinuation(line) {
					value.WriteString(line)
					break
				}
				// The fold ended; look at the same line again as a header.
				finish()
				if pending() == None {
					return res
				}
				continue
			}

			w := pending()
			switch {
			case w.Has(Subject) && strings.HasPrefix(line, subjectPrefix):
				value.WriteString(line[len(subjectPrefix):])
				st = stateSubject
			case w.Has(From) && strings.HasPrefix(line, fromPrefix):
				value.WriteString(line[len(fromPrefix):])
				st = stateFrom
			}
			break
		}

		if err != nil {
			break
		}
	}

	finish()
	return res
}

func isContinuation(line string) bool {
	return line != "" && (line[0] == ' ' || line[0] == '\t')
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
