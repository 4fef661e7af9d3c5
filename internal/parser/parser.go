// Package parser turns raw weather data lines into typed readings.
//
// A line holds four tab-separated fields:
//
//	YYYYMMDD <tab> max temp <tab> min temp <tab> precipitation
//
// Numeric fields are integers in tenths of a unit; -9999 means missing and
// is returned as-is.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"wxdata/internal/models"
)

const dateLayout = "20060102"

const fieldCount = 4

// MaxLineLength is the longest line the Scanner will parse. Longer lines are
// consumed and reported as ErrLineTooLong.
const MaxLineLength = 64 * 1024

// quoted lines in errors are cut to this many bytes
const maxQuotedLine = 80

var (
	// ErrMalformedLine is wrapped by every ParseError.
	ErrMalformedLine = errors.New("malformed line")

	ErrLineTooLong = fmt.Errorf("line exceeds %d bytes", MaxLineLength)
)

// ParseError identifies a line that could not be parsed.
type ParseError struct {
	File       string
	LineNumber int
	Line       string
	Field      string
	Err        error
}

func (e *ParseError) Error() string {
	var loc string
	switch {
	case e.File != "" && e.LineNumber > 0:
		loc = fmt.Sprintf("%s:%d: ", e.File, e.LineNumber)
	case e.LineNumber > 0:
		loc = fmt.Sprintf("line %d: ", e.LineNumber)
	}

	msg := loc + "malformed line"
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	msg += fmt.Sprintf(" %q", e.Line)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedLine}
	}
	return []error{ErrMalformedLine, e.Err}
}

// IsTransient returns false; a malformed line stays malformed.
func (e *ParseError) IsTransient() bool {
	return false
}

// ParseLine parses a single line of weather data.
func ParseLine(line string) (models.Reading, error) {
	line = strings.TrimSpace(line)
	parts := strings.Split(line, "\t")
	if len(parts) != fieldCount {
		return models.Reading{}, &ParseError{
			Line: line,
			Err:  fmt.Errorf("expected %d fields, got %d", fieldCount, len(parts)),
		}
	}

	date, err := time.Parse(dateLayout, strings.TrimSpace(parts[0]))
	if err != nil {
		return models.Reading{}, &ParseError{Line: line, Field: "date", Err: err}
	}

	var values [3]int
	for i, name := range [3]string{"max_temperature", "min_temperature", "precipitation"} {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i+1]))
		if err != nil {
			return models.Reading{}, &ParseError{Line: line, Field: name, Err: err}
		}
		values[i] = v
	}

	return models.Reading{
		Date:           date,
		MaxTemperature: values[0],
		MinTemperature: values[1],
		Precipitation:  values[2],
	}, nil
}

// Scanner reads readings line by line from an io.Reader. Blank lines are
// skipped but still counted for line numbers.
type Scanner struct {
	r       *bufio.Reader
	file    string
	lineNo  int
	reading models.Reading
	err     error
	readErr error
}

// NewScanner returns a Scanner over r. file is only used to annotate
// parse errors.
func NewScanner(r io.Reader, file string) *Scanner {
	return &Scanner{r: bufio.NewReader(r), file: file}
}

// Scan advances to the next non-blank line. It returns false at EOF or on a
// read error; see Err. A line over MaxLineLength is returned as a
// ParseError and scanning continues after it.
func (s *Scanner) Scan() bool {
	for {
		text, tooLong, err := s.readLine()
		if err != nil {
			if err != io.EOF {
				s.readErr = err
			}
			return false
		}
		s.lineNo++

		if tooLong {
			if len(text) > maxQuotedLine {
				text = text[:maxQuotedLine]
			}
			s.reading = models.Reading{}
			s.err = &ParseError{
				File:       s.file,
				LineNumber: s.lineNo,
				Line:       text + "...",
				Err:        ErrLineTooLong,
			}
			return true
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		s.reading, s.err = ParseLine(text)
		var pe *ParseError
		if errors.As(s.err, &pe) {
			pe.File = s.file
			pe.LineNumber = s.lineNo
		}
		return true
	}
}

// readLine returns the next line without its terminator. Bytes past
// MaxLineLength are discarded and tooLong is set.
func (s *Scanner) readLine() (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, isPrefix, err := s.r.ReadLine()
		if err != nil {
			if err == io.EOF && (len(buf) > 0 || tooLong) {
				return string(buf), tooLong, nil
			}
			return "", false, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > MaxLineLength {
				tooLong = true
				if n := maxQuotedLine - len(buf); n > 0 {
					buf = append(buf, chunk[:min(n, len(chunk))]...)
				}
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

// Reading returns the last parsed reading and its parse error, if any.
func (s *Scanner) Reading() (models.Reading, error) {
	return s.reading, s.err
}

// LineNumber is the 1-based number of the current line.
func (s *Scanner) LineNumber() int {
	return s.lineNo
}

// Err returns the first non-EOF read error.
func (s *Scanner) Err() error {
	return s.readErr
}
