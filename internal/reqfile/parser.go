package reqfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/frederic-klein/reqinstall/internal/dist"
	"github.com/frederic-klein/reqinstall/internal/reqerr"
)

// Parser validates requirements files of pinned "name==version" lines.
type Parser struct{}

// NewParser creates a new requirements file parser.
func NewParser() *Parser {
	return &Parser{}
}

// maxLineSize bounds a single line. Longer lines are format errors.
const maxLineSize = 1024 * 1024

var requirementRe = regexp.MustCompile(`^([^=\s]+)==(\d+(?:\.\d+)*)\s*$`)

// ParseLine classifies a single line. It returns ok=false for blank and
// comment lines, and a format error carrying lineNo for anything that is not
// an exact pin.
func ParseLine(line string, lineNo int) (req dist.Requirement, ok bool, err error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return dist.Requirement{}, false, nil
	}

	matches := requirementRe.FindStringSubmatch(line)
	if matches == nil {
		return dist.Requirement{}, false, reqerr.InvalidFormat(lineNo)
	}
	return dist.Requirement{Name: matches[1], Version: matches[2]}, true, nil
}

// Validate reads r top to bottom and returns its requirements in file order.
// It stops at the first malformed line or repeated package name.
func (p *Parser) Validate(r io.Reader) ([]dist.Requirement, error) {
	var reqs []dist.Requirement
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++

		req, ok, err := ParseLine(scanner.Text(), lineNo)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if seen[req.Name] {
			return nil, reqerr.RepeatedRequirement(req.Name)
		}
		seen[req.Name] = true
		reqs = append(reqs, req)
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, reqerr.InvalidFormat(lineNo + 1)
		}
		return nil, fmt.Errorf("reading requirements: %w", err)
	}

	return reqs, nil
}

// Parse validates the requirements file at path.
func (p *Parser) Parse(path string) ([]dist.Requirement, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening requirements file: %w", err)
	}
	defer file.Close()

	return p.Validate(file)
}
