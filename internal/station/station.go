// Package station decides which weather station a data file belongs to.
package station

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Strategy names accepted by New.
const (
	StrategyFilename = "filename"
	StrategyHashed   = "hashed"
	StrategyFixed    = "fixed"
)

// DefaultCodes is the station set used by the hashed strategy when none is
// configured.
var DefaultCodes = []string{"NE", "IA", "IL", "IN", "OH"}

// ErrUnidentified is returned when no station can be derived for a file.
var ErrUnidentified = errors.New("station could not be identified")

// Identity names a station and its two-letter region.
type Identity struct {
	Code  string
	State string
}

// Identifier maps a data file to a station identity.
type Identifier interface {
	Identify(path string) (Identity, error)
}

// Options configures New.
type Options struct {
	Strategy string
	Codes    []string
	Code     string
	State    string
}

// New builds the Identifier named by opts.Strategy.
func New(opts Options) (Identifier, error) {
	switch opts.Strategy {
	case "", StrategyFilename:
		return FilenameIdentifier{}, nil
	case StrategyHashed:
		codes := opts.Codes
		if len(codes) == 0 {
			codes = DefaultCodes
		}
		return NewHashedIdentifier(codes)
	case StrategyFixed:
		return NewFixedIdentifier(opts.Code, opts.State)
	default:
		return nil, fmt.Errorf("unknown station strategy %q", opts.Strategy)
	}
}

// FilenameIdentifier uses the file name without extensions as the station
// code, e.g. USC00110072.txt.gz -> USC00110072.
type FilenameIdentifier struct{}

// Identify implements Identifier.
func (FilenameIdentifier) Identify(path string) (Identity, error) {
	base := filepath.Base(path)
	code := base
	if i := strings.IndexByte(base, '.'); i >= 0 {
		code = base[:i]
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Identity{}, fmt.Errorf("%w: empty file name stem in %q", ErrUnidentified, path)
	}
	return Identity{Code: code, State: stateFromCode(code)}, nil
}

func stateFromCode(code string) string {
	if len(code) >= 2 {
		return strings.ToUpper(code[:2])
	}
	return "XX"
}

// HashedIdentifier assigns each file one code from a fixed set, chosen by
// hashing the file's base name. The same name always gets the same code.
type HashedIdentifier struct {
	codes []string
}

// NewHashedIdentifier validates codes and returns the identifier.
func NewHashedIdentifier(codes []string) (*HashedIdentifier, error) {
	clean := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if len(c) < 2 {
			return nil, fmt.Errorf("station code %q is shorter than a region code", c)
		}
		clean = append(clean, c)
	}
	if len(clean) == 0 {
		return nil, errors.New("hashed station strategy needs at least one code")
	}
	return &HashedIdentifier{codes: clean}, nil
}

// Identify implements Identifier.
func (h *HashedIdentifier) Identify(path string) (Identity, error) {
	base := filepath.Base(path)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return Identity{}, fmt.Errorf("%w: no file name in %q", ErrUnidentified, path)
	}
	code := h.codes[xxhash.Sum64String(base)%uint64(len(h.codes))]
	return Identity{Code: code, State: stateFromCode(code)}, nil
}

// FixedIdentifier maps every file to the same station.
type FixedIdentifier struct {
	id Identity
}

// NewFixedIdentifier returns an identifier for code. An empty state is
// derived from the code.
func NewFixedIdentifier(code, state string) (*FixedIdentifier, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("fixed station strategy needs a station code")
	}
	if state == "" {
		state = stateFromCode(code)
	}
	if len(state) != 2 {
		return nil, fmt.Errorf("state %q must be a two-letter code", state)
	}
	return &FixedIdentifier{id: Identity{Code: code, State: strings.ToUpper(state)}}, nil
}

// Identify implements Identifier.
func (f *FixedIdentifier) Identify(string) (Identity, error) {
	return f.id, nil
}
