package model

import (
	"fmt"
	"strings"
)

// Status is the user-facing state of a feed.
type Status int

const (
	StatusNormal Status = iota
	StatusHasNewMessages
	StatusNetworkError
	StatusParsingError
	StatusOtherError
)

var statusNames = map[Status]string{
	StatusNormal:         "normal",
	StatusHasNewMessages: "new-messages",
	StatusNetworkError:   "network-error",
	StatusParsingError:   "parsing-error",
	StatusOtherError:     "other-error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsError reports whether the status came from a failed fetch.
func (s Status) IsError() bool {
	return s == StatusNetworkError || s == StatusParsingError || s == StatusOtherError
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus converts a status name back to its value.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == strings.ToLower(strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return StatusNormal, fmt.Errorf("unknown status %q", name)
}

// AutoUpdateMode selects which interval drives a feed's background refresh.
type AutoUpdateMode int

const (
	AutoUpdateDisabled AutoUpdateMode = iota
	AutoUpdateGlobal
	AutoUpdateOwn
)

var modeNames = map[AutoUpdateMode]string{
	AutoUpdateDisabled: "disabled",
	AutoUpdateGlobal:   "global",
	AutoUpdateOwn:      "own",
}

func (m AutoUpdateMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// MarshalText encodes the mode by name.
func (m AutoUpdateMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *AutoUpdateMode) UnmarshalText(text []byte) error {
	parsed, err := ParseAutoUpdateMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseAutoUpdateMode converts a mode name back to its value.
func ParseAutoUpdateMode(name string) (AutoUpdateMode, error) {
	for m, n := range modeNames {
		if n == strings.ToLower(strings.TrimSpace(name)) {
			return m, nil
		}
	}
	return AutoUpdateDisabled, fmt.Errorf("unknown auto-update mode %q", name)
}

// ErrorKind classifies a failed pipeline run.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorNetwork
	ErrorParsing
	ErrorOther
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "none"
	case ErrorNetwork:
		return "network"
	case ErrorParsing:
		return "parsing"
	case ErrorOther:
		return "other"
	}
	return fmt.Sprintf("error-kind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Status maps a failure class to the feed status it produces.
func (k ErrorKind) Status() Status {
	switch k {
	case ErrorNetwork:
		return StatusNetworkError
	case ErrorParsing:
		return StatusParsingError
	case ErrorOther:
		return StatusOtherError
	}
	return StatusNormal
}
