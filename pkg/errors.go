package s800

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPacket = errors.New("malformed packet")
	ErrDecode          = errors.New("decode error")
	ErrMapNotLoaded    = errors.New("inverse map not loaded")
	ErrOrderExceeded   = errors.New("order exceeds map maximum order")
	ErrMapInput        = errors.New("invalid map input")
	ErrMapFormat       = errors.New("invalid map file")
	ErrGebRecord       = errors.New("invalid GEB record")
)

// MalformedPacketError reports a sub-packet header that cannot be trusted.
// The remainder of the event has to be skipped.
type MalformedPacketError struct {
	Position  int
	Length    int
	Remaining int
	Reason    string
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("malformed packet at word %d: %s (length %d, remaining %d)",
		e.Position, e.Reason, e.Length, e.Remaining)
}

func (e *MalformedPacketError) Unwrap() error { return ErrMalformedPacket }

// DecodeError represents a payload word that cannot be turned into a channel sample.
type DecodeError struct {
	Tag    uint16
	Word   int
	Value  uint16
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding packet 0x%04x word %d (0x%04x): %s", e.Tag, e.Word, e.Value, e.Reason)
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

type OrderExceededError struct {
	Requested int
	MaxOrder  int
}

func (e *OrderExceededError) Error() string {
	return fmt.Sprintf("requested order %d, map maximum order is %d", e.Requested, e.MaxOrder)
}

func (e *OrderExceededError) Unwrap() error { return ErrOrderExceeded }

// MapFormatError points at the offending line of an inverse map file.
type MapFormatError struct {
	Filename string
	Line     int
	Reason   string
}

func (e *MapFormatError) Error() string {
	return fmt.Sprintf("map file %q line %d: %s", e.Filename, e.Line, e.Reason)
}

func (e *MapFormatError) Unwrap() error { return ErrMapFormat }

// ConfigError is fatal: it is reported before any event is processed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error { return e.Err }

// ErrCreateGroup represents an error when creating a group.
type ErrCreateGroup struct {
	GroupName string
	Err       error
}

func (e *ErrCreateGroup) Error() string {
	return fmt.Sprintf("error creating group %q: %v", e.GroupName, e.Err)
}

func (e *ErrCreateGroup) Unwrap() error { return e.Err }

// ErrCreateTable represents an error when creating a table.
type ErrCreateTable struct {
	TableName string
	Err       error
}

func (e *ErrCreateTable) Error() string {
	return fmt.Sprintf("error creating table %q: %v", e.TableName, e.Err)
}

func (e *ErrCreateTable) Unwrap() error { return e.Err }
