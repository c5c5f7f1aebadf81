package device

import (
	"errors"
	"fmt"
	"strings"
)

// Operation errors
var (
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrUnsupported  = errors.New("unsupported")
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
)

// ConnectionError represents a call made in the wrong connection state
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	t, ok := target.(*ConnectionError)
	return ok && e != nil && e.State == t.State
}

var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
)

// DiscoveryError reports that the radio could not enumerate peripherals.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ConnectFailure is the kind of a ConnectError
type ConnectFailure string

const (
	DeviceUnreachable        ConnectFailure = "device unreachable"
	ServiceEnumerationFailed ConnectFailure = "service enumeration failed"
)

// ConnectError reports a failed connect.
type ConnectError struct {
	Kind    ConnectFailure
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Address != "" {
		fmt.Fprintf(&b, " (%s)", e.Address)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Is matches ConnectError values by Kind
func (e *ConnectError) Is(target error) bool {
	t, ok := target.(*ConnectError)
	return ok && e.Kind == t.Kind
}

// SubscribeFailure is the kind of a SubscribeError
type SubscribeFailure string

const (
	NotifyUnsupported     SubscribeFailure = "notify not supported"
	UnknownCharacteristic SubscribeFailure = "unknown characteristic"
	WriteRejected         SubscribeFailure = "notification enable rejected"
)

// SubscribeError reports a failed subscription.
type SubscribeError struct {
	Kind           SubscribeFailure
	Characteristic string
	Err            error
}

func (e *SubscribeError) Error() string {
	msg := fmt.Sprintf("subscribe %s: %s", e.Characteristic, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubscribeError) Unwrap() error { return e.Err }

// Is matches SubscribeError values by Kind
func (e *SubscribeError) Is(target error) bool {
	t, ok := target.(*SubscribeError)
	return ok && e.Kind == t.Kind
}

// WriteFailure is the kind of a WriteError
type WriteFailure string

const (
	NotFound WriteFailure = "writable characteristic not found"
	Rejected WriteFailure = "write rejected"
)

// WriteError reports a failed characteristic write.
type WriteError struct {
	Kind           WriteFailure
	Characteristic string
	Err            error
}

func (e *WriteError) Error() string {
	msg := fmt.Sprintf("write %s: %s", e.Characteristic, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is matches WriteError values by Kind
func (e *WriteError) Is(target error) bool {
	t, ok := target.(*WriteError)
	return ok && e.Kind == t.Kind
}

// Sentinels for errors.Is checks by kind.
var (
	ErrDeviceUnreachable        = &ConnectError{Kind: DeviceUnreachable}
	ErrServiceEnumerationFailed = &ConnectError{Kind: ServiceEnumerationFailed}
	ErrNotifyUnsupported        = &SubscribeError{Kind: NotifyUnsupported}
	ErrUnknownCharacteristic    = &SubscribeError{Kind: UnknownCharacteristic}
	ErrWriteRejected            = &SubscribeError{Kind: WriteRejected}
	ErrWriteNotFound            = &WriteError{Kind: NotFound}
	ErrWriteFailed              = &WriteError{Kind: Rejected}
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
