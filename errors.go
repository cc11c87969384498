package tcpreactor

import (
	"errors"
	"fmt"
)

var (
	ErrLoopAlreadyRunning = errors.New("tcpreactor: loop is already running")
	ErrLoopNotRunning     = errors.New("tcpreactor: loop is not running")
	ErrLoopTerminated     = errors.New("tcpreactor: loop has been terminated")
	ErrWrongThread        = errors.New("tcpreactor: operation invoked from outside the owning loop thread")

	ErrChannelDisabled = errors.New("tcpreactor: channel has no registered interest")
	ErrTieExpired      = errors.New("tcpreactor: channel tie target no longer alive")

	ErrConnectionNotConnected = errors.New("tcpreactor: connection is not connected")
	ErrConnectionClosed       = errors.New("tcpreactor: connection is closed")

	ErrAcceptorAlreadyListening = errors.New("tcpreactor: acceptor is already listening")
	ErrAcceptorClosed           = errors.New("tcpreactor: acceptor is closed")

	ErrConnectorBusy   = errors.New("tcpreactor: connector already has a connection attempt in flight")
	ErrConnectorFailed = errors.New("tcpreactor: connect attempt failed")

	ErrServerAlreadyStarted = errors.New("tcpreactor: server already started")
)

// wrapErr annotates err with a component-scoped message, preserving it for
// errors.Is/As.
func wrapErr(component string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("tcpreactor: %s: %w", component, err)
}
