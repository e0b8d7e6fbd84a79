package fritz

import (
	"errors"
	"fmt"
)

// ErrConnect wraps every transport level failure: unreachable host, bad
// credentials, unreadable device description.
var ErrConnect = errors.New("unable to connect to device")

// ErrUnknownService is returned when an action targets a service the device
// does not advertise.
var ErrUnknownService = errors.New("service not advertised by device")

// CodeArrayIndexInvalid is the UPnP error the device answers with when an
// enumeration index is past the last entry.
const CodeArrayIndexInvalid = 713

// ActionError is an application level failure returned by the device for a
// single action. The transport succeeded.
type ActionError struct {
	Service     string
	Action      string
	Code        int
	Description string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s.%s failed: upnp error %d (%s)", e.Service, e.Action, e.Code, e.Description)
}

// IsEndOfRange reports whether err is the device's out-of-range index signal.
func IsEndOfRange(err error) bool {
	var aerr *ActionError
	return errors.As(err, &aerr) && aerr.Code == CodeArrayIndexInvalid
}
