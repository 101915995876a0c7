package chrome

import (
	"context"
	"errors"
	"strings"
)

// ErrManagerClosed is returned by Ensure after Shutdown.
var ErrManagerClosed = errors.New("engine manager shut down")

var interruptedMarkers = []string{
	"target closed",
	"session closed",
	"websocket",
	"connection closed",
	"browser has disconnected",
}

// IsSessionInterrupted reports whether err means the tab or browser went away
// rather than the document failing to render.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range interruptedMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
