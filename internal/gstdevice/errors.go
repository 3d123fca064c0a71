package gstdevice

import (
	"strings"

	devicecapture "github.com/e7canasta/orion-care-sensor/modules/device-capture"
)

// ErrorCategory represents the classification of GStreamer bus errors
type ErrorCategory int

const (
	// ErrCategoryResource indicates the device is gone, busy or unreadable
	ErrCategoryResource ErrorCategory = iota
	// ErrCategoryNetwork indicates network sources failing (connection, timeout, DNS)
	ErrCategoryNetwork
	// ErrCategoryCodec indicates negotiation or decode failures
	ErrCategoryCodec
	// ErrCategoryAuth indicates authentication/authorization failures
	ErrCategoryAuth
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryResource:
		return "resource"
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Status maps the category to the status code reported to the pipeline.
// A vanished device or source reads as device-lost; everything else aborts.
func (e ErrorCategory) Status() devicecapture.StatusCode {
	switch e {
	case ErrCategoryResource, ErrCategoryNetwork:
		return devicecapture.StatusDeviceLost
	default:
		return devicecapture.StatusErrorAbort
	}
}

var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden",
		"authentication", "credentials", "permission denied",
	}
	codecKeywords = []string{
		"codec", "decode", "format", "negotiation", "caps",
		"not negotiated", "no decoder", "missing plugin",
	}
	resourceKeywords = []string{
		"no such device", "device", "busy", "could not open",
		"resource", "not found", "unplugged", "disconnected",
	}
	networkKeywords = []string{
		"connection", "timeout", "unreachable", "network", "dns",
		"resolve", "socket", "tcp", "udp", "rtsp", "could not connect",
	}
)

// Classify categorizes a GStreamer error from its message and debug string.
//
// Priority: auth, then codec, then resource, then network. go-gst's GError
// does not expose the error domain, so classification is keyword based.
func Classify(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	switch {
	case containsAny(combined, authKeywords):
		return ErrCategoryAuth
	case containsAny(combined, codecKeywords):
		return ErrCategoryCodec
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	case containsAny(combined, networkKeywords):
		return ErrCategoryNetwork
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
