package backend

import "fmt"

// Code is a backend status code. Zero is success.
type Code int

const (
	Success Code = iota
	ErrorNotReady
	ErrorInvalidValue
	ErrorInvalidConfiguration
	ErrorLaunchOutOfResources
	ErrorLaunchFailure
	ErrorInvalidResourceHandle
	ErrorInvalidMemcpyDirection
	ErrorMemoryAllocation
	ErrorInvalidDevicePointer
	ErrorInvalidSymbol
	ErrorNotSupported
	ErrorUnknown
)

var codeNames = map[Code]string{
	Success:                     "Success",
	ErrorNotReady:               "ErrorNotReady",
	ErrorInvalidValue:           "ErrorInvalidValue",
	ErrorInvalidConfiguration:   "ErrorInvalidConfiguration",
	ErrorLaunchOutOfResources:   "ErrorLaunchOutOfResources",
	ErrorLaunchFailure:          "ErrorLaunchFailure",
	ErrorInvalidResourceHandle:  "ErrorInvalidResourceHandle",
	ErrorInvalidMemcpyDirection: "ErrorInvalidMemcpyDirection",
	ErrorMemoryAllocation:       "ErrorMemoryAllocation",
	ErrorInvalidDevicePointer:   "ErrorInvalidDevicePointer",
	ErrorInvalidSymbol:          "ErrorInvalidSymbol",
	ErrorNotSupported:           "ErrorNotSupported",
	ErrorUnknown:                "ErrorUnknown",
}

var codeMessages = map[Code]string{
	Success:                     "no error",
	ErrorNotReady:               "device not ready",
	ErrorInvalidValue:           "invalid argument",
	ErrorInvalidConfiguration:   "invalid configuration argument",
	ErrorLaunchOutOfResources:   "too many resources requested for launch",
	ErrorLaunchFailure:          "unspecified launch failure",
	ErrorInvalidResourceHandle:  "invalid resource handle",
	ErrorInvalidMemcpyDirection: "invalid copy direction for memcpy",
	ErrorMemoryAllocation:       "out of memory",
	ErrorInvalidDevicePointer:   "invalid device pointer",
	ErrorInvalidSymbol:          "invalid device symbol",
	ErrorNotSupported:           "operation not supported",
	ErrorUnknown:                "unknown error",
}

// String returns the code's name, e.g. "ErrorNotReady".
func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Message returns the human-readable description of the code.
func (c Code) Message() string {
	if s, ok := codeMessages[c]; ok {
		return s
	}
	return codeMessages[ErrorUnknown]
}

// ParseCode resolves a code name as produced by String.
func ParseCode(name string) (Code, bool) {
	for c, n := range codeNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}
