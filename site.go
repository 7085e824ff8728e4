package accel

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// CallSite identifies where a runtime call was issued from. Errors and
// tune keys carry it.
type CallSite struct {
	Func string
	File string
	Line int
}

// Here returns the call site of its caller.
func Here() CallSite {
	return caller(2)
}

func caller(skip int) CallSite {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return CallSite{}
	}
	name := ""
	if fn := runtime.FuncForPC(pc); fn != nil {
		name = fn.Name()
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
	}
	return CallSite{Func: name, File: filepath.Base(file), Line: line}
}

func (s CallSite) IsZero() bool { return s == CallSite{} }

func (s CallSite) String() string {
	if s.IsZero() {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d in %s()", s.File, s.Line, s.Func)
}

// aux is the tune key form of the site.
func (s CallSite) aux() string {
	return fmt.Sprintf("%s,%s,%d", s.Func, s.File, s.Line)
}
