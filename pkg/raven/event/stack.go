package event

import (
	"reflect"
	"runtime"
	"strings"
)

const maxFrames = 64

// libraryPrefix is the import path prefix of this client's packages.
// Frames under it are reported as not in-app.
var libraryPrefix = strings.TrimSuffix(reflect.TypeOf(Builder{}).PkgPath(), "/event")

// captureStack records the stack starting skip frames above its caller,
// oldest call first. skip 0 starts at the caller itself.
func captureStack(skip int) *Stacktrace {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	var frames []Frame
	iter := runtime.CallersFrames(pcs[:n])
	for {
		f, more := iter.Next()
		if f.Function != "" {
			frames = append(frames, newFrame(f))
		}
		if !more {
			break
		}
	}

	// runtime reports innermost first
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	return &Stacktrace{Frames: frames}
}

func newFrame(f runtime.Frame) Frame {
	module, function := splitFunction(f.Function)
	return Frame{
		Function: function,
		Module:   module,
		Filename: shortFile(f.File),
		AbsPath:  f.File,
		Lineno:   f.Line,
		InApp:    inApp(module),
	}
}

// splitFunction splits "example.com/pkg.(*T).M" into "example.com/pkg" and "(*T).M".
func splitFunction(name string) (module, function string) {
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return "", name
	}
	dot += slash + 1
	return name[:dot], name[dot+1:]
}

func shortFile(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		if j := strings.LastIndex(path[:i], "/"); j >= 0 {
			return path[j+1:]
		}
	}
	return path
}

func inApp(module string) bool {
	switch module {
	case "main":
		return true
	case "":
		return false
	}
	// standard library import paths have no dot in the first element
	first, _, _ := strings.Cut(module, "/")
	if !strings.Contains(first, ".") {
		return false
	}
	return !strings.HasPrefix(module, libraryPrefix)
}

// typeOf returns the concrete type name and package path of err.
func typeOf(err error) (name, module string) {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name = t.Name()
	if name == "" {
		name = t.String()
	}
	return name, t.PkgPath()
}
