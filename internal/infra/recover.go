package infra

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GoRecoverable runs f and restarts it in a new goroutine after a panic.
// A negative maxPanics restarts forever; reaching zero terminates the process.
func GoRecoverable(maxPanics int, id string, f func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		entry := log.WithFields(log.Fields{
			"object": "GoRecoverable",
			"job":    id,
			"source": identifyPanic(),
		})
		entry.WithField("panic", fmt.Sprint(r)).Error("job panicked")
		switch {
		case maxPanics == 0:
			entry.Fatal("panics limit exceeded, exiting")
		case maxPanics > 0:
			maxPanics--
		}
		entry.WithField("panics_left", maxPanics).Debug("recovering job")
		go GoRecoverable(maxPanics, id, f)
	}()
	f()
}

// SafeCall runs f and converts a panic into an error.
func SafeCall(id string, f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked at %s: %v", id, identifyPanic(), r)
		}
	}()
	return f()
}

func identifyPanic() string {
	var name, file string
	var line int
	var pc [16]uintptr

	n := runtime.Callers(3, pc[:])
	for _, pc := range pc[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line = fn.FileLine(pc)
		name = fn.Name()
		if !strings.HasPrefix(name, "runtime.") {
			break
		}
	}

	switch {
	case name != "":
		return fmt.Sprintf("%v:%v", name, line)
	case file != "":
		return fmt.Sprintf("%v:%v", file, line)
	}

	return fmt.Sprintf("pc:%x", pc)
}
