package supervisor

import (
	"sync"

	"github.com/hekabrain/watchdog/internal/logbuffer"
	"github.com/hekabrain/watchdog/internal/wstore"
)

// listeners holds callback registrations for the supervisor's four event
// kinds. Registration is a one-way append, matching the design notes'
// preference for callback registration over a hidden global singleton.
type listeners struct {
	mu              sync.Mutex
	onStatusChanged []func(StatusInfo)
	onCrash         []func(wstore.CrashEntry)
	onLog           []func(logbuffer.Entry)
	onMaxRestarts   []func()
}

func (l *listeners) addStatusChanged(f func(StatusInfo)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStatusChanged = append(l.onStatusChanged, f)
}

func (l *listeners) addCrash(f func(wstore.CrashEntry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCrash = append(l.onCrash, f)
}

func (l *listeners) addLog(f func(logbuffer.Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLog = append(l.onLog, f)
}

func (l *listeners) addMaxRestarts(f func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onMaxRestarts = append(l.onMaxRestarts, f)
}

func (l *listeners) emitStatusChanged(s StatusInfo) {
	l.mu.Lock()
	fns := append([]func(StatusInfo){}, l.onStatusChanged...)
	l.mu.Unlock()
	for _, f := range fns {
		f(s)
	}
}

func (l *listeners) emitCrash(c wstore.CrashEntry) {
	l.mu.Lock()
	fns := append([]func(wstore.CrashEntry){}, l.onCrash...)
	l.mu.Unlock()
	for _, f := range fns {
		f(c)
	}
}

func (l *listeners) emitLog(e logbuffer.Entry) {
	l.mu.Lock()
	fns := append([]func(logbuffer.Entry){}, l.onLog...)
	l.mu.Unlock()
	for _, f := range fns {
		f(e)
	}
}

func (l *listeners) emitMaxRestarts() {
	l.mu.Lock()
	fns := append([]func(){}, l.onMaxRestarts...)
	l.mu.Unlock()
	for _, f := range fns {
		f()
	}
}
