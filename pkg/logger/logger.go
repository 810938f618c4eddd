package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var (
	mu    sync.Mutex
	level = INFO
	out   = os.Stderr
)

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	}
	return "?"
}

func logf(l Level, component, msg string, fields map[string]interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(l.String())
	b.WriteString("] [")
	b.WriteString(component)
	b.WriteString("] ")
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	b.WriteByte('\n')
	fmt.Fprint(out, b.String())
}

func DebugC(component, msg string)                                 { logf(DEBUG, component, msg, nil) }
func DebugCF(component, msg string, fields map[string]interface{}) { logf(DEBUG, component, msg, fields) }
func InfoC(component, msg string)                                  { logf(INFO, component, msg, nil) }
func InfoCF(component, msg string, fields map[string]interface{})  { logf(INFO, component, msg, fields) }
func WarnC(component, msg string)                                  { logf(WARN, component, msg, nil) }
func WarnCF(component, msg string, fields map[string]interface{})  { logf(WARN, component, msg, fields) }
func ErrorC(component, msg string)                                 { logf(ERROR, component, msg, nil) }
func ErrorCF(component, msg string, fields map[string]interface{}) { logf(ERROR, component, msg, fields) }
