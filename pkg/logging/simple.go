package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
)

var (
	infoColor  = color.New(color.FgGreen).SprintFunc()
	debugColor = color.New(color.FgCyan).SprintFunc()
	traceColor = color.New(color.FgYellow).SprintFunc()
	errorColor = color.New(color.FgRed).SprintFunc()
	nameColor  = color.New(color.FgHiBlack).SprintFunc()
)

// SimpleLogSink implements logr.LogSink with human readable, optionally colored output. Key/value pairs are printed
// on their own lines below the message.
type SimpleLogSink struct {
	writer       io.Writer
	minVerbosity int
	name         string
	keyValues    []interface{}
	mutex        *sync.Mutex
	useColor     bool
}

// NewSimpleLogSink creates a new SimpleLogSink writing to writer, os.Stderr when nil. Messages above minVerbosity
// are dropped.
func NewSimpleLogSink(writer io.Writer, minVerbosity int, useColor bool) *SimpleLogSink {
	if writer == nil {
		writer = os.Stderr
	}
	return &SimpleLogSink{
		writer:       writer,
		minVerbosity: minVerbosity,
		keyValues:    []interface{}{},
		mutex:        &sync.Mutex{},
		useColor:     useColor,
	}
}

// NewSimpleLogger creates a new logr.Logger backed by a SimpleLogSink.
func NewSimpleLogger(writer io.Writer, minVerbosity int, useColor bool) logr.Logger {
	return logr.New(NewSimpleLogSink(writer, minVerbosity, useColor))
}

func (s *SimpleLogSink) Init(info logr.RuntimeInfo) {}

func (s *SimpleLogSink) Enabled(level int) bool {
	return level <= s.minVerbosity
}

func (s *SimpleLogSink) Info(level int, msg string, keysAndValues ...interface{}) {
	if !s.Enabled(level) {
		return
	}
	s.log(false, level, msg, keysAndValues)
}

func (s *SimpleLogSink) Error(err error, msg string, keysAndValues ...interface{}) {
	kv := append(append([]interface{}{}, keysAndValues...), "error", err)
	s.log(true, 0, msg, kv)
}

func (s *SimpleLogSink) WithValues(keysAndValues ...interface{}) logr.LogSink {
	c := s.clone()
	c.keyValues = append(c.keyValues, keysAndValues...)
	return c
}

func (s *SimpleLogSink) WithName(name string) logr.LogSink {
	c := s.clone()
	if c.name != "" {
		c.name = c.name + "." + name
	} else {
		c.name = name
	}
	return c
}

// clone copies the sink. The copy shares the writer lock so lines from related loggers never interleave.
func (s *SimpleLogSink) clone() *SimpleLogSink {
	return &SimpleLogSink{
		writer:       s.writer,
		minVerbosity: s.minVerbosity,
		name:         s.name,
		keyValues:    append([]interface{}{}, s.keyValues...),
		mutex:        s.mutex,
		useColor:     s.useColor,
	}
}

func (s *SimpleLogSink) paint(f func(a ...interface{}) string, text string) string {
	if !s.useColor {
		return text
	}
	return f(text)
}

func (s *SimpleLogSink) log(isError bool, level int, msg string, keysAndValues []interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var label string
	switch {
	case isError:
		label = s.paint(errorColor, "[ERROR]")
	case level == LEVEL_INFO:
		label = s.paint(infoColor, "[INFO]")
	case level == LEVEL_DEBUG:
		label = s.paint(debugColor, "[DEBUG]")
	case level == LEVEL_TRACE:
		label = s.paint(traceColor, "[TRACE]")
	default:
		label = fmt.Sprintf("[LEVEL %d]", level)
	}

	line := label + " "
	if s.name != "" {
		line += s.paint(nameColor, "["+s.name+"]") + " "
	}
	fmt.Fprintln(s.writer, line+msg)

	all := append(append([]interface{}{}, s.keyValues...), keysAndValues...)
	for i := 0; i+1 < len(all); i += 2 {
		key, ok := all[i].(string)
		if !ok {
			key = fmt.Sprintf("key%d", i/2)
		}
		fmt.Fprintf(s.writer, "  %s: %v\n", key, all[i+1])
	}
}
