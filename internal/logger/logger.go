package logger

import (
	"fmt"
	"log"
	"strings"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	NOTICE
	WARN
	ERROR
	FATAL
)

var currentLevel Level = INFO

func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = DEBUG
	case "INFO":
		currentLevel = INFO
	case "NOTICE":
		currentLevel = NOTICE
	case "WARN", "WARNING":
		currentLevel = WARN
	case "ERROR":
		currentLevel = ERROR
	case "FATAL":
		currentLevel = FATAL
	default:
		currentLevel = INFO
	}
}

// Log is a component-scoped logger; every line carries the component name
// so interleaved output from the engine, transport and poller stays
// attributable.
type Log struct {
	component string
}

func Component(name string) *Log {
	return &Log{component: name}
}

func (l *Log) output(level Level, prefix string, format string, v ...interface{}) {
	if currentLevel > level {
		return
	}
	msg := fmt.Sprintf(format, v...)
	if l.component != "" {
		log.Printf("[%s] [%s] %s", prefix, l.component, msg)
	} else {
		log.Printf("[%s] %s", prefix, msg)
	}
}

func (l *Log) Debugf(format string, v ...interface{}) {
	l.output(DEBUG, "DEBUG", format, v...)
}

func (l *Log) Infof(format string, v ...interface{}) {
	l.output(INFO, "INFO", format, v...)
}

func (l *Log) Noticef(format string, v ...interface{}) {
	l.output(NOTICE, "NOTICE", format, v...)
}

func (l *Log) Warnf(format string, v ...interface{}) {
	l.output(WARN, "WARN", format, v...)
}

func (l *Log) Errorf(format string, v ...interface{}) {
	l.output(ERROR, "ERROR", format, v...)
}

var root = &Log{}

func Debugf(format string, v ...interface{}) {
	root.Debugf(format, v...)
}

func Infof(format string, v ...interface{}) {
	root.Infof(format, v...)
}

func Noticef(format string, v ...interface{}) {
	root.Noticef(format, v...)
}

func Warnf(format string, v ...interface{}) {
	root.Warnf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	root.Errorf(format, v...)
}

func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}
