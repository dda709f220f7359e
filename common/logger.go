package common

import (
	"fmt"
	"log"
)

const (
	confLoggerLevel = "lockstep.log.level"
)

type LoggerLevel int

const (
	Error LoggerLevel = iota
	Info
	Debug
)

type Logger interface {
	Fmt(string, ...interface{}) Logger
	Level() LoggerLevel
	Debug(string, ...interface{})
	Info(string, ...interface{})
	Error(string, ...interface{})
}

type standardLogger struct {
	level LoggerLevel
}

func NewStandardLogger(c Config) Logger {
	return &standardLogger{LoggerLevel(c.OptionalInt(confLoggerLevel, int(Info)))}
}

func (s *standardLogger) Fmt(format string, vals ...interface{}) Logger {
	return &formattedLogger{s, fmt.Sprintf(format, vals...)}
}

func (s *standardLogger) Level() LoggerLevel {
	return s.level
}

func (s *standardLogger) Debug(format string, vals ...interface{}) {
	if s.level >= Debug {
		log.Println(fmt.Sprintf("[DEBUG] "+format, vals...))
	}
}

func (s *standardLogger) Info(format string, vals ...interface{}) {
	if s.level >= Info {
		log.Println(fmt.Sprintf("[INFO] "+format, vals...))
	}
}

func (s *standardLogger) Error(format string, vals ...interface{}) {
	if s.level >= Error {
		log.Println(fmt.Sprintf("[ERROR] "+format, vals...))
	}
}

func (s *standardLogger) String() string {
	return ""
}

type formattedLogger struct {
	log Logger
	fmt string
}

func (s *formattedLogger) Fmt(format string, vals ...interface{}) Logger {
	return &formattedLogger{s, fmt.Sprintf(format, vals...)}
}

func (s *formattedLogger) Level() LoggerLevel {
	return s.log.Level()
}

func (s *formattedLogger) Debug(format string, vals ...interface{}) {
	s.log.Debug(fmt.Sprintf("%v: %v", s.fmt, format), vals...)
}

func (s *formattedLogger) Info(format string, vals ...interface{}) {
	s.log.Info(fmt.Sprintf("%v: %v", s.fmt, format), vals...)
}

func (s *formattedLogger) Error(format string, vals ...interface{}) {
	s.log.Error(fmt.Sprintf("%v: %v", s.fmt, format), vals...)
}

func (s *formattedLogger) String() string {
	return s.fmt
}
