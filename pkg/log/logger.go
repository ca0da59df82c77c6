package log

import (
	"fmt"
	"log"
	"os"
	"path"
	"runtime"
	"time"

	iner "github.com/kutrace/rawtoevent/internal"
	"github.com/kutrace/rawtoevent/pkg/config"
	"github.com/sirupsen/logrus"
)

var Loger *Logger

const (
	PATH = "/tmp/rawtoevent"
)

type Logger struct {
	name     string
	level    logrus.Level
	keepdays int
	logger   *logrus.Logger
	file     *os.File
}

func (l *Logger) SetLevel(level logrus.Level) {
	l.level = level
	l.logger.SetLevel(level)
}

func LevelTransform(level string) logrus.Level {
	switch level {
	case "PANIC":
		return logrus.PanicLevel
	case "FATAL":
		return logrus.FatalLevel
	case "ERROR":
		return logrus.ErrorLevel
	case "WARN":
		return logrus.WarnLevel
	case "INFO":
		return logrus.InfoLevel
	case "DEBUG":
		return logrus.DebugLevel
	case "TRACE":
		return logrus.TraceLevel
	}
	return logrus.InfoLevel
}

func NewLogger() *Logger {
	var logPath string
	var level logrus.Level

	if config.ConfigGlobal != nil {
		logPath = config.ConfigGlobal.Log.Path
		level = LevelTransform(config.ConfigGlobal.Log.Level)
	} else {
		logPath = ""
		level = logrus.InfoLevel
	}

	// stdout carries the decoded event stream, so diagnostics go to stderr.
	// A log file is opened only when a path is configured.
	var file *os.File
	if logPath != "" {
		if !iner.Exists(logPath) {
			err := os.MkdirAll(logPath, 0755)
			if err != nil {
				log.Fatalf("mkdir %s failed.", logPath)
			}
		}
		fileName := time.Now().Format("20060102_15:04:05") + ".log"
		f, err := os.OpenFile(logPath+"/"+fileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			panic(fmt.Sprintf("New logger failed:%v", err))
		}
		file = f
	}

	return &Logger{
		name:     "rawtoevent",
		level:    level,
		keepdays: 7,
		logger:   logrus.New(),
		file:     file,
	}
}

func LogInit() {
	Loger = NewLogger()
	Loger.logger.SetOutput(os.Stderr)
	Loger.logger.SetLevel(Loger.level)
	Loger.logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000000",
		FullTimestamp:   true,
		CallerPrettyfier: func(frame *runtime.Frame) (function string, file string) {
			fileName := path.Base(frame.File)
			return "", fmt.Sprintf(" %s:%d", fileName, frame.Line)
		},
	})
	if Loger.file != nil {
		Loger.logger.SetOutput(Loger.file)
	}
}

func (l *Logger) Info(format string, a ...any) {
	l.logger.Info(fmt.Sprintf(format, a...))
}

func (l *Logger) Error(format string, a ...any) {
	l.logger.Error(fmt.Sprintf(format, a...))
}

func (l *Logger) Warn(format string, a ...any) {
	l.logger.Warn(fmt.Sprintf(format, a...))
}

func (l *Logger) Debug(format string, a ...any) {
	l.logger.Debug(fmt.Sprintf(format, a...))
}
