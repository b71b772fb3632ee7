package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

type Logger struct {
	logger *logrus.Logger
}

type LogConfig struct {
	Level string
}

func NewLogger(config LogConfig) *Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	return &Logger{logger: logger}
}

func (l *Logger) Info(msg string, fields ...logrus.Fields) {
	if len(fields) > 0 {
		l.logger.WithFields(fields[0]).Info(msg)
	} else {
		l.logger.Info(msg)
	}
}

func (l *Logger) Warn(msg string, fields ...logrus.Fields) {
	if len(fields) > 0 {
		l.logger.WithFields(fields[0]).Warn(msg)
	} else {
		l.logger.Warn(msg)
	}
}

func (l *Logger) Error(msg string, err error, fields ...logrus.Fields) {
	baseFields := logrus.Fields{}
	if err != nil {
		baseFields["error"] = err.Error()
	}

	if len(fields) > 0 {
		for k, v := range fields[0] {
			baseFields[k] = v
		}
	}

	l.logger.WithFields(baseFields).Error(msg)
}

func (l *Logger) Debug(msg string, fields ...logrus.Fields) {
	if len(fields) > 0 {
		l.logger.WithFields(fields[0]).Debug(msg)
	} else {
		l.logger.Debug(msg)
	}
}
