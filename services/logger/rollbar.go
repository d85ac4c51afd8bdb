package logsvc

import (
	"fmt"
	"os"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/sirupsen/logrus"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/staff"
)

// RollbarLogger reports to rollbar and writes structured logs with logrus.
type RollbarLogger struct {
	std   *logrus.Logger
	entry *logrus.Entry
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewStdLogger returns the logrus logger shared by the app: JSON in production, text otherwise.
func NewStdLogger(conf *core.Config) *logrus.Logger {
	std := logrus.New()
	std.SetOutput(os.Stdout)
	if conf.Debug {
		std.SetLevel(logrus.DebugLevel)
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		std.SetLevel(logrus.InfoLevel)
		std.SetFormatter(&logrus.JSONFormatter{})
	}
	return std
}

func NewRollbarLogger(std *logrus.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{
		std:   std,
		entry: logrus.NewEntry(std).WithField("app", conf.AppName),
	}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// With returns a logger that adds the component field to every entry.
func (l *RollbarLogger) With(component string) *RollbarLogger {
	return &RollbarLogger{std: l.std, entry: l.entry.WithField("component", component)}
}

// expected fmt: msg | error, map[string]interface{}, staff.Staff, key/value pairs
func (l *RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, *logrus.Entry) {
	var staffSet bool
	entry := l.entry
	rbArgs := make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)

	for i := 0; i < len(args); i++ {
		switch arg := args[i].(type) {
		case staff.Staff:
			if !staffSet { // only set one Staff
				rollbar.SetPerson(arg.ID, arg.Username, arg.Email)
				entry = entry.WithField("staff", arg.Username)
				staffSet = true
			}
		case error:
			entry = entry.WithError(arg)
			rbArgs = append(rbArgs, arg)
		case map[string]interface{}:
			entry = entry.WithFields(arg)
			rbArgs = append(rbArgs, arg)
		case string:
			if i+1 >= len(args) {
				break
			}
			if err, ok := args[i+1].(error); ok {
				entry = entry.WithError(err)
				rbArgs = append(rbArgs, err)
			} else {
				entry = entry.WithField(arg, args[i+1])
			}
			i++
		default:
			entry = entry.WithField(fmt.Sprintf("arg%d", i), arg)
		}
	}
	if !staffSet {
		rollbar.ClearPerson()
	}
	return rbArgs, entry
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	_, entry := l.prepare(msg, args)
	entry.Debug(msg)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Info(rbArgs...)
	entry.Info(msg)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Warning(rbArgs...)
	entry.Warn(msg)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Error(rbArgs...)
	entry.Error(msg)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, entry := l.prepare(msg, args)
	rollbar.Critical(rbArgs...)
	rollbar.Wait()
	entry.Fatal(msg)
}
