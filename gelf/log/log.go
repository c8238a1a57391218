/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package log is the broker's stderr logging façade: one formatted line
// per event, silent unless a level has been configured, per §7.
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// lineFormatter renders "<UTC ts> [broker:<category>] <LEVEL>: <msg>",
// the exact line shape required of the broker's stderr output.
type lineFormatter struct{}

func (lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	category, _ := e.Data["category"].(string)
	if category == "" {
		category = "broker"
	} else {
		category = "broker:" + category
	}

	line := fmt.Sprintf("%s [%s] %s: %s\n",
		e.Time.UTC().Format("2006-01-02T15:04:05.000Z"),
		category,
		levelName(e.Level),
		e.Message,
	)
	return []byte(line), nil
}

func levelName(l logrus.Level) string {
	switch l {
	case logrus.PanicLevel, logrus.FatalLevel:
		return "FATAL"
	case logrus.ErrorLevel:
		return "ERROR"
	case logrus.WarnLevel:
		return "WARN"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.DebugLevel, logrus.TraceLevel:
		return "DEBUG"
	default:
		return "INFO"
	}
}

// Logger is the broker's internal event logger. A nil *Logger is valid and
// silent, matching "--log" being unset.
type Logger struct {
	entry *logrus.Logger
}

// New builds a Logger writing to out at the given level name ("debug",
// "info", "warn", "error"). An empty level disables logging entirely.
func New(levelName string, out io.Writer) *Logger {
	if levelName == "" {
		return nil
	}

	lvl, err := logrus.ParseLevel(levelName)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	if out == nil {
		out = os.Stderr
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	l.SetFormatter(lineFormatter{})

	return &Logger{entry: l}
}

// category returns a *logrus.Entry pre-tagged with the given category name;
// the formatter renders it as "broker:<name>".
func (lg *Logger) category(name string) *logrus.Entry {
	return lg.entry.WithField("category", name)
}

func (lg *Logger) Debugf(category, format string, args ...interface{}) {
	if lg == nil {
		return
	}
	lg.category(category).Debugf(format, args...)
}

func (lg *Logger) Infof(category, format string, args ...interface{}) {
	if lg == nil {
		return
	}
	lg.category(category).Infof(format, args...)
}

func (lg *Logger) Warnf(category, format string, args ...interface{}) {
	if lg == nil {
		return
	}
	lg.category(category).Warnf(format, args...)
}

func (lg *Logger) Errorf(category, format string, args ...interface{}) {
	if lg == nil {
		return
	}
	lg.category(category).Errorf(format, args...)
}
