package internal

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) logrusLevel() logrus.Level {
	switch l {
	case LogLevelError:
		return logrus.ErrorLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelDebug:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// Redactor defines an interface for redacting sensitive information
type Redactor interface {
	Redact(input string) string
}

// HeaderRedactor redacts credential-bearing header values
type HeaderRedactor struct{}

var headerPattern = regexp.MustCompile(`(?i)((?:authorization|x-api-key|x-auth-token):\s*(?:bearer\s+)?)([^\s;,]+)`)

func (r *HeaderRedactor) Redact(input string) string {
	return headerPattern.ReplaceAllString(input, "${1}[REDACTED]")
}

// URLRedactor redacts sensitive URL parameters, including the API token and
// the single-use waiting token.
type URLRedactor struct{}

var paramPattern = regexp.MustCompile(`(?i)\b((?:access_|waiting_)?token|key|secret|password)=([^&\s"]+)`)

func (r *URLRedactor) Redact(input string) string {
	return paramPattern.ReplaceAllString(input, "${1}=[REDACTED]")
}

// ValueRedactor removes one known secret wherever it appears
type ValueRedactor struct {
	secret string
}

// NewValueRedactor returns a redactor for secret; short values are ignored to
// avoid mangling unrelated text.
func NewValueRedactor(secret string) *ValueRedactor {
	return &ValueRedactor{secret: secret}
}

func (r *ValueRedactor) Redact(input string) string {
	if len(r.secret) < 4 {
		return input
	}
	return strings.ReplaceAll(input, r.secret, "[REDACTED]")
}

// redactHook applies the redactors to every entry before it is formatted
type redactHook struct {
	mu        sync.RWMutex
	redactors []Redactor
}

func (h *redactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *redactHook) Fire(entry *logrus.Entry) error {
	entry.Message = h.redact(entry.Message)
	for k, v := range entry.Data {
		if s, ok := v.(string); ok {
			entry.Data[k] = h.redact(s)
		}
	}
	return nil
}

func (h *redactHook) redact(input string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := input
	for _, redactor := range h.redactors {
		result = redactor.Redact(result)
	}
	return result
}

func (h *redactHook) add(r Redactor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redactors = append(h.redactors, r)
}

// SecureLogger provides leveled logging on top of logrus with sensitive data
// redaction.
type SecureLogger struct {
	logger *logrus.Logger
	hook   *redactHook
	fields logrus.Fields
	level  LogLevel
	debug  bool
	quiet  bool
}

// NewSecureLogger creates a new secure logger
func NewSecureLogger(output io.Writer, level LogLevel, debug, quiet bool) *SecureLogger {
	hook := &redactHook{
		redactors: []Redactor{
			&HeaderRedactor{},
			&URLRedactor{},
		},
	}

	logger := logrus.New()
	logger.SetOutput(output)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.AddHook(hook)

	sl := &SecureLogger{
		logger: logger,
		hook:   hook,
		level:  level,
		debug:  debug,
		quiet:  quiet,
	}
	sl.applyLevel()

	return sl
}

// NewDefaultLogger creates a logger with default settings
func NewDefaultLogger(debug, quiet bool) *SecureLogger {
	level := LogLevelInfo
	if debug {
		level = LogLevelDebug
	}
	if quiet {
		level = LogLevelError
	}

	return NewSecureLogger(os.Stderr, level, debug, quiet)
}

func (sl *SecureLogger) applyLevel() {
	level := sl.level
	if sl.quiet {
		level = LogLevelError
	}
	sl.logger.SetLevel(level.logrusLevel())
}

// WithField returns a logger that attaches key=value to every entry
func (sl *SecureLogger) WithField(key string, value interface{}) *SecureLogger {
	fields := make(logrus.Fields, len(sl.fields)+1)
	for k, v := range sl.fields {
		fields[k] = v
	}
	fields[key] = value

	child := *sl
	child.fields = fields
	return &child
}

func (sl *SecureLogger) redactSensitiveData(input string) string {
	return sl.hook.redact(input)
}

// callerInfo finds the first frame outside the logging files
func callerInfo() string {
	for depth := 2; depth <= 7; depth++ {
		_, file, line, ok := runtime.Caller(depth)
		if !ok {
			break
		}
		base := filepath.Base(file)
		if base == "logger.go" || base == "log.go" {
			continue
		}
		return fmt.Sprintf("%s:%d", base, line)
	}
	return ""
}

func (sl *SecureLogger) shouldLog(level LogLevel) bool {
	if sl.quiet && level > LogLevelError {
		return false
	}
	return level <= sl.level
}

func (sl *SecureLogger) log(level LogLevel, format string, args ...interface{}) {
	if !sl.shouldLog(level) {
		return
	}

	entry := sl.logger.WithFields(sl.fields)
	if sl.debug {
		if caller := callerInfo(); caller != "" {
			entry = entry.WithField("caller", caller)
		}
	}
	entry.Log(level.logrusLevel(), fmt.Sprintf(format, args...))
}

// Error logs an error message
func (sl *SecureLogger) Error(format string, args ...interface{}) {
	sl.log(LogLevelError, format, args...)
}

// Warn logs a warning message
func (sl *SecureLogger) Warn(format string, args ...interface{}) {
	sl.log(LogLevelWarn, format, args...)
}

// Info logs an info message
func (sl *SecureLogger) Info(format string, args ...interface{}) {
	sl.log(LogLevelInfo, format, args...)
}

// Debug logs a debug message
func (sl *SecureLogger) Debug(format string, args ...interface{}) {
	sl.log(LogLevelDebug, format, args...)
}

// LogHTTPRequest logs an HTTP request with sensitive data redacted
func (sl *SecureLogger) LogHTTPRequest(req *http.Request) {
	if !sl.shouldLog(LogLevelDebug) {
		return
	}

	sl.Debug("HTTP Request: %s %s Headers: %v", req.Method, req.URL.String(), sl.sanitizeHeaders(req.Header))
}

// LogHTTPResponse logs an HTTP response with sensitive data redacted
func (sl *SecureLogger) LogHTTPResponse(resp *http.Response) {
	if !sl.shouldLog(LogLevelDebug) {
		return
	}

	sl.Debug("HTTP Response: %s Headers: %v", resp.Status, sl.sanitizeHeaders(resp.Header))
}

func (sl *SecureLogger) sanitizeHeaders(header http.Header) map[string]string {
	sanitized := make(map[string]string, len(header))
	for name, values := range header {
		if sl.isSensitiveHeader(name) {
			sanitized[name] = "[REDACTED]"
		} else {
			sanitized[name] = strings.Join(values, ", ")
		}
	}
	return sanitized
}

// isSensitiveHeader checks if a header contains sensitive information
func (sl *SecureLogger) isSensitiveHeader(name string) bool {
	sensitiveHeaders := []string{
		"authorization",
		"cookie",
		"x-auth-token",
		"x-api-key",
		"bearer",
		"token",
	}

	lowerName := strings.ToLower(name)
	for _, sensitive := range sensitiveHeaders {
		if strings.Contains(lowerName, sensitive) {
			return true
		}
	}
	return false
}

// SetLevel sets the logging level
func (sl *SecureLogger) SetLevel(level LogLevel) {
	sl.level = level
	sl.applyLevel()
}

// SetDebug enables or disables debug mode
func (sl *SecureLogger) SetDebug(debug bool) {
	sl.debug = debug
	if debug {
		sl.level = LogLevelDebug
	}
	sl.applyLevel()
}

// SetQuiet enables or disables quiet mode
func (sl *SecureLogger) SetQuiet(quiet bool) {
	sl.quiet = quiet
	sl.applyLevel()
}

// AddRedactor adds a custom redactor
func (sl *SecureLogger) AddRedactor(redactor Redactor) {
	sl.hook.add(redactor)
}
