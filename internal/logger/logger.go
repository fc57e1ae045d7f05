package logger

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

var (
	Log        *zap.Logger
	gormLogger GormLoggerInterface
)

// GormLoggerInterface is the logger handed to gorm.Open.
type GormLoggerInterface interface {
	gormlogger.Interface
}

// GormLogger routes gorm traces into zap. Generated typing SQL is long, so
// statements are only logged at debug level unless they are slow or fail.
type GormLogger struct {
	*zap.Logger
	LogLevel      gormlogger.LogLevel
	SlowThreshold time.Duration
	ZapLogLevel   zapcore.Level

	redactors []*regexp.Regexp
}

var sensitiveWords = []string{"password", "token", "secret", "apikey", "credential"}

// Init builds the global zap logger and the gorm wrapper.
func Init(debug bool, jsonOutput bool) error {
	var config zap.Config
	var encoderConfig zapcore.EncoderConfig

	if debug {
		config = zap.NewDevelopmentConfig()
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	} else {
		config = zap.NewProductionConfig()
		encoderConfig = zap.NewProductionEncoderConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		config.DisableCaller = true
	}

	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.LevelKey = "level"
	encoderConfig.NameKey = "logger"
	encoderConfig.MessageKey = "msg"
	encoderConfig.StacktraceKey = "stacktrace"
	if !config.DisableCaller {
		encoderConfig.CallerKey = "caller"
	}

	config.EncoderConfig = encoderConfig
	config.DisableStacktrace = !debug

	if jsonOutput {
		config.Encoding = "json"
	} else {
		config.Encoding = "console"
	}

	buildOptions := []zap.Option{}
	if !config.DisableCaller {
		buildOptions = append(buildOptions, zap.AddCallerSkip(1))
	}

	var err error
	Log, err = config.Build(buildOptions...)
	if err != nil {
		return fmt.Errorf("failed to build zap logger: %w", err)
	}

	gormLogger = NewGormLogger(Log, debug)
	Log.Info("Logger initialized",
		zap.Bool("debug_mode", debug),
		zap.Bool("json_output", jsonOutput),
		zap.String("log_level", config.Level.Level().String()),
	)
	return nil
}

// NewGormLogger wraps base as a gorm logger. Tests pass a zaptest logger here.
func NewGormLogger(base *zap.Logger, debug bool) GormLoggerInterface {
	gormLevel := gormlogger.Warn
	zapLevel := zapcore.WarnLevel
	if debug {
		gormLevel = gormlogger.Info
		zapLevel = zapcore.DebugLevel
	}
	if base == nil {
		panic("zap logger is not initialized before creating GormLogger")
	}

	redactors := make([]*regexp.Regexp, 0, len(sensitiveWords))
	for _, word := range sensitiveWords {
		redactors = append(redactors,
			regexp.MustCompile(fmt.Sprintf(`(?i)(%s\s*[:=]\s*)('.*?'|".*?"|\S+)`, regexp.QuoteMeta(word))))
	}

	return &GormLogger{
		Logger:        base.Named("gorm"),
		LogLevel:      gormLevel,
		SlowThreshold: 500 * time.Millisecond,
		ZapLogLevel:   zapLevel,
		redactors:     redactors,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	switch level {
	case gormlogger.Silent:
		newLogger.ZapLogLevel = zapcore.FatalLevel + 1
	case gormlogger.Error:
		newLogger.ZapLogLevel = zapcore.ErrorLevel
	case gormlogger.Warn:
		newLogger.ZapLogLevel = zapcore.WarnLevel
	default:
		newLogger.ZapLogLevel = zapcore.DebugLevel
	}
	return &newLogger
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Info {
		l.Logger.WithOptions(zap.AddCallerSkip(1)).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Warn {
		l.Logger.WithOptions(zap.AddCallerSkip(1)).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Error {
		l.Logger.WithOptions(zap.AddCallerSkip(1)).Error(fmt.Sprintf(msg, data...))
	}
}

// Trace logs executed SQL. Key/value pairs that look like credentials are masked.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	sql = l.Redact(sql)

	fields := []zap.Field{
		zap.Duration("duration_ms", elapsed.Round(time.Millisecond)),
		zap.String("sql", sql),
	}
	if rows > -1 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}

	logger := l.Logger.WithOptions(zap.AddCallerSkip(1))

	switch {
	case err != nil && l.LogLevel >= gormlogger.Error && !strings.Contains(err.Error(), "record not found"):
		fields = append(fields, zap.Error(err))
		logger.Error("SQL Error", fields...)
	case elapsed > l.SlowThreshold && l.SlowThreshold > 0 && l.LogLevel >= gormlogger.Warn:
		fields = append(fields, zap.Duration("threshold", l.SlowThreshold))
		logger.Warn("Slow Query", fields...)
	case l.LogLevel >= gormlogger.Info:
		logger.Debug("SQL Query", fields...)
	}
}

// Redact masks values assigned to credential-like keys.
func (l *GormLogger) Redact(sql string) string {
	for _, re := range l.redactors {
		sql = re.ReplaceAllString(sql, `${1}***REDACTED***`)
	}
	return sql
}

// GetGormLogger returns the logger built by Init.
func GetGormLogger() GormLoggerInterface {
	if gormLogger == nil {
		panic("GormLogger is not initialized. Call logger.Init() first.")
	}
	return gormLogger
}

// Truncate shortens s to at most max bytes, marking the cut.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
