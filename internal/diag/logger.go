package diag

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger: 结构化事件日志（zap JSON）。
// 事件形状：comp/stage/code/dur_ms/count/shard_id/batch，外加 corr_id 与任意附加字段。
// 主 sink 为轮转文件；error 级别同时抄送 stderr。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// ParseLevel 解析 debug|info|warn|error；未知值回退 info。
func ParseLevel(s string) zapcore.Level {
	lv, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zapcore.InfoLevel
	}
	switch lv {
	case zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel:
		return lv
	}
	return zapcore.InfoLevel
}

// ValidLevel 报告 s 是否为受支持的级别名。
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		NameKey:        zapcore.OmitKey,
		CallerKey:      zapcore.OmitKey,
		StacktraceKey:  zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339),
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
}

// NewLogger 写入 dir 下以 prefix 命名的轮转文件（10MiB），error 同时写 stderr。
func NewLogger(corrID, level, dir, prefix string) *Logger {
	sink := NewRotatingFile(dir, prefix, 10*1024*1024)
	lv := ParseLevel(level)
	enc := zapcore.NewJSONEncoder(encoderConfig())
	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.AddSync(sink), lv),
		zapcore.NewCore(enc.Clone(), zapcore.Lock(os.Stderr), zapcore.ErrorLevel),
	)
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID)), sink: sink}
}

// NewLoggerTo 将事件写入 w（测试与自定义 sink）。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(w), ParseLevel(level))
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}
}

// Nop 返回丢弃全部事件的日志器。
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// Zap 暴露底层 zap.Logger。
func (l *Logger) Zap() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.z
}

// Close 刷新并关闭文件 sink。
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

func (l *Logger) log(lv zapcore.Level, comp, stage, msg string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	ce := l.z.Check(lv, msg)
	if ce == nil {
		return
	}
	fs := make([]zap.Field, 0, len(fields)+2)
	fs = append(fs, zap.String("comp", comp), zap.String("stage", stage))
	fs = append(fs, fields...)
	ce.Write(fs...)
}

func scope(shardID, batch string) []zap.Field {
	var fs []zap.Field
	if shardID != "" {
		fs = append(fs, zap.String("shard_id", shardID))
	}
	if batch != "" {
		fs = append(fs, zap.String("batch", batch))
	}
	return fs
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(zapcore.InfoLevel, comp, "start", msg)
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 shard_id/batch 的 start。
func (l *Logger) StartWith(comp, msg, shardID, batch string, fields ...zap.Field) *Timer {
	l.log(zapcore.InfoLevel, comp, "start", msg, append(scope(shardID, batch), fields...)...)
	return &Timer{l: l, comp: comp, shardID: shardID, batch: batch, t0: time.Now()}
}

// Info 记录 stage=event 的信息事件。
func (l *Logger) Info(comp, msg, shardID string, fields ...zap.Field) {
	l.log(zapcore.InfoLevel, comp, "event", msg, append(scope(shardID, ""), fields...)...)
}

// Debug 同 Info，仅在 level=debug 时输出。
func (l *Logger) Debug(comp, msg, shardID, batch string, fields ...zap.Field) {
	l.log(zapcore.DebugLevel, comp, "event", msg, append(scope(shardID, batch), fields...)...)
}

// Warn 记录告警事件。
func (l *Logger) Warn(comp, msg, shardID string, fields ...zap.Field) {
	l.log(zapcore.WarnLevel, comp, "event", msg, append(scope(shardID, ""), fields...)...)
}

// ErrorWith 记录 error 事件；durSince 非 nil 时附带 dur_ms。
func (l *Logger) ErrorWith(comp string, code Code, msg string, durSince *time.Time, shardID, batch string, fields ...zap.Field) {
	fs := []zap.Field{zap.String("code", string(code))}
	if durSince != nil {
		fs = append(fs, zap.Int64("dur_ms", time.Since(*durSince).Milliseconds()))
	}
	fs = append(fs, scope(shardID, batch)...)
	l.log(zapcore.ErrorLevel, comp, "error", msg, append(fs, fields...)...)
}

// Fail 按 Classify(err) 记录 error 事件。
func (l *Logger) Fail(comp string, err error, durSince *time.Time, shardID string) {
	if err == nil {
		return
	}
	l.ErrorWith(comp, Classify(err), err.Error(), durSince, shardID, "")
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l       *Logger
	comp    string
	shardID string
	batch   string
	t0      time.Time
}

// Since 返回起点（供 ErrorWith 计算耗时）。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}

// Finish 记录 finish；count 与附加字段可选。
func (t *Timer) Finish(msg string, count int64, fields ...zap.Field) {
	if t == nil || t.l == nil {
		return
	}
	fs := []zap.Field{zap.Int64("dur_ms", time.Since(t.t0).Milliseconds())}
	if count != 0 {
		fs = append(fs, zap.Int64("count", count))
	}
	fs = append(fs, scope(t.shardID, t.batch)...)
	t.l.log(zapcore.InfoLevel, t.comp, "finish", msg, append(fs, fields...)...)
}
