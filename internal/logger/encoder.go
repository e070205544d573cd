package logger

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// consoleEncoder renders info-level entries as the bare message as they form the user-facing output of the tool. All
// other levels get a timestamp, level and domain prefix followed by the structured fields on a separate line.
type consoleEncoder struct {
	fields zapcore.Encoder
}

func newEncoder() *consoleEncoder {
	return &consoleEncoder{fields: zapcore.NewJSONEncoder(fieldEncoderConfig)}
}

func (c *consoleEncoder) Clone() zapcore.Encoder {
	return &consoleEncoder{fields: c.fields.Clone()}
}

func (c *consoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := pool.Get()

	if ent.Level == zapcore.InfoLevel {
		line.AppendString(ent.Message)
		line.AppendByte('\n')
		return line, nil
	}

	line.AppendString(ent.Time.Format(timeFormat))
	line.AppendByte(' ')
	line.AppendString(levelToColor(ent.Level).Sprintf("%-7s", ent.Level.CapitalString()))
	line.AppendByte(' ')
	line.AppendString(fmt.Sprintf(nameEncoderPattern, ent.LoggerName))
	line.AppendString(ent.Message)

	b, err := c.fields.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		line.Free()
		return nil, err
	}
	defer b.Free()

	if buf := bytes.TrimSpace(b.Bytes()); len(buf) > 2 { // An empty field set encodes to "{}".
		line.AppendString(fieldPrefix)
		line.Write(buf) //nolint:errcheck // Writes to a buffer never fail.
	}
	line.AppendByte('\n')
	return line, nil
}

// Field-only encoding is delegated to the JSON encoder while the entry level data is handled above.
func (c *consoleEncoder) AddArray(k string, v zapcore.ArrayMarshaler) error   { return c.fields.AddArray(k, v) }
func (c *consoleEncoder) AddObject(k string, v zapcore.ObjectMarshaler) error { return c.fields.AddObject(k, v) }
func (c *consoleEncoder) AddBinary(k string, v []byte)                        { c.fields.AddBinary(k, v) }
func (c *consoleEncoder) AddByteString(k string, v []byte)                    { c.fields.AddByteString(k, v) }
func (c *consoleEncoder) AddBool(k string, v bool)                            { c.fields.AddBool(k, v) }
func (c *consoleEncoder) AddComplex128(k string, v complex128)                { c.fields.AddComplex128(k, v) }
func (c *consoleEncoder) AddComplex64(k string, v complex64)                  { c.fields.AddComplex64(k, v) }
func (c *consoleEncoder) AddDuration(k string, v time.Duration)               { c.fields.AddDuration(k, v) }
func (c *consoleEncoder) AddFloat64(k string, v float64)                      { c.fields.AddFloat64(k, v) }
func (c *consoleEncoder) AddFloat32(k string, v float32)                      { c.fields.AddFloat32(k, v) }
func (c *consoleEncoder) AddInt(k string, v int)                              { c.fields.AddInt(k, v) }
func (c *consoleEncoder) AddInt64(k string, v int64)                          { c.fields.AddInt64(k, v) }
func (c *consoleEncoder) AddInt32(k string, v int32)                          { c.fields.AddInt32(k, v) }
func (c *consoleEncoder) AddInt16(k string, v int16)                          { c.fields.AddInt16(k, v) }
func (c *consoleEncoder) AddInt8(k string, v int8)                            { c.fields.AddInt8(k, v) }
func (c *consoleEncoder) AddString(k, v string)                               { c.fields.AddString(k, v) }
func (c *consoleEncoder) AddTime(k string, v time.Time)                       { c.fields.AddTime(k, v) }
func (c *consoleEncoder) AddUint(k string, v uint)                            { c.fields.AddUint(k, v) }
func (c *consoleEncoder) AddUint64(k string, v uint64)                        { c.fields.AddUint64(k, v) }
func (c *consoleEncoder) AddUint32(k string, v uint32)                        { c.fields.AddUint32(k, v) }
func (c *consoleEncoder) AddUint16(k string, v uint16)                        { c.fields.AddUint16(k, v) }
func (c *consoleEncoder) AddUint8(k string, v uint8)                          { c.fields.AddUint8(k, v) }
func (c *consoleEncoder) AddUintptr(k string, v uintptr)                      { c.fields.AddUintptr(k, v) }
func (c *consoleEncoder) AddReflected(k string, v interface{}) error          { return c.fields.AddReflected(k, v) }
func (c *consoleEncoder) OpenNamespace(k string)                              { c.fields.OpenNamespace(k) }

const timeFormat = "15:04:05"

var (
	pool = buffer.NewPool()

	fieldEncoderConfig = zapcore.EncoderConfig{
		// No entry-level keys: time, level, name and message are rendered by the console encoder itself.
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	levelColors = map[zapcore.Level]*color.Color{
		zapcore.DPanicLevel: color.New(color.FgHiRed),
		zapcore.PanicLevel:  color.New(color.FgHiRed),
		zapcore.FatalLevel:  color.New(color.FgRed),
		zapcore.ErrorLevel:  color.New(color.FgRed),
		zapcore.WarnLevel:   color.New(color.FgYellow),
		zapcore.DebugLevel:  color.New(color.FgMagenta),
	}
	defaultColor = color.New(color.FgBlue)
)

func levelToColor(l zapcore.Level) *color.Color {
	if c, ok := levelColors[l]; ok {
		return c
	}
	return defaultColor
}

var (
	nameEncoderPattern string
	fieldPrefix        string
)

func init() {
	var l int
	for n := range domainFromString {
		if l < len(n) {
			l = len(n)
		}
	}
	nameEncoderPattern = fmt.Sprintf("%%-%ds", l+1)
	fieldPrefix = "\n" + strings.Repeat(" ", len(timeFormat)+1+7+1+l+1)
}
