package logging

import (
	"encoding/json"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var bufferPool = buffer.NewPool()

// IngestEncoder writes one flat JSON object per line, with logger fields
// merged at the top level, for log shippers that index top-level keys.
type IngestEncoder struct {
	*zapcore.MapObjectEncoder
	config zapcore.EncoderConfig
}

// NewIngestEncoder creates a new flat JSON encoder
func NewIngestEncoder(config zapcore.EncoderConfig) zapcore.Encoder {
	return &IngestEncoder{
		MapObjectEncoder: zapcore.NewMapObjectEncoder(),
		config:           config,
	}
}

// EncodeEntry encodes a log entry together with the fields bound via With.
func (e *IngestEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	enc := zapcore.NewMapObjectEncoder()
	for k, v := range e.Fields {
		enc.Fields[k] = v
	}
	for _, field := range fields {
		field.AddTo(enc)
	}

	obj := enc.Fields
	for k, v := range obj {
		switch val := v.(type) {
		case time.Duration:
			obj[k] = val.String()
		case time.Time:
			obj[k] = val.UTC().Format(time.RFC3339Nano)
		}
	}

	obj["timestamp"] = entry.Time.UTC().Format(time.RFC3339Nano)
	obj["level"] = entry.Level.String()
	obj["message"] = entry.Message
	if entry.LoggerName != "" {
		obj["logger"] = entry.LoggerName
	}
	if entry.Caller.Defined {
		obj["file"] = entry.Caller.File
		obj["line"] = entry.Caller.Line
		obj["function"] = entry.Caller.Function
	}
	if entry.Stack != "" {
		obj["stack"] = entry.Stack
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}

	buf := bufferPool.Get()
	buf.AppendBytes(data)
	buf.AppendString(zapcore.DefaultLineEnding)
	return buf, nil
}

// Clone creates a copy of the encoder including its bound fields
func (e *IngestEncoder) Clone() zapcore.Encoder {
	clone := zapcore.NewMapObjectEncoder()
	for k, v := range e.Fields {
		clone.Fields[k] = v
	}
	return &IngestEncoder{
		MapObjectEncoder: clone,
		config:           e.config,
	}
}
