package log

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Record is the JSON line format for a log message from guest to host.
type Record struct {
	Time    time.Time  `json:"time"`
	Attrs   []AttrWire `json:"attrs,omitempty"`
	Level   string     `json:"level"`
	Message string     `json:"msg"`
	Source  string     `json:"source,omitempty"`
}

// AttrWire represents a single slog attribute for wire transfer.
type AttrWire struct {
	Key   string `json:"key"`
	Type  string `json:"type"`  // "string", "int64", "uint64", "bool", "float64", "time", "duration", "error", "json", "any"
	Value string `json:"value"` // String representation of the value
}

// flattenAttr converts attr to wire form, expanding groups into dotted keys.
func flattenAttr(prefix string, attr slog.Attr) []AttrWire {
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = prefix + attr.Key + "."
		}
		var out []AttrWire
		for _, member := range attr.Value.Group() {
			out = append(out, flattenAttr(groupPrefix, member)...)
		}
		return out
	}
	if attr.Equal(slog.Attr{}) {
		return nil
	}
	wire := toAttrWire(attr)
	wire.Key = prefix + wire.Key
	return []AttrWire{wire}
}

// toAttrWire converts a resolved, non-group slog.Attr to AttrWire.
func toAttrWire(attr slog.Attr) AttrWire {
	wire := AttrWire{
		Key: attr.Key,
	}
	attr.Value = attr.Value.Resolve()

	switch attr.Value.Kind() {
	case slog.KindString:
		wire.Type = "string"
		wire.Value = attr.Value.String()
	case slog.KindInt64:
		wire.Type = "int64"
		wire.Value = strconv.FormatInt(attr.Value.Int64(), 10)
	case slog.KindUint64:
		wire.Type = "uint64"
		wire.Value = strconv.FormatUint(attr.Value.Uint64(), 10)
	case slog.KindBool:
		wire.Type = "bool"
		wire.Value = strconv.FormatBool(attr.Value.Bool())
	case slog.KindFloat64:
		wire.Type = "float64"
		wire.Value = strconv.FormatFloat(attr.Value.Float64(), 'g', -1, 64)
	case slog.KindTime:
		wire.Type = "time"
		wire.Value = attr.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		wire.Type = "duration"
		wire.Value = attr.Value.Duration().String()
	case slog.KindAny:
		if v := attr.Value.Any(); v != nil {
			if err, isErr := v.(error); isErr {
				wire.Type = "error"
				wire.Value = err.Error()
			} else if data, marshalErr := json.Marshal(v); marshalErr == nil {
				wire.Type = "json"
				wire.Value = string(data)
			} else {
				wire.Type = "any"
				wire.Value = fmt.Sprintf("%v", v)
			}
		} else {
			wire.Type = "any"
			wire.Value = "<nil>"
		}
	default:
		wire.Type = "any"
		wire.Value = attr.Value.String()
	}
	return wire
}

// toSlogAttr reverses toAttrWire. Values that fail to parse are kept as strings.
func toSlogAttr(wire AttrWire) slog.Attr {
	switch wire.Type {
	case "int64":
		if v, err := strconv.ParseInt(wire.Value, 10, 64); err == nil {
			return slog.Int64(wire.Key, v)
		}
	case "uint64":
		if v, err := strconv.ParseUint(wire.Value, 10, 64); err == nil {
			return slog.Uint64(wire.Key, v)
		}
	case "bool":
		if v, err := strconv.ParseBool(wire.Value); err == nil {
			return slog.Bool(wire.Key, v)
		}
	case "float64":
		if v, err := strconv.ParseFloat(wire.Value, 64); err == nil {
			return slog.Float64(wire.Key, v)
		}
	case "time":
		if v, err := time.Parse(time.RFC3339Nano, wire.Value); err == nil {
			return slog.Time(wire.Key, v)
		}
	case "duration":
		if v, err := time.ParseDuration(wire.Value); err == nil {
			return slog.Duration(wire.Key, v)
		}
	case "json":
		return slog.Any(wire.Key, json.RawMessage(wire.Value))
	}
	return slog.String(wire.Key, wire.Value)
}

// parseLevel maps a slog level name (including offsets such as "DEBUG+2")
// back to a slog.Level. Unknown names map to info.
func parseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}
