package logging

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// record is the flattened view of a log event handed to sinks.
type record struct {
	Time    time.Time
	Level   slog.Level
	Name    string // originating logger name
	Line    int    // source line, 0 if unknown
	Message string
}

// Template placeholders. Each maps to one record field.
const (
	fieldNone = iota
	fieldAsctime
	fieldLevelName
	fieldName
	fieldLineNo
	fieldMessage
)

// asctimeLayout renders timestamps as "2006-01-02 15:04:05,123" with a
// millisecond suffix separated by a comma.
const asctimeLayout = "2006-01-02 15:04:05"

type segment struct {
	lit   string
	field int
}

// Formatter is a compiled output template. Templates use %(field)verb
// placeholders; the recognized fields are asctime, levelname, name, lineno and
// message. %% renders a literal percent sign.
type Formatter struct {
	segs []segment
}

// compileFormat validates and compiles a template string. Unknown placeholders
// are a configuration error so that typos surface at load time, not as garbage
// output.
func compileFormat(name, tmpl string) (*Formatter, error) {
	var (
		segs []segment
		lit  strings.Builder
	)
	flushLit := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{lit: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		if c != '%' {
			lit.WriteByte(c)
			i++
			continue
		}
		if i+1 < len(tmpl) && tmpl[i+1] == '%' {
			lit.WriteByte('%')
			i += 2
			continue
		}
		if i+1 >= len(tmpl) || tmpl[i+1] != '(' {
			return nil, configErrf("formatters", name, "stray %% at offset %d", i)
		}
		end := strings.IndexByte(tmpl[i+2:], ')')
		if end < 0 {
			return nil, configErrf("formatters", name, "unterminated placeholder at offset %d", i)
		}
		field := tmpl[i+2 : i+2+end]
		i += 2 + end + 1
		// Consume the printf-style verb (and any width/precision flags).
		j := i
		for j < len(tmpl) && (tmpl[j] == '-' || tmpl[j] == '.' || (tmpl[j] >= '0' && tmpl[j] <= '9')) {
			j++
		}
		if j >= len(tmpl) {
			return nil, configErrf("formatters", name, "placeholder %%(%s) missing verb", field)
		}
		i = j + 1

		kind, ok := placeholderField(field)
		if !ok {
			return nil, configErrf("formatters", name, "unknown placeholder %%(%s)", field)
		}
		flushLit()
		segs = append(segs, segment{field: kind})
	}
	flushLit()
	return &Formatter{segs: segs}, nil
}

func placeholderField(name string) (int, bool) {
	switch name {
	case "asctime":
		return fieldAsctime, true
	case "levelname":
		return fieldLevelName, true
	case "name":
		return fieldName, true
	case "lineno":
		return fieldLineNo, true
	case "message":
		return fieldMessage, true
	default:
		return fieldNone, false
	}
}

// render appends the formatted record, newline-terminated, to buf.
func (f *Formatter) render(buf []byte, r record) []byte {
	for _, s := range f.segs {
		if s.field == fieldNone {
			buf = append(buf, s.lit...)
			continue
		}
		switch s.field {
		case fieldAsctime:
			buf = r.Time.AppendFormat(buf, asctimeLayout)
			buf = append(buf, ',')
			ms := r.Time.Nanosecond() / int(time.Millisecond)
			if ms < 100 {
				buf = append(buf, '0')
			}
			if ms < 10 {
				buf = append(buf, '0')
			}
			buf = strconv.AppendInt(buf, int64(ms), 10)
		case fieldLevelName:
			buf = append(buf, levelName(r.Level)...)
		case fieldName:
			buf = append(buf, r.Name...)
		case fieldLineNo:
			buf = strconv.AppendInt(buf, int64(r.Line), 10)
		case fieldMessage:
			buf = append(buf, r.Message...)
		}
	}
	return append(buf, '\n')
}
