package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PrettyHandler is a slog.Handler that writes one indented JSON object per
// record. time, level and msg come first, then attributes in the order they
// were logged. Values implementing fmt.Stringer with multi-line output (boards)
// are split into a list of lines so they stay readable.
//
// It is meant for interactive use and is not tuned for throughput.
type PrettyHandler struct {
	w         io.Writer
	mu        *sync.Mutex
	level     slog.Leveler
	addSource bool

	attrs  []boundAttr
	groups []string
}

// boundAttr remembers the groups open when WithAttrs was called.
type boundAttr struct {
	groups []string
	attr   slog.Attr
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{w: w, mu: &sync.Mutex{}, level: slog.LevelInfo}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.addSource = opts.AddSource
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	when := r.Time
	if when.IsZero() {
		when = time.Now()
	}

	obj := &object{}
	obj.set("time", when.Format(time.RFC3339Nano))
	obj.set("level", r.Level.String())
	obj.set("msg", r.Message)
	if h.addSource {
		if src := source(r.PC); src != "" {
			obj.set("source", src)
		}
	}

	for _, b := range h.attrs {
		obj.descend(b.groups).add(b.attr)
	}
	dst := obj.descend(h.groups)
	r.Attrs(func(a slog.Attr) bool {
		dst.add(a)
		return true
	})

	var buf bytes.Buffer
	obj.write(&buf, "")
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]boundAttr(nil), h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, boundAttr{groups: h.groups, attr: a})
	}
	return &clone
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// object is an insertion-ordered JSON object.
type object struct {
	keys []string
	vals []any
}

func (o *object) set(k string, v any) {
	for i, key := range o.keys {
		if key == k {
			o.vals[i] = v
			return
		}
	}
	o.keys = append(o.keys, k)
	o.vals = append(o.vals, v)
}

func (o *object) child(k string) *object {
	for i, key := range o.keys {
		if key == k {
			if c, ok := o.vals[i].(*object); ok {
				return c
			}
		}
	}
	c := &object{}
	o.set(k, c)
	return c
}

func (o *object) descend(groups []string) *object {
	dst := o
	for _, g := range groups {
		dst = dst.child(g)
	}
	return dst
}

func (o *object) add(a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		attrs := v.Group()
		if len(attrs) == 0 {
			return
		}
		dst := o
		if a.Key != "" {
			dst = o.child(a.Key)
		}
		for _, ga := range attrs {
			dst.add(ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	o.set(a.Key, plain(v))
}

func (o *object) write(buf *bytes.Buffer, indent string) {
	if len(o.keys) == 0 {
		buf.WriteString("{}")
		return
	}
	inner := indent + "  "
	buf.WriteString("{\n")
	for i, k := range o.keys {
		buf.WriteString(inner)
		buf.WriteString(strconv.Quote(k))
		buf.WriteString(": ")
		if c, ok := o.vals[i].(*object); ok {
			c.write(buf, inner)
		} else {
			b, err := json.MarshalIndent(o.vals[i], inner, "  ")
			if err != nil {
				b = []byte(strconv.Quote(fmt.Sprint(o.vals[i])))
			}
			buf.Write(b)
		}
		if i < len(o.keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString(indent)
	buf.WriteByte('}')
}

func plain(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		x := v.Any()
		if err, ok := x.(error); ok {
			return err.Error()
		}
		if s, ok := x.(fmt.Stringer); ok {
			if text := s.String(); strings.Contains(text, "\n") {
				return strings.Split(strings.TrimRight(text, "\n"), "\n")
			}
		}
		return x
	}
	return v.String()
}

func source(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	f, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if f.File == "" {
		return ""
	}
	file := f.File
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return file + ":" + strconv.Itoa(f.Line)
}
