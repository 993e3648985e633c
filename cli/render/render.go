// Package render provides centralized output rendering for the warden CLI.
//
// Format selection rules:
//   - If output is a TTY, default to table
//   - If output is not a TTY, default to json
//   - --format always overrides defaults
//   - Invalid formats are errors
//
// JSON field names are canonical: yaml output and table headers reuse the
// json tags so every format names fields the same way.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/warden/cli/tui"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil // caller decides
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from CLI context.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}

	if format == "" {
		if isTTY(os.Stdout) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	return &Renderer{
		format:  format,
		noColor: c.Bool("no-color"),
		out:     os.Stdout,
	}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
	}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI runs the read-only TUI for viewType.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data)
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// renderYAML routes data through its JSON form so keys match the json tags
// and keep declaration order.
func (r *Renderer) renderYAML(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return fmt.Errorf("failed to convert to yaml: %w", err)
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle clears the flow and quoting styles inherited from JSON.
// Strings that would read back as something else stay quoted.
func blockStyle(n *yaml.Node) {
	if n.Kind != yaml.ScalarNode || n.Tag != "!!str" || !needsQuotes(n.Value) {
		n.Style = 0
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func needsQuotes(s string) bool {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return true
	}
	str, ok := v.(string)
	return !ok || str != s
}

func (r *Renderer) renderTable(data any) error {
	v := indirect(reflect.ValueOf(data))
	if !v.IsValid() {
		fmt.Fprintln(r.out, "(no results)")
		return nil
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		r.writeSliceTable(w, v)
	case reflect.Struct:
		r.writeStructTable(w, v)
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			fmt.Fprintf(w, "%v:\t%s\n", iter.Key().Interface(), formatValue(iter.Value()))
		}
	default:
		fmt.Fprintf(w, "%v\n", data)
	}
	return w.Flush()
}

// writeStructTable prints scalar fields as "name: value" lines, flattening
// nested structs with a dotted prefix. Slices of structs follow as
// sub-tables under their field name.
func (r *Renderer) writeStructTable(w *tabwriter.Writer, v reflect.Value) {
	var nested []namedValue
	r.writeFields(w, v, "", &nested)

	for _, n := range nested {
		w.Flush()
		fmt.Fprintf(w, "\n%s:\n", n.name)
		r.writeSliceTable(w, n.value)
	}
}

type namedValue struct {
	name  string
	value reflect.Value
}

func (r *Renderer) writeFields(w *tabwriter.Writer, v reflect.Value, prefix string, nested *[]namedValue) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := fieldName(f)
		if name == "" {
			continue
		}
		name = prefix + name
		fv := v.Field(i)

		inner := indirect(fv)
		switch {
		case inner.IsValid() && inner.Kind() == reflect.Struct && !isTime(inner):
			r.writeFields(w, inner, name+".", nested)
		case isStructSlice(fv) && fv.Len() > 0:
			*nested = append(*nested, namedValue{name: name, value: fv})
		default:
			fmt.Fprintf(w, "%s:\t%s\n", name, formatValue(fv))
		}
	}
}

func (r *Renderer) writeSliceTable(w *tabwriter.Writer, v reflect.Value) {
	if v.Len() == 0 {
		fmt.Fprintln(w, "(no results)")
		return
	}

	first := indirect(v.Index(0))
	if first.Kind() != reflect.Struct {
		for i := 0; i < v.Len(); i++ {
			fmt.Fprintln(w, formatValue(v.Index(i)))
		}
		return
	}

	cols := columns(first.Type(), "")
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.name
	}
	fmt.Fprintln(w, strings.Join(headers, "\t"))

	for i := 0; i < v.Len(); i++ {
		row := indirect(v.Index(i))
		values := make([]string, len(cols))
		for j, c := range cols {
			values[j] = formatValue(fieldByIndex(row, c.index))
		}
		fmt.Fprintln(w, strings.Join(values, "\t"))
	}
}

type column struct {
	name  string
	index []int
}

// columns flattens the scalar fields of t, expanding one level of nested
// struct values.
func columns(t reflect.Type, prefix string) []column {
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := fieldName(f)
		if !f.IsExported() || name == "" {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Ptr && ft.Elem().Kind() == reflect.Struct {
			// optional detail (e.g. a metrics snapshot) is too wide for a row
			continue
		}
		if ft.Kind() == reflect.Struct && ft != timeType && prefix == "" {
			for _, c := range columns(ft, name+".") {
				cols = append(cols, column{name: c.name, index: append([]int{i}, c.index...)})
			}
			continue
		}
		cols = append(cols, column{name: prefix + name, index: []int{i}})
	}
	return cols
}

// fieldByIndex walks index through pointers; nil pointers yield an invalid value.
func fieldByIndex(v reflect.Value, index []int) reflect.Value {
	for _, i := range index {
		v = indirect(v)
		if !v.IsValid() {
			return v
		}
		v = v.Field(i)
	}
	return v
}

func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return strings.ToLower(f.Name)
}

var timeType = reflect.TypeOf(time.Time{})

func isTime(v reflect.Value) bool {
	return v.Type() == timeType
}

func isStructSlice(v reflect.Value) bool {
	if v.Kind() != reflect.Slice {
		return false
	}
	et := v.Type().Elem()
	for et.Kind() == reflect.Ptr {
		et = et.Elem()
	}
	return et.Kind() == reflect.Struct && et != timeType
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func formatValue(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		if t, ok := v.Interface().(time.Time); ok {
			if t.IsZero() {
				return ""
			}
			return t.Format(time.RFC3339)
		}
		return "{...}"
	case reflect.String:
		return strings.ReplaceAll(v.String(), "\n", " ")
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// isTTY returns true if f is a terminal.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
