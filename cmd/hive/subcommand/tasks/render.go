package tasks

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/claytonsingh/golib/dotaccess"
	"github.com/goccy/go-yaml"
	"github.com/jackadi-io/hive/cmd/hive/option"
	"github.com/jackadi-io/hive/cmd/hive/style"
	"github.com/jackadi-io/hive/internal/serializer"
	"github.com/jackadi-io/hive/internal/task"
	"github.com/spf13/cast"
)

func prettyTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.DateTime)
}

func prettyTaskListSprint(records []task.Record) string {
	if len(records) == 0 {
		return style.Subtitle("no task")
	}
	if option.GetSortOutput() {
		slices.SortStableFunc(records, func(a, b task.Record) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			string(r.TaskID),
			string(r.DroneID),
			r.Command.String(),
			r.Alias,
			style.RenderStatus(r.Status),
			r.Issuer,
			prettyTime(r.CreatedAt),
		})
	}
	headers := []string{"TASK", "DRONE", "COMMAND", "ALIAS", "STATUS", "ISSUER", "CREATED"}
	return style.SpacedBlock(style.Table(headers, rows))
}

func prettyTaskSprint(r task.Record, showResult bool, columns []string) string {
	in := style.Title(string(r.TaskID))
	in += style.InlineBlockTitle("drone") + string(r.DroneID)
	in += style.InlineBlockTitle("command") + r.Command.String()
	in += style.InlineBlockTitle("alias") + r.Alias
	in += style.InlineBlockTitle("status") + style.RenderStatus(r.Status)
	in += style.InlineBlockTitle("issuer") + r.Issuer
	in += style.InlineBlockTitle("created") + prettyTime(r.CreatedAt)
	in += style.InlineBlockTitle("started") + prettyTime(r.StartTime)
	in += style.InlineBlockTitle("ended") + prettyTime(r.EndTime)
	if r.ArtefactPath != "" {
		in += style.InlineBlockTitle("artefact") + r.ArtefactPath
	}

	if len(r.Arguments) > 0 {
		args, err := yaml.MarshalWithOptions(r.Arguments, yaml.UseLiteralStyleIfMultiline(true))
		if err != nil {
			args = []byte(strings.Join(r.Arguments, " "))
		}
		in += style.BlockTitle("arguments") + style.Block(string(args))
	}

	if showResult {
		in += style.BlockTitle("result") + renderResult(r, columns)
	}
	return in + "\n"
}

func renderResult(r task.Record, columns []string) string {
	if r.Result == "" {
		return style.Block(style.Emph("empty"))
	}

	switch r.ResultType {
	case task.TABLE:
		if headers, rows, ok := parseTable(r.Result, columns); ok {
			return style.Block(style.Table(headers, rows))
		}
	case task.BINARY:
		return style.Block(fmt.Sprintf("%d bytes of binary output, save them with --output", len(r.Result)))
	}
	return style.Block(r.Result)
}

// parseTable reads a JSON array of objects, or whitespace separated columns
// with a header line. When columns is set, only those columns are kept; for
// JSON they are dotted paths into each object (e.g. "owner.name").
func parseTable(result string, columns []string) ([]string, [][]string, bool) {
	var items []map[string]any
	if err := serializer.JSON.Unmarshal([]byte(result), &items); err == nil && len(items) > 0 {
		headers := columns
		if len(headers) == 0 {
			keys := map[string]struct{}{}
			for _, item := range items {
				for k := range item {
					keys[k] = struct{}{}
				}
			}
			headers = slices.Sorted(maps.Keys(keys))
		}

		rows := make([][]string, 0, len(items))
		for _, item := range items {
			row := make([]string, len(headers))
			for i, h := range headers {
				row[i] = cell(lookup(item, h))
			}
			rows = append(rows, row)
		}
		return headers, rows, true
	}

	var lines []string
	for line := range strings.Lines(result) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return nil, nil, false
	}

	headers := strings.Fields(lines[0])
	rows := make([][]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		row := make([]string, len(headers))
		for i := range row {
			switch {
			case i >= len(fields):
			case i == len(row)-1:
				// the last column keeps the rest of the line
				row[i] = strings.Join(fields[i:], " ")
			default:
				row[i] = fields[i]
			}
		}
		rows = append(rows, row)
	}
	if len(columns) == 0 {
		return headers, rows, true
	}
	return selectColumns(headers, rows, columns)
}

func selectColumns(headers []string, rows [][]string, columns []string) ([]string, [][]string, bool) {
	idx := make([]int, 0, len(columns))
	kept := make([]string, 0, len(columns))
	for _, c := range columns {
		if i := slices.Index(headers, c); i >= 0 {
			idx = append(idx, i)
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil, nil, false
	}

	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		r := make([]string, len(idx))
		for j, i := range idx {
			r[j] = row[i]
		}
		out = append(out, r)
	}
	return kept, out, true
}

func lookup(item map[string]any, path string) any {
	if v, ok := item[path]; ok {
		return v
	}
	a, err := dotaccess.NewAccessorDot[any, map[string]any](&item, path)
	if err != nil {
		return nil
	}
	v := a.Get()
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return rv.Elem().Interface()
	}
	return v
}

func cell(v any) string {
	if v == nil {
		return ""
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	data, err := serializer.JSON.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
