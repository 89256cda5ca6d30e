package flatten

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
)

// maxLineSize bounds a single line of a raw payload. Yahoo often returns
// the whole XML document on one line.
const maxLineSize = 16 << 20

// ErrRecordShape means a record does not have exactly one key per rule plus
// the ID. It points at a bug in the rule table or the parser and aborts the
// run.
var ErrRecordShape = errors.New("flattened record has unexpected keys")

// Record is one flattened player.
type Record struct {
	ID     string
	Fields map[string]Value
}

// NewRecord returns a record with every rule field absent.
func NewRecord(id string) Record {
	fields := make(map[string]Value, len(Rules))
	for _, rule := range Rules {
		fields[rule.Field] = Value{}
	}
	return Record{ID: id, Fields: fields}
}

// Check asserts the key count is len(Rules)+1 and that every key belongs to
// the rule table.
func (r Record) Check() error {
	if got, want := len(r.Fields)+1, len(Rules)+1; got != want {
		return fmt.Errorf("%w: record %s has %d keys, want %d", ErrRecordShape, r.ID, got, want)
	}
	for _, rule := range Rules {
		if _, ok := r.Fields[rule.Field]; !ok {
			return fmt.Errorf("%w: record %s is missing %q", ErrRecordShape, r.ID, rule.Field)
		}
	}
	return nil
}

// MarshalJSON writes the rule fields in table order followed by yahoo_id.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, rule := range Rules {
		if err := writeMember(&buf, rule.Field, r.Fields[rule.Field]); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
	}
	if err := writeMember(&buf, IDField, r.ID); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// valuePattern matches the first non-empty element text on a line.
var valuePattern = regexp.MustCompile(`>(.+?)<`)

// ParseRecord scans a raw payload line by line. A line containing a rule's
// opening tag contributes one value to that rule: the first non-empty
// ">...<" text on the line, whichever element it belongs to. Lines with no
// such text are skipped. A payload without any known tag still yields a
// record.
func ParseRecord(id string, r io.Reader) (Record, error) {
	rec := NewRecord(id)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		for _, rule := range Rules {
			if !strings.Contains(line, rule.marker()) {
				continue
			}
			if v, ok := extract(line); ok {
				rec.Fields[rule.Field] = rec.Fields[rule.Field].Add(v)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Record{}, fmt.Errorf("scan %s: %w", id, err)
	}
	return rec, nil
}

func extract(line string) (string, bool) {
	m := valuePattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}
