package vsdb

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TimeLayout is the layout of Commit.Timestamp, in local time.
const TimeLayout = "2006-01-02 15:04:05"

// Entry is one file in a commit: its name relative to the snapshot directory
// and the ref of its contents.
type Entry struct {
	Name string
	Ref  Ref
}

// Commit is an immutable snapshot record.
// Its identity is the hash of its canonical encoding (see Encode).
type Commit struct {
	Message   string
	Timestamp string
	Parent    Ref // Zero for the first commit in a history
	Entries   []Entry
}

// Header keys of the canonical encoding, in order.
const (
	keyMessage   = "message"
	keyTimestamp = "timestamp"
	keyParent    = "parent"
	keyFiles     = "files"
)

// Validate checks that c can be encoded.
// Every entry name must be a plain filename, unique within c.
func (c *Commit) Validate() error {
	seen := make(map[string]struct{}, len(c.Entries))
	for _, e := range c.Entries {
		if e.Name == "" || e.Name == "." || e.Name == ".." {
			return fmt.Errorf("invalid entry name %q", e.Name)
		}
		if strings.ContainsAny(e.Name, "\n\r/") {
			return fmt.Errorf("invalid entry name %q", e.Name)
		}
		if _, ok := seen[e.Name]; ok {
			return fmt.Errorf("duplicate entry name %q", e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}

// SortEntries sorts c's entries by name, in place.
func (c *Commit) SortEntries() {
	sort.Slice(c.Entries, func(i, j int) bool { return c.Entries[i].Name < c.Entries[j].Name })
}

// Encode produces the canonical encoding of c.
// Entries are emitted sorted by name regardless of their order in c.
//
//	message=<quoted message>
//	timestamp=<timestamp>
//	parent=<hex, or empty>
//	files=<count>
//	<name>:<hex>
//	...
func (c *Commit) Encode() Blob {
	entries := make([]Entry, len(c.Entries))
	copy(entries, c.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "%s=%s\n", keyMessage, strconv.Quote(c.Message))
	fmt.Fprintf(buf, "%s=%s\n", keyTimestamp, c.Timestamp)
	if c.Parent.IsZero() {
		fmt.Fprintf(buf, "%s=\n", keyParent)
	} else {
		fmt.Fprintf(buf, "%s=%s\n", keyParent, c.Parent)
	}
	fmt.Fprintf(buf, "%s=%d\n", keyFiles, len(entries))
	for _, e := range entries {
		fmt.Fprintf(buf, "%s:%s\n", e.Name, e.Ref)
	}
	return buf.Bytes()
}

// Ref computes the identity of c: the ref of its canonical encoding.
func (c *Commit) Ref() Ref {
	return c.Encode().Ref()
}

// Lookup finds the entry with the given name.
func (c *Commit) Lookup(name string) (Ref, bool) {
	for _, e := range c.Entries {
		if e.Name == name {
			return e.Ref, true
		}
	}
	return Zero, false
}

// DecodeCommit parses the canonical encoding of a commit.
// Errors satisfy errors.Is(err, ErrMalformedCommit).
func DecodeCommit(b Blob) (*Commit, error) {
	c, err := decodeCommit(string(b))
	if err != nil {
		return nil, WithKind(ErrMalformedCommit, err)
	}
	return c, nil
}

func decodeCommit(s string) (*Commit, error) {
	if !strings.HasSuffix(s, "\n") {
		return nil, errors.New("missing final newline")
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")

	header := make([]string, 0, 4)
	for i, key := range []string{keyMessage, keyTimestamp, keyParent, keyFiles} {
		if i >= len(lines) {
			return nil, fmt.Errorf("header incomplete: missing %s", key)
		}
		val, ok := strings.CutPrefix(lines[i], key+"=")
		if !ok {
			return nil, fmt.Errorf("header incomplete: line %d is not %s=", i+1, key)
		}
		header = append(header, val)
	}

	var c Commit

	msg, err := strconv.Unquote(header[0])
	if err != nil {
		return nil, errors.Wrapf(err, "unquoting message %s", header[0])
	}
	c.Message = msg
	c.Timestamp = header[1]

	if header[2] != "" {
		c.Parent, err = RefFromHex(header[2])
		if err != nil {
			return nil, errors.Wrap(err, "parsing parent")
		}
	}

	n, err := strconv.Atoi(header[3])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("bad file count %q", header[3])
	}
	body := lines[4:]
	if len(body) != n {
		return nil, fmt.Errorf("file count %d does not match %d entry lines", n, len(body))
	}

	c.Entries = make([]Entry, 0, n)
	for i, line := range body {
		idx := strings.LastIndexByte(line, ':')
		if idx < 0 {
			return nil, fmt.Errorf("entry line %d lacks name:digest separator", i+1)
		}
		ref, err := RefFromHex(line[idx+1:])
		if err != nil {
			return nil, errors.Wrapf(err, "parsing entry line %d", i+1)
		}
		name := line[:idx]
		if i > 0 && name <= c.Entries[i-1].Name {
			return nil, fmt.Errorf("entry %q out of order", name)
		}
		c.Entries = append(c.Entries, Entry{Name: name, Ref: ref})
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
