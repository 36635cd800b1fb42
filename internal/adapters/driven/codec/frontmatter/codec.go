package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/flcm/internal/core/domain"
	"github.com/custodia-labs/flcm/internal/core/ports/driven"
)

// Ensure Codec implements the interface.
var _ driven.Codec = (*Codec)(nil)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("frontmatter: missing header block")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("frontmatter: malformed header block")
)

const (
	fence = "---\n"

	// TimeLayout is the layout of created/modified header values.
	TimeLayout = time.RFC3339Nano
)

// Codec is the YAML frontmatter implementation of driven.Codec.
type Codec struct{}

// New creates a frontmatter codec.
func New() *Codec {
	return &Codec{}
}

// Serialize renders the header block followed by body, unmodified.
func (c *Codec) Serialize(doc domain.Document, body string) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("frontmatter: nil document")
	}
	h := doc.Head()
	if h.ID == "" {
		return nil, fmt.Errorf("frontmatter: document missing id")
	}
	header, err := encodeHeader(doc)
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("frontmatter: encode header: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(fence)
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n" + fence + "\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// Parse splits header from body and decodes a fully-defaulted document.
// The body is returned verbatim.
func (c *Codec) Parse(data []byte) (domain.Document, string, error) {
	head, body, err := split(data)
	if err != nil {
		return nil, "", err
	}
	var kind struct {
		Type string `yaml:"flcm_type"`
	}
	if err := yaml.Unmarshal(head, &kind); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	decode, ok := decoders[domain.DocumentType(kind.Type)]
	if !ok {
		return nil, "", fmt.Errorf("%w: flcm_type %q", domain.ErrUnsupportedType, kind.Type)
	}
	doc, err := decode(head)
	if err != nil {
		return nil, "", err
	}
	return doc, body, nil
}

// ParseHeader decodes only the header block into raw fields.
func (c *Codec) ParseHeader(data []byte) (map[string]any, error) {
	head, _, err := split(data)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := yaml.Unmarshal(head, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	return fields, nil
}

// ParseHeaderBlock decodes a bare YAML header without fences.
func ParseHeaderBlock(block []byte) (map[string]any, error) {
	fields := map[string]any{}
	if err := yaml.Unmarshal(block, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	return fields, nil
}

// split separates the YAML header from the body. Line endings are
// normalised in the header only; the body after the closing fence and its
// blank separator line is returned byte for byte.
func split(content []byte) ([]byte, string, error) {
	first, rest, ok := cutLine(content)
	if !ok || string(first) != "---" {
		return nil, "", ErrMissingFrontMatter
	}
	var head bytes.Buffer
	for len(rest) > 0 {
		line, next, ok := cutLine(rest)
		if string(line) == "---" {
			return head.Bytes(), string(trimSeparator(next)), nil
		}
		if !ok {
			break
		}
		head.Write(line)
		head.WriteByte('\n')
		rest = next
	}
	return nil, "", ErrMalformedFrontMatter
}

// cutLine returns the first line of b without its terminator, and the
// remainder. ok reports whether a terminator was found.
func cutLine(b []byte) (line, rest []byte, ok bool) {
	line, rest, ok = bytes.Cut(b, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r")), rest, ok
}

// trimSeparator drops the single blank line written after the header.
func trimSeparator(body []byte) []byte {
	if b, ok := bytes.CutPrefix(body, []byte("\n")); ok {
		return b
	}
	if b, ok := bytes.CutPrefix(body, []byte("\r\n")); ok {
		return b
	}
	return body
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func parseTime(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(TimeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrMalformedFrontMatter, field, err)
	}
	return t.UTC(), nil
}
