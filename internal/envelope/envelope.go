// Package envelope wraps a marshalled value together with the tag set it
// was saved with, so a backend that does not maintain its own item->tags
// reverse index (Redis) can still answer "what tags does this item carry"
// from a single read — the information deleteItems needs to clean up tag
// relations (spec.md §8 "After deleteItems([k])... the tag-relation no
// longer references k").
package envelope

import (
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Encode prepends a URL-encoded, comma-joined tag header line to payload.
func Encode(tags []string, payload []byte) []byte {
	header := encodeTags(tags)
	buf := make([]byte, 0, len(header)+1+len(payload))
	buf = append(buf, header...)
	buf = append(buf, '\n')
	buf = append(buf, payload...)
	return buf
}

// Decode splits data back into its tag set and payload.
func Decode(data []byte) (tags []string, payload []byte, err error) {
	idx := indexByte(data, '\n')
	if idx < 0 {
		return nil, nil, fmt.Errorf("envelope: missing tag header")
	}
	tags = decodeTags(string(data[:idx]))
	return tags, data[idx+1:], nil
}

// DecodeFrom reads an envelope off r, for callers streaming from a file.
func DecodeFrom(r io.Reader, headerLine string) (tags []string, payload []byte, err error) {
	tags = decodeTags(strings.TrimSuffix(headerLine, "\n"))
	payload, err = io.ReadAll(r)
	return tags, payload, err
}

func encodeTags(tags []string) string {
	escaped := make([]string, len(tags))
	for i, t := range tags {
		escaped[i] = url.PathEscape(t)
	}
	return strings.Join(escaped, ",")
}

func decodeTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t, err := url.PathUnescape(p); err == nil {
			tags = append(tags, t)
		}
	}
	return tags
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
