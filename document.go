package patcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unsafe"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// JSONObject is a raw JSON document as read from or written to disk.
type JSONObject []byte

const pathOutbounds = "outbounds"

var prettyOptions = &pretty.Options{Width: 80, Indent: "  "}

// MarshalIndent renders the document with 2-space indentation and a trailing newline.
func (c *XrayConfig) MarshalIndent() (JSONObject, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// normalize strips comments and returns compact JSON with sorted keys,
// or false when the input is not valid JSON.
func normalize(doc []byte) (JSONObject, bool) {
	doc = jsonc.ToJSON(doc)
	if !gjson.ValidBytes(doc) {
		return nil, false
	}
	sorted := pretty.PrettyOptions(doc, &pretty.Options{Width: 80, Indent: "  ", SortKeys: true})
	return pretty.Ugly(sorted), true
}

// SameJSON reports whether a and b hold structurally equal JSON values,
// ignoring key order, whitespace and comments.
func SameJSON(a, b []byte) bool {
	na, ok := normalize(a)
	if !ok {
		return false
	}
	nb, ok := normalize(b)
	if !ok {
		return false
	}
	return bytes.Equal(na, nb)
}

// patchOutbounds splices the generated outbounds into a full Xray config.
// Existing outbounds sharing a tag with a generated one are replaced in place,
// new tags are appended, everything else is preserved.
func patchOutbounds(prev JSONObject, c *XrayConfig) (JSONObject, error) {
	doc := []byte("{}")
	if len(bytes.TrimSpace(prev)) > 0 {
		doc = jsonc.ToJSON(prev)
		if !gjson.ValidBytes(doc) {
			return nil, fmt.Errorf("xray config file is not a valid JSON file")
		}
	}
	if !gjson.ParseBytes(doc).IsObject() {
		return nil, fmt.Errorf("xray config file is not a JSON object")
	}
	outbounds := gjson.GetBytes(doc, pathOutbounds)
	if outbounds.Exists() && !outbounds.IsArray() {
		return nil, fmt.Errorf(pathOutbounds + " is not an array")
	}

	generated := make(map[string]gjson.Result, len(c.Outbounds))
	for _, o := range c.Outbounds {
		raw, err := json.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal outbound %q: %w", o.Tag, err)
		}
		generated[o.Tag] = gjson.ParseBytes(raw)
	}

	var (
		newOutbounds []gjson.Result
		placed       = make(map[string]bool, len(generated))
	)
	outbounds.ForEach(func(_, outbound gjson.Result) bool {
		tag := outbound.Get("tag").String()
		g, ok := generated[tag]
		switch {
		case !ok:
			newOutbounds = append(newOutbounds, outbound)
		case !placed[tag]:
			newOutbounds = append(newOutbounds, g)
			placed[tag] = true
		}
		return true
	})
	for _, tag := range lo.Reject(c.Tags(), func(tag string, _ int) bool { return placed[tag] }) {
		newOutbounds = append(newOutbounds, generated[tag])
	}

	out, err := sjson.SetRawBytes(doc, pathOutbounds, toRawBytes(newOutbounds))
	if err != nil {
		return nil, fmt.Errorf("failed to set %s: %w", pathOutbounds, err)
	}
	return pretty.PrettyOptions(out, prettyOptions), nil
}

// firstOutboundTag is the tag of the default outbound, which Xray picks by position.
func firstOutboundTag(doc []byte) string {
	return gjson.GetBytes(jsonc.ToJSON(doc), pathOutbounds+".0.tag").String()
}

func toRawBytes(rs []gjson.Result) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte('[')
	for idx, r := range rs {
		_, _ = buf.Write(unsafe.Slice(unsafe.StringData(r.Raw), len(r.Raw)))
		if idx < len(rs)-1 {
			buf.WriteByte(',')
		}
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
