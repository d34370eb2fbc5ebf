package patcher

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestSameJSON(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{`{"a":1,"b":[1,2]}`, `{ "b": [1, 2], "a": 1 }`, true},
		{`{"a":{"x":1,"y":2}}`, "{\"a\":{\"y\":2, /* c */ \"x\":1}}\n", true},
		{`{"a":[1,2]}`, `{"a":[2,1]}`, false},
		{`{"a":"x y"}`, `{"a":"xy"}`, false},
		{`{"a":1}`, `{"a":1,"b":null}`, false},
		{`{"a":1}`, `{not json`, false},
	}
	for _, c := range cases {
		if got := SameJSON([]byte(c.a), []byte(c.b)); got != c.want {
			t.Fatalf("SameJSON(%s, %s)=%v, want=%v", c.a, c.b, got, c.want)
		}
	}
}

func TestPatchOutbounds_EmptyConfig(t *testing.T) {
	conf := NewXrayConfig(BuildOutbound(Subscription{Tag: "proxy"}, sampleCredentials()))
	for _, prev := range []JSONObject{nil, JSONObject("  \n")} {
		got, err := patchOutbounds(prev, conf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want, _ := conf.MarshalIndent()
		if !SameJSON(got, want) {
			t.Fatalf("got:\n%s\nwant:\n%s", got, want)
		}
	}
}

func TestPatchOutbounds_DuplicateTagsCollapse(t *testing.T) {
	conf := NewXrayConfig(BuildOutbound(Subscription{Tag: "proxy"}, sampleCredentials()))
	prev := JSONObject(`{"outbounds":[{"tag":"proxy"},{"tag":"direct"},{"tag":"proxy"}]}`)
	got, err := patchOutbounds(prev, conf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tags := gjson.GetBytes(got, "outbounds.#.tag").String(); tags != `["proxy","direct"]` {
		t.Fatalf("tags=%s", tags)
	}
	if got[len(got)-1] != '\n' {
		t.Fatalf("patched config must end with a newline")
	}
}

func TestPatchOutbounds_Errors(t *testing.T) {
	conf := NewXrayConfig()
	for _, prev := range []string{`{broken`, `[1,2]`, `{"outbounds":"x"}`} {
		if _, err := patchOutbounds(JSONObject(prev), conf); err == nil {
			t.Fatalf("%s: expected an error", prev)
		}
	}
}

func TestFirstOutboundTag(t *testing.T) {
	doc := []byte("{\n// comment\n\"outbounds\":[{\"tag\":\"direct\"},{\"tag\":\"proxy\"}]}")
	if got := firstOutboundTag(doc); got != "direct" {
		t.Fatalf("got=%q, want=direct", got)
	}
	if got := firstOutboundTag(nil); got != "" {
		t.Fatalf("got=%q, want empty", got)
	}
}
