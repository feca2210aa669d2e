package message

import (
	"reflect"
	"testing"
)

func int64p(v int64) *int64 { return &v }

func TestParseVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		want    Chain
	}{
		{
			name:    "plain only",
			content: "hello world",
			want:    Chain{Plain{Text: "hello world"}},
		},
		{
			name:    "empty input yields one empty text segment",
			content: "",
			want:    Chain{Plain{Text: ""}},
		},
		{
			name:    "all prefixes in order",
			content: "txt:a|img:http://x/y.png|at:123|face:1|plain",
			want: Chain{
				Plain{Text: "a"},
				Image{URL: "http://x/y.png"},
				At{Target: "123"},
				Face{FaceID: int64p(1), Name: "1"},
				Plain{Text: "plain"},
			},
		},
		{
			name:    "double pipe does not split",
			content: "a||b",
			want:    Chain{Plain{Text: "a||b"}},
		},
		{
			name:    "double pipe inside a prefixed piece",
			content: "txt:a||b|txt:c",
			want:    Chain{Plain{Text: "a||b"}, Plain{Text: "c"}},
		},
		{
			name:    "prefix match is case-insensitive",
			content: "TXT:upper|Img:pic|AT:42|FACE:abc",
			want: Chain{
				Plain{Text: "upper"},
				Image{URL: "pic"},
				At{Target: "42"},
				Face{Name: "abc"},
			},
		},
		{
			name:    "non-numeric face falls back to name",
			content: "face:smile",
			want:    Chain{Face{Name: "smile"}},
		},
		{
			name:    "payload may contain newlines",
			content: "txt:line1\nline2",
			want:    Chain{Plain{Text: "line1\nline2"}},
		},
		{
			name:    "empty pieces between separators survive",
			content: "a||b|",
			want:    Chain{Plain{Text: "a||b"}, Plain{Text: ""}},
		},
		{
			name:    "prefix only yields empty payload",
			content: "txt:",
			want:    Chain{Plain{Text: ""}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.content)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Parse(%q) = %#v, want %#v", tt.content, got, tt.want)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	base := Chain{}.Text("hi")
	a := base.Clone().At(int64(111))
	b := base.Clone().At(int64(222))

	if len(base) != 1 {
		t.Fatalf("base chain mutated: %#v", base)
	}
	if a[1].(At).Target != int64(111) || b[1].(At).Target != int64(222) {
		t.Fatalf("mentions leaked between clones: %#v %#v", a, b)
	}
}

func TestChainWireFormat(t *testing.T) {
	t.Parallel()
	chain := Chain{}.Text("hi").At(int64(42)).AtAll().Face(int64p(7), "7")
	got, err := chain.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON error: %v", err)
	}
	want := `[{"type":"Plain","text":"hi"},{"type":"At","target":42},{"type":"AtAll"},{"type":"Face","faceId":7,"name":"7"}]`
	if string(got) != want {
		t.Fatalf("wire form = %s, want %s", got, want)
	}
}
