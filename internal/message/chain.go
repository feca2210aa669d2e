// Package message models the mirai message chain: an ordered sequence of
// typed segments rendered left-to-right by the gateway.
package message

import "encoding/json"

// Segment is one element of a message chain.
type Segment interface {
	// Kind returns the wire-level type tag ("Plain", "Image", ...).
	Kind() string
}

// Plain is literal text; "\n" renders as a line break.
type Plain struct {
	Text string
}

// Image references an image by URL.
type Image struct {
	URL string
}

// At mentions one user. Target is the user id; it may be an int64 (from
// configured mention lists) or a verbatim string (from parsed content).
type At struct {
	Target any
}

// AtAll mentions every member of a group.
type AtAll struct{}

// Face is a built-in emoticon, addressed by id (preferred) or name.
type Face struct {
	FaceID *int64
	Name   string
}

func (Plain) Kind() string { return "Plain" }
func (Image) Kind() string { return "Image" }
func (At) Kind() string    { return "At" }
func (AtAll) Kind() string { return "AtAll" }
func (Face) Kind() string  { return "Face" }

// Chain is an ordered message. The zero value is ready to use.
type Chain []Segment

// Text appends a text segment.
func (c Chain) Text(text string) Chain { return append(c, Plain{Text: text}) }

// Image appends an image segment.
func (c Chain) Image(url string) Chain { return append(c, Image{URL: url}) }

// At appends a mention of the given user id.
func (c Chain) At(target any) Chain { return append(c, At{Target: target}) }

// AtAll appends a mention of everyone.
func (c Chain) AtAll() Chain { return append(c, AtAll{}) }

// Face appends an emoticon segment. A numeric id takes priority over name.
func (c Chain) Face(id *int64, name string) Chain { return append(c, Face{FaceID: id, Name: name}) }

// Clone returns an independent copy so per-recipient additions (mentions)
// never leak into another recipient's message.
func (c Chain) Clone() Chain {
	cp := make(Chain, len(c))
	copy(cp, c)
	return cp
}

// MarshalJSON renders the chain in mirai-api-http wire form:
// [{"type":"Plain","text":...}, {"type":"At","target":...}, ...].
func (c Chain) MarshalJSON() ([]byte, error) {
	out := make([]any, len(c))
	for i, s := range c {
		out[i] = wireSegment(s)
	}
	return json.Marshal(out)
}

func wireSegment(s Segment) any {
	switch v := s.(type) {
	case Plain:
		return struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{"Plain", v.Text}
	case Image:
		return struct {
			Type string `json:"type"`
			URL  string `json:"url"`
		}{"Image", v.URL}
	case At:
		return struct {
			Type   string `json:"type"`
			Target any    `json:"target"`
		}{"At", v.Target}
	case AtAll:
		return struct {
			Type string `json:"type"`
		}{"AtAll"}
	case Face:
		return struct {
			Type   string `json:"type"`
			FaceID *int64 `json:"faceId,omitempty"`
			Name   string `json:"name,omitempty"`
		}{"Face", v.FaceID, v.Name}
	default:
		return struct {
			Type string `json:"type"`
		}{s.Kind()}
	}
}
