package message

import (
	"strconv"
	"strings"
)

// Parse turns a raw webhook content string into a message chain. It is pure
// and total: any input yields a chain, never an error.
//
// The content is split on "|" into pieces, except that "||" is an escaped
// literal pipe pair and does not split (both characters stay in the piece).
// Each piece is then matched case-insensitively against the prefixes
// "txt:", "img:", "at:", "face:" in that fixed priority order; the rest of
// the piece after the prefix (including newlines) is the segment payload.
// A piece with no recognized prefix becomes plain text verbatim.
func Parse(content string) Chain {
	pieces := splitPieces(content)
	chain := make(Chain, 0, len(pieces))
	for _, piece := range pieces {
		switch {
		case hasPrefixFold(piece, "txt:"):
			chain = chain.Text(piece[len("txt:"):])
		case hasPrefixFold(piece, "img:"):
			chain = chain.Image(piece[len("img:"):])
		case hasPrefixFold(piece, "at:"):
			chain = chain.At(piece[len("at:"):])
		case hasPrefixFold(piece, "face:"):
			rest := piece[len("face:"):]
			if id, err := strconv.ParseInt(rest, 10, 64); err == nil {
				chain = chain.Face(&id, rest)
			} else {
				chain = chain.Face(nil, rest)
			}
		default:
			chain = chain.Text(piece)
		}
	}
	return chain
}

// splitPieces splits on single "|" separators. A "||" pair never splits; it
// is kept verbatim inside the current piece. Empty input yields one empty
// piece, so Parse("") produces a single empty text segment.
func splitPieces(s string) []string {
	var pieces []string
	var buf strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '|' {
			if i+1 < len(s) && s[i+1] == '|' {
				buf.WriteString("||")
				i += 2
				continue
			}
			pieces = append(pieces, buf.String())
			buf.Reset()
			i++
			continue
		}
		buf.WriteByte(s[i])
		i++
	}
	pieces = append(pieces, buf.String())
	return pieces
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
