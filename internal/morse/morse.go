// internal/morse/morse.go
// Package morse maps between characters and dot/dash codes using a fixed
// binary tree of Morse symbols.
package morse

import (
	"strings"
	"unicode"
)

// Symbol is a single Morse element.
type Symbol byte

const (
	// Dot is the short element
	Dot Symbol = '.'
	// Dash is the long element
	Dash Symbol = '-'
)

const (
	// Root is the tree index before any symbol has been keyed
	Root = 0
	// MaxIndex is the deepest reachable tree index; Advance clamps here
	MaxIndex = len(Tree) - 1
	// MaxSequenceLength is the longest dot/dash sequence kept while decoding (floor(log2(64)) + 1)
	MaxSequenceLength = 7
	// Unknown marks an unmappable character or an unused tree slot
	Unknown = '?'
	// WordSeparator is emitted by Encode for a space between words
	WordSeparator = '_'
	// LetterSeparator is emitted by Encode between the codes of adjacent characters
	LetterSeparator = ' '
)

// Tree is the Morse binary tree in heap order.
// Index 0 is the root placeholder. The dot child of i is 2i+1, the dash child 2i+2.
// Unused slots hold Unknown.
var Tree = [64]rune{
	'?', // 0: root
	'E', // 1: .
	'T', // 2: -
	'I', // 3: ..
	'A', // 4: .-
	'N', // 5: -.
	'M', // 6: --
	'S', // 7: ...
	'U', // 8: ..-
	'R', // 9: .-.
	'W', // 10: .--
	'D', // 11: -..
	'K', // 12: -.-
	'G', // 13: --.
	'O', // 14: ---
	'H', // 15: ....
	'V', // 16: ...-
	'F', // 17: ..-.
	'?', // 18: ..-- (Ü)
	'L', // 19: .-..
	'?', // 20: .-.- (Ä)
	'P', // 21: .--.
	'J', // 22: .---
	'B', // 23: -...
	'X', // 24: -..-
	'C', // 25: -.-.
	'Y', // 26: -.--
	'Z', // 27: --..
	'Q', // 28: --.-
	'?', // 29: ---. (Ö)
	'?', // 30: ----
	'5', // 31: .....
	'4', // 32: ....-
	'?', // 33: ...-.
	'3', // 34: ...--
	'?', // 35: ..-..
	'?', // 36: ..-.-
	'?', // 37: ..--.
	'2', // 38: ..---
	'?', // 39: .-...
	'?', // 40: .-..-
	'+', // 41: .-.-.
	'?', // 42: .-.--
	'?', // 43: .--..
	'?', // 44: .--.-
	'?', // 45: .---.
	'1', // 46: .----
	'6', // 47: -....
	'=', // 48: -...-
	'/', // 49: -..-.
	'?', // 50: -..--
	'?', // 51: -.-..
	'?', // 52: -.-.-
	'?', // 53: -.--.
	'?', // 54: -.---
	'7', // 55: --...
	'?', // 56: --..-
	'?', // 57: --.-.
	'?', // 58: --.--
	'8', // 59: ---..
	'?', // 60: ---.-
	'9', // 61: ----.
	'0', // 62: -----
	'?', // 63: overflow sink
}

// treeIndex maps each real character in Tree to its slot
var treeIndex = func() map[rune]int {
	m := make(map[rune]int, len(Tree))
	for i, r := range Tree {
		if r != Unknown {
			m[r] = i
		}
	}
	return m
}()

// Advance moves from index one level down the tree, clamping at MaxIndex.
func Advance(index int, s Symbol) int {
	step := 2
	if s == Dot {
		step = 1
	}
	next := 2*index + step
	if next > MaxIndex || next < Root {
		return MaxIndex
	}
	return next
}

// LetterAt returns the character at index, or Unknown for the root, unused
// slots and indices outside the tree.
func LetterAt(index int) rune {
	if index < 0 || index > MaxIndex {
		return Unknown
	}
	return Tree[index]
}

// Sequence returns the dot/dash path from the root to index.
// The root and out-of-range indices give an empty string.
func Sequence(index int) string {
	if index <= Root || index > MaxIndex {
		return ""
	}
	var path [MaxSequenceLength]byte
	n := len(path)
	for index > Root {
		n--
		if index%2 == 1 {
			path[n] = byte(Dot)
		} else {
			path[n] = byte(Dash)
		}
		index = (index - 1) / 2
	}
	return string(path[n:])
}

// EncodeChar returns the dot/dash code for r (case-insensitive), or "?" when
// r has no slot in the tree.
func EncodeChar(r rune) string {
	index, ok := treeIndex[unicode.ToUpper(r)]
	if !ok {
		return string(Unknown)
	}
	return Sequence(index)
}

// Encode converts text to Morse. Characters are separated by a single space,
// a space in the input becomes WordSeparator and newlines pass through.
func Encode(text string) string {
	var b strings.Builder
	b.Grow(len(text) * 4)

	started := false
	var prev rune
	for _, r := range text {
		switch r {
		case ' ':
			b.WriteRune(WordSeparator)
		case '\n':
			b.WriteRune(r)
		default:
			if started && prev != ' ' && prev != '\n' {
				b.WriteByte(LetterSeparator)
			}
			b.WriteString(EncodeChar(r))
		}
		prev = r
		started = true
	}
	return b.String()
}

// Decode converts Morse produced by Encode back to text. Codes that do not
// resolve to a character decode as Unknown.
func Decode(code string) string {
	var b strings.Builder
	b.Grow(len(code) / 2)

	index, pending, valid := Root, false, true
	flush := func() {
		if !pending {
			return
		}
		if valid {
			b.WriteRune(LetterAt(index))
		} else {
			b.WriteRune(Unknown)
		}
		index, pending, valid = Root, false, true
	}

	for _, r := range code {
		switch r {
		case rune(Dot), rune(Dash):
			index = Advance(index, Symbol(r))
			pending = true
		case LetterSeparator, '\t', '\r':
			flush()
		case WordSeparator:
			flush()
			b.WriteByte(' ')
		case '\n':
			flush()
			b.WriteRune(r)
		default:
			pending, valid = true, false
		}
	}
	flush()
	return b.String()
}
