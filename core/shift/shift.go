// Package shift parses transposition requests such as "+2", "down 3",
// "Eb->G", "to D" or "random" and resolves them to a semitone count.
package shift

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/ScoreShift/core/errors"
	"github.com/FocuswithJustin/ScoreShift/core/pitch"
	"github.com/FocuswithJustin/ScoreShift/core/transpose"
)

// Kind identifies the form of a shift expression.
type Kind int

const (
	// Fixed is a literal semitone count ("+2", "-5", "up 3", "down 1").
	Fixed Kind = iota
	// KeyToKey moves from one named key to another ("Eb->G").
	KeyToKey
	// ToKey moves from the document's key to a named key ("to G"),
	// keeping the document's mode.
	ToKey
	// Random picks a shift in [MinRandom, MaxRandom].
	Random
)

// Bounds of random and key-relative shifts.
const (
	MinRandom = -5
	MaxRandom = 6
)

// MaxSemitones bounds fixed shifts in either direction (ten octaves).
const MaxSemitones = 120

// Expr is a parsed shift expression.
type Expr struct {
	Kind      Kind   `json:"kind"`
	Semitones int    `json:"semitones,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

// exprGrammar is the participle grammar for shift expressions.
// Examples: "+2", "-5", "7", "up 3", "down 1", "Eb->G", "to F#", "random"
//
//nolint:govet // participle grammar tags are not standard struct tags
type exprGrammar struct {
	Random bool      `  @"random"`
	Move   *moveExpr `| @@`
	To     *string   `| "to" @Key`
	Pair   *keyPair  `| @@`
	Offset *int      `| @Int`
}

//nolint:govet // participle grammar tags are not standard struct tags
type moveExpr struct {
	Direction string `@( "up" | "down" )`
	Amount    int    `@Int`
}

//nolint:govet // participle grammar tags are not standard struct tags
type keyPair struct {
	From string `@Key "->"`
	To   string `@Key`
}

// exprLexer defines the tokens of a shift expression.
// Keys start with an uppercase letter; words are lowercase.
var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Arrow", Pattern: `->`},
	{Name: "Int", Pattern: `[-+]?[0-9]+`},
	{Name: "Key", Pattern: `[A-G][#b]?`},
	{Name: "Ident", Pattern: `[a-z]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var exprParser = participle.MustBuild[exprGrammar](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
)

// Parse parses a shift expression.
func Parse(s string) (Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Expr{}, errors.NewValidation("shift", "empty shift expression")
	}

	parsed, err := exprParser.ParseString("", s)
	if err != nil {
		return Expr{}, errors.NewParse("shift", s, err.Error())
	}

	switch {
	case parsed.Random:
		return Expr{Kind: Random}, nil
	case parsed.Move != nil:
		if parsed.Move.Amount < 0 {
			return Expr{}, errors.NewValidation("shift", "amount after "+parsed.Move.Direction+" must not be negative")
		}
		n := parsed.Move.Amount
		if parsed.Move.Direction == "down" {
			n = -n
		}
		return fixed(n)
	case parsed.To != nil:
		return Expr{Kind: ToKey, To: *parsed.To}, nil
	case parsed.Pair != nil:
		return Expr{Kind: KeyToKey, From: parsed.Pair.From, To: parsed.Pair.To}, nil
	case parsed.Offset != nil:
		return fixed(*parsed.Offset)
	}
	return Expr{}, errors.NewParse("shift", s, "unrecognised expression")
}

func fixed(n int) (Expr, error) {
	if err := checkBound(n); err != nil {
		return Expr{}, err
	}
	return Expr{Kind: Fixed, Semitones: n}, nil
}

func checkBound(n int) error {
	if n < -MaxSemitones || n > MaxSemitones {
		return errors.NewValidation("shift", fmt.Sprintf("must be between %d and %d semitones", -MaxSemitones, MaxSemitones))
	}
	return nil
}

// Semitones returns a fixed shift of n semitones.
func Semitones(n int) Expr {
	return Expr{Kind: Fixed, Semitones: n}
}

// NeedsKey reports whether Resolve depends on the document's key signature.
func (e Expr) NeedsKey() bool {
	return e.Kind == ToKey
}

// Resolve turns e into a semitone count for a document in a major key.
// fifths is the key signature of the document being transposed and is only
// consulted for ToKey expressions. rng is used for Random; nil selects the
// package-level generator.
func (e Expr) Resolve(fifths int, rng *rand.Rand) (int, error) {
	return e.ResolveIn(fifths, "major", rng)
}

// ResolveIn is Resolve for a document in the given mode. A ToKey expression
// names the target tonic, so "to F" takes an A minor score to F minor.
// Modes other than "minor" resolve as major.
func (e Expr) ResolveIn(fifths int, mode string, rng *rand.Rand) (int, error) {
	switch e.Kind {
	case Fixed:
		if err := checkBound(e.Semitones); err != nil {
			return 0, err
		}
		return e.Semitones, nil
	case Random:
		span := MaxRandom - MinRandom + 1
		if rng == nil {
			return MinRandom + rand.IntN(span), nil
		}
		return MinRandom + rng.IntN(span), nil
	case KeyToKey:
		from, err := keyClass(e.From)
		if err != nil {
			return 0, err
		}
		to, err := keyClass(e.To)
		if err != nil {
			return 0, err
		}
		return normalize(to - from), nil
	case ToKey:
		if _, ok := transpose.TableFor(fifths).Index(fifths); !ok {
			return 0, errors.NewUnknownKeySignature(strconv.Itoa(fifths))
		}
		to, err := keyClass(e.To)
		if err != nil {
			return 0, err
		}
		tonic := transpose.Semitone(fifths)
		if mode == "minor" {
			tonic += 9
		}
		return normalize(to - tonic), nil
	}
	return 0, fmt.Errorf("unknown shift kind %d", e.Kind)
}

// String formats e in the syntax Parse accepts.
func (e Expr) String() string {
	switch e.Kind {
	case Random:
		return "random"
	case KeyToKey:
		return e.From + "->" + e.To
	case ToKey:
		return "to " + e.To
	}
	return fmt.Sprintf("%+d", e.Semitones)
}

// keyClass returns the pitch class of a key name such as "Eb" or "F#".
func keyClass(name string) (int, error) {
	if name == "" {
		return 0, errors.NewValidation("shift", "missing key name")
	}
	step, err := pitch.ParseStep(name[:1])
	if err != nil {
		return 0, err
	}
	p := pitch.Pitch{Step: step}
	switch name[1:] {
	case "":
	case "#":
		p.Alter = 1
	case "b":
		p.Alter = -1
	default:
		return 0, errors.NewValidation("shift", "invalid key name "+strconv.Quote(name))
	}
	return ((p.MIDI() % 12) + 12) % 12, nil
}

// normalize maps a semitone difference into [MinRandom, MaxRandom].
func normalize(d int) int {
	d = ((d % 12) + 12) % 12
	if d > MaxRandom {
		d -= 12
	}
	return d
}
