package musicxml

import (
	"math"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/FocuswithJustin/ScoreShift/core/errors"
	"github.com/FocuswithJustin/ScoreShift/core/pitch"
)

// readPitch reads the step, alter and octave children of a <pitch> element.
// A missing <alter> means 0.
func readPitch(n *xmlquery.Node) (pitch.Pitch, error) {
	var p pitch.Pitch

	stepEl := childElement(n, "step")
	if stepEl == nil {
		return p, errors.NewMalformedPitch("step", "", "missing")
	}
	step, err := pitch.ParseStep(stepEl.InnerText())
	if err != nil {
		return p, err
	}
	p.Step = step

	if alterEl := childElement(n, "alter"); alterEl != nil {
		alter, err := parseAlter(alterEl.InnerText())
		if err != nil {
			return p, err
		}
		p.Alter = alter
	}

	octaveEl := childElement(n, "octave")
	if octaveEl == nil {
		return p, errors.NewMalformedPitch("octave", "", "missing")
	}
	text := strings.TrimSpace(octaveEl.InnerText())
	octave, err := strconv.Atoi(text)
	if err != nil {
		return p, errors.NewMalformedPitch("octave", text, "must be an integer")
	}
	p.Octave = octave
	return p, nil
}

// parseAlter accepts integral values only ("1", "-2", "1.0").
// Fractional alters are microtonal and not supported.
func parseAlter(raw string) (int, error) {
	text := strings.TrimSpace(raw)
	if v, err := strconv.Atoi(text); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, errors.NewMalformedPitch("alter", text, "must be a number")
	}
	if f != math.Trunc(f) {
		return 0, errors.NewMalformedPitch("alter", text, "microtonal alterations are not supported")
	}
	return int(f), nil
}

// writePitch stores p into an existing <pitch> element, keeping the
// step, alter, octave order. <alter> is dropped when p has no alteration.
func writePitch(n *xmlquery.Node, p pitch.Pitch) {
	stepEl := childElement(n, "step")
	setText(stepEl, p.Step.String())

	alterEl := childElement(n, "alter")
	switch {
	case p.Alter == 0 && alterEl != nil:
		xmlquery.RemoveFromTree(alterEl)
	case p.Alter != 0 && alterEl != nil:
		setText(alterEl, strconv.Itoa(p.Alter))
	case p.Alter != 0:
		insertAfter(stepEl, newElement("alter", strconv.Itoa(p.Alter)))
	}

	setText(childElement(n, "octave"), strconv.Itoa(p.Octave))
}
