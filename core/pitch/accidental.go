package pitch

import (
	"github.com/FocuswithJustin/ScoreShift/core/errors"
)

// MusicXML accidental values written for each supported alteration.
const (
	AccidentalNatural     = "natural"
	AccidentalSharp       = "sharp"
	AccidentalDoubleSharp = "double-sharp"
	AccidentalFlat        = "flat"
	AccidentalDoubleFlat  = "double-flat"
)

// AccidentalFor returns the displayed accidental for an alteration.
// Only -2..2 have a spelling; anything else is ErrUnsupportedAlteration.
func AccidentalFor(alter int) (string, error) {
	switch alter {
	case 0:
		return AccidentalNatural, nil
	case 1:
		return AccidentalSharp, nil
	case 2:
		return AccidentalDoubleSharp, nil
	case -1:
		return AccidentalFlat, nil
	case -2:
		return AccidentalDoubleFlat, nil
	}
	return "", errors.NewUnsupportedAlteration(alter)
}
