package musicxml

import (
	"sort"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/ScoreShift/core/errors"
)

// Instruments maps the named playback presets to General MIDI programs (1-based).
var Instruments = map[string]int{
	"Acoustic_Grand_Piano": 1,
	"Church_Organ":         20,
	"String_Ensemble_1":    49,
	"Choir_Aahs":           53,
	"Pad_1_new_age":        89,
}

// ParseInstrument resolves a preset name (case-insensitive) or a program
// number in 1..128. An empty string yields 0, meaning "leave untouched".
func ParseInstrument(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 128 {
			return 0, errors.NewValidation("instrument", "program must be between 1 and 128")
		}
		return n, nil
	}
	for name, program := range Instruments {
		if strings.EqualFold(name, s) {
			return program, nil
		}
	}
	return 0, errors.NewValidation("instrument", "unknown preset "+strconv.Quote(s))
}

// InstrumentNames returns the preset names in program order.
func InstrumentNames() []string {
	names := make([]string, 0, len(Instruments))
	for name := range Instruments {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return Instruments[names[i]] < Instruments[names[j]]
	})
	return names
}
