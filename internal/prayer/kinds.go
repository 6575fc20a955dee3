// Package prayer defines the ordered spoken units of a rosary and the
// one-time generation step that produces them.
package prayer

import (
	"fmt"
	"time"
)

// Kind identifies which prayer a unit speaks.
type Kind int

const (
	KindSignOfCross Kind = iota
	KindCreed
	KindOurFather
	KindHailMary
	KindGloryBe
	KindFatima
	KindMystery
	KindHailHolyQueen
	KindFinalPrayer
)

var kindNames = []string{
	KindSignOfCross:   "sign_of_cross",
	KindCreed:         "creed",
	KindOurFather:     "our_father",
	KindHailMary:      "hail_mary",
	KindGloryBe:       "glory_be",
	KindFatima:        "fatima",
	KindMystery:       "mystery",
	KindHailHolyQueen: "hail_holy_queen",
	KindFinalPrayer:   "final_prayer",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown prayer kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := parseName(kindNames, string(b), "prayer kind")
	if err != nil {
		return err
	}
	*k = Kind(v)
	return nil
}

// Form selects how much of the rosary is prayed.
type Form int

const (
	FormFull Form = iota
	FormSingleDecade
)

var formNames = []string{
	FormFull:         "full",
	FormSingleDecade: "decade",
}

func (f Form) String() string {
	if f < 0 || int(f) >= len(formNames) {
		return fmt.Sprintf("form(%d)", int(f))
	}
	return formNames[f]
}

func (f Form) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= len(formNames) {
		return nil, fmt.Errorf("unknown form %d", int(f))
	}
	return []byte(formNames[f]), nil
}

func (f *Form) UnmarshalText(b []byte) error {
	v, err := parseName(formNames, string(b), "form")
	if err != nil {
		return err
	}
	*f = Form(v)
	return nil
}

// MysterySet is the group of five mysteries meditated on in the decades.
type MysterySet int

const (
	MysteriesJoyful MysterySet = iota
	MysteriesSorrowful
	MysteriesGlorious
	MysteriesLuminous
)

var mysterySetNames = []string{
	MysteriesJoyful:    "joyful",
	MysteriesSorrowful: "sorrowful",
	MysteriesGlorious:  "glorious",
	MysteriesLuminous:  "luminous",
}

func (m MysterySet) String() string {
	if m < 0 || int(m) >= len(mysterySetNames) {
		return fmt.Sprintf("mysteries(%d)", int(m))
	}
	return mysterySetNames[m]
}

func (m MysterySet) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(mysterySetNames) {
		return nil, fmt.Errorf("unknown mystery set %d", int(m))
	}
	return []byte(mysterySetNames[m]), nil
}

func (m *MysterySet) UnmarshalText(b []byte) error {
	v, err := parseName(mysterySetNames, string(b), "mystery set")
	if err != nil {
		return err
	}
	*m = MysterySet(v)
	return nil
}

// DefaultMysteries returns the set traditionally prayed on the given weekday.
func DefaultMysteries(day time.Weekday) MysterySet {
	switch day {
	case time.Monday, time.Saturday:
		return MysteriesJoyful
	case time.Tuesday, time.Friday:
		return MysteriesSorrowful
	case time.Thursday:
		return MysteriesLuminous
	default:
		return MysteriesGlorious
	}
}

// Season is the liturgical season, which only affects the acclamation
// spoken after each doxology.
type Season int

const (
	SeasonOrdinary Season = iota
	SeasonEaster
	SeasonLent
)

var seasonNames = []string{
	SeasonOrdinary: "ordinary",
	SeasonEaster:   "easter",
	SeasonLent:     "lent",
}

func (s Season) String() string {
	if s < 0 || int(s) >= len(seasonNames) {
		return fmt.Sprintf("season(%d)", int(s))
	}
	return seasonNames[s]
}

func (s Season) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(seasonNames) {
		return nil, fmt.Errorf("unknown season %d", int(s))
	}
	return []byte(seasonNames[s]), nil
}

func (s *Season) UnmarshalText(b []byte) error {
	v, err := parseName(seasonNames, string(b), "season")
	if err != nil {
		return err
	}
	*s = Season(v)
	return nil
}

func parseName(names []string, s, what string) (int, error) {
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", what, s)
}
