package prayer

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
)

// HailMaryVariants is the number of interchangeable Hail Mary recordings per
// voice. One is picked per unit at generation time.
const HailMaryVariants = 3

// Logical audio paths, relative to a voice directory and without extension.
const (
	PathSignOfCross   = "prayers/sign_of_cross"
	PathCreed         = "prayers/creed"
	PathOurFather     = "prayers/our_father"
	PathGloryBe       = "prayers/glory_be"
	PathAlleluia      = "prayers/alleluia"
	PathFatima        = "prayers/fatima"
	PathHailHolyQueen = "prayers/hail_holy_queen"
	PathFinalPrayer   = "prayers/final_prayer"
)

// HailMaryPath returns the logical path of a Hail Mary take (1-based).
func HailMaryPath(variant int) string {
	return fmt.Sprintf("prayers/hail_mary_%d", variant)
}

// Generate produces the ordered unit list for a session. All randomness is
// consumed here; the result is deterministic to replay and must be stored
// rather than regenerated. A nil rng seeds one from the clock.
func Generate(s Settings, rng *rand.Rand) []Unit {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	g := &generator{settings: s, rng: rng}
	g.opening()

	decades := lo.RangeFrom(1, 5)
	if s.Form == FormSingleDecade {
		decades = []int{max(s.Decade, 1)}
	}
	for _, d := range decades {
		g.decade(d)
	}

	g.closing()
	return g.units
}

type generator struct {
	settings Settings
	rng      *rand.Rand
	units    []Unit
}

func (g *generator) add(u Unit) {
	u.Order = len(g.units)
	g.units = append(g.units, u)
}

func (g *generator) hailMary() AudioRef {
	return Single(HailMaryPath(g.rng.Intn(HailMaryVariants) + 1))
}

// doxology pairs the Glory Be with the acclamation, which is not said in Lent.
func (g *generator) doxology() AudioRef {
	acclamation := PathAlleluia
	if g.settings.Season == SeasonLent {
		acclamation = ""
	}
	return Pair(PathGloryBe, acclamation)
}

func (g *generator) doxologyText() string {
	if g.settings.Season == SeasonLent {
		return textGloryBe
	}
	return textGloryBe + " " + textAlleluia
}

func (g *generator) opening() {
	g.add(Unit{ID: "open-cross", Kind: KindSignOfCross, Title: "Sign of the Cross", Text: textSignOfCross, Group: GroupOpening, Audio: Single(PathSignOfCross)})
	g.add(Unit{ID: "open-creed", Kind: KindCreed, Title: "Apostles' Creed", Text: textCreed, Group: GroupOpening, Audio: Single(PathCreed)})
	g.add(Unit{ID: "open-our-father", Kind: KindOurFather, Title: "Our Father", Text: textOurFather, Group: GroupOpening, Audio: Single(PathOurFather)})

	for i, virtue := range []string{"Faith", "Hope", "Charity"} {
		g.add(Unit{
			ID:       fmt.Sprintf("open-hm%d", i+1),
			Kind:     KindHailMary,
			Title:    "Hail Mary for " + virtue,
			Text:     textHailMary,
			Group:    GroupOpening,
			Position: i + 1,
			Audio:    g.hailMary(),
		})
	}

	g.add(Unit{ID: "open-glory", Kind: KindGloryBe, Title: "Glory Be", Text: g.doxologyText(), Group: GroupOpening, Audio: g.doxology()})
}

func (g *generator) decade(n int) {
	set := g.settings.Mysteries
	title := MysteryTitle(set, n)
	prefix := fmt.Sprintf("d%d", n)

	g.add(Unit{
		ID:    prefix + "-announce",
		Kind:  KindMystery,
		Title: fmt.Sprintf("%s %s Mystery: %s", humanize.Ordinal(n), titleCase(set.String()), title),
		Text:  title,
		Group: n,
		Audio: Composite(
			fmt.Sprintf("mysteries/ordinal_%d", n),
			fmt.Sprintf("mysteries/%s_%d", set, n),
		),
	})
	g.add(Unit{ID: prefix + "-our-father", Kind: KindOurFather, Title: "Our Father", Text: textOurFather, Group: n, Audio: Single(PathOurFather)})

	for i := 1; i <= 10; i++ {
		g.add(Unit{
			ID:       fmt.Sprintf("%s-hm%02d", prefix, i),
			Kind:     KindHailMary,
			Title:    "Hail Mary",
			Text:     textHailMary,
			Group:    n,
			Position: i,
			Audio:    g.hailMary(),
		})
	}

	g.add(Unit{ID: prefix + "-glory", Kind: KindGloryBe, Title: "Glory Be", Text: g.doxologyText(), Group: n, Audio: g.doxology()})
	g.add(Unit{ID: prefix + "-fatima", Kind: KindFatima, Title: "Fatima Prayer", Text: textFatima, Group: n, Audio: Single(PathFatima)})
}

func (g *generator) closing() {
	g.add(Unit{ID: "close-salve", Kind: KindHailHolyQueen, Title: "Hail Holy Queen", Text: textHailHolyQueen, Group: GroupClosing, Audio: Single(PathHailHolyQueen)})
	g.add(Unit{ID: "close-prayer", Kind: KindFinalPrayer, Title: "Concluding Prayer", Text: textFinalPrayer, Group: GroupClosing, Audio: Single(PathFinalPrayer)})
	g.add(Unit{ID: "close-cross", Kind: KindSignOfCross, Title: "Sign of the Cross", Text: textSignOfCross, Group: GroupClosing, Audio: Single(PathSignOfCross)})
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
