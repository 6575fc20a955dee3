package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"rosary-audio/internal/prayer"
	"rosary-audio/internal/resolver"
)

type unitsParams struct {
	voice     string
	form      string
	mysteries string
	season    string
	decade    int
	seed      int64
	audioDir  string
}

func unitsCmd() *cobra.Command {
	var p unitsParams

	cmd := &cobra.Command{
		Use:   "units",
		Short: "Print the prayer units a session would play",
		Long: `Generate the unit list for the given settings and print it as a table.

With --audio-dir each unit's recordings are checked against the local voice
directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnits(cmd.Context(), p)
		},
	}

	cmd.Flags().StringVar(&p.voice, "voice", "female", "Voice directory name")
	cmd.Flags().StringVar(&p.form, "form", "full", "Form: full or decade")
	cmd.Flags().StringVar(&p.mysteries, "mysteries", "", "Mysteries: joyful, sorrowful, glorious, luminous (default: today's)")
	cmd.Flags().StringVar(&p.season, "season", "ordinary", "Season: ordinary, easter, lent")
	cmd.Flags().IntVar(&p.decade, "decade", 1, "Decade to pray with --form decade (1-5)")
	cmd.Flags().Int64Var(&p.seed, "seed", 0, "Seed for recording variants (default: random)")
	cmd.Flags().StringVar(&p.audioDir, "audio-dir", "", "Check recordings under this directory")

	return cmd
}

func runUnits(ctx context.Context, p unitsParams) error {
	settings := prayer.Settings{
		Voice:     p.voice,
		Mysteries: prayer.DefaultMysteries(time.Now().Weekday()),
		Decade:    p.decade,
	}
	if err := settings.Form.UnmarshalText([]byte(p.form)); err != nil {
		return err
	}
	if err := settings.Season.UnmarshalText([]byte(p.season)); err != nil {
		return err
	}
	if p.mysteries != "" {
		if err := settings.Mysteries.UnmarshalText([]byte(p.mysteries)); err != nil {
			return err
		}
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	var rng *rand.Rand
	if p.seed != 0 {
		rng = rand.New(rand.NewSource(p.seed))
	}
	units := prayer.Generate(settings, rng)

	var files *resolver.FileResolver
	if p.audioDir != "" {
		files = resolver.NewFileResolver(p.audioDir)
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	header := table.Row{"#", "ID", "Group", "Title", "Audio"}
	if files != nil {
		header = append(header, "Missing")
	}
	t.AppendHeader(header)

	missingUnits := 0
	for i, u := range units {
		title := u.Title
		if u.Position > 0 {
			title = fmt.Sprintf("%s (%s)", title, humanize.Ordinal(u.Position))
		}
		row := table.Row{i + 1, u.ID, prayer.GroupTitle(u.Group), title, u.Audio.String()}

		if files != nil {
			missing := lo.Filter(u.Audio.Segments(), func(path string, _ int) bool {
				_, ok := files.Resolve(ctx, settings.Voice, path)
				return !ok
			})
			if len(missing) > 0 {
				missingUnits++
			}
			row = append(row, strings.Join(missing, ", "))
		}
		t.AppendRow(row)
	}

	t.Render()

	fmt.Printf("\n%s units, %s mysteries, %s form, voice %s\n",
		humanize.Comma(int64(len(units))), settings.Mysteries, settings.Form, settings.Voice)
	if files != nil && missingUnits > 0 {
		fmt.Printf("%d units have missing recordings and will be skipped or shortened\n", missingUnits)
	}
	return nil
}
