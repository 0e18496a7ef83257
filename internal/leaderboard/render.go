package leaderboard

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// RenderOptions controls terminal output.
type RenderOptions struct {
	NoColor bool
	// Tier limits output to a single tier when set.
	Tier string
}

// Render writes board as one block per tier, each heading drawn in the
// tier's colour.
func Render(w io.Writer, board Board, opts RenderOptions) error {
	renderer := lipgloss.NewRenderer(w)
	if opts.NoColor {
		renderer.SetColorProfile(termenv.Ascii)
	}

	header := renderer.NewStyle().Bold(true).Underline(true)
	rankCol := renderer.NewStyle().Width(4).Align(lipgloss.Right)
	nameCol := renderer.NewStyle().Width(24).PaddingLeft(2)
	numCol := renderer.NewStyle().Width(8).Align(lipgloss.Right)
	empty := renderer.NewStyle().Faint(true).PaddingLeft(2)

	var b strings.Builder
	shown := 0
	for _, s := range board.Standings {
		if opts.Tier != "" && !strings.EqualFold(opts.Tier, s.Tier.Name) {
			continue
		}
		if shown > 0 {
			b.WriteString("\n")
		}
		shown++

		title := header
		if s.Tier.Color != "" {
			title = title.Foreground(lipgloss.Color(s.Tier.Color))
		}
		b.WriteString(title.Render(s.Tier.Name))
		b.WriteString("\n")

		if len(s.Records) == 0 {
			b.WriteString(empty.Render("no ranked players this season"))
			b.WriteString("\n")
			continue
		}

		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			rankCol.Render("#"), nameCol.Render("Player"), numCol.Render("Elo"), numCol.Render("Games")))
		b.WriteString("\n")
		for i, rec := range s.Records {
			name := rec.Name
			if name == "" {
				name = rec.PlayerID
			}
			b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
				rankCol.Render(fmt.Sprintf("%d.", i+1)),
				nameCol.Render(name),
				numCol.Render(fmt.Sprint(rec.Elo)),
				numCol.Render(fmt.Sprint(rec.SeasonGames))))
			b.WriteString("\n")
		}
	}

	if shown == 0 {
		if opts.Tier != "" {
			return fmt.Errorf("unknown tier %q", opts.Tier)
		}
		b.WriteString("no tiers configured\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
