package display

import (
	_ "embed"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

//go:embed banner.txt
var bannerArt string

// RenderBanner returns the Foodly wordmark centred for the current
// terminal, in the banner colour. The art comes from banner.txt and is
// shown at its native size.
func RenderBanner() string {
	width := 80
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		width = w
	}
	art := BannerStyle.Render(strings.TrimRight(bannerArt, "\n"))
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, art)
}
