// Package render formats diffs, conflicts and sync status for the
// terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/alexjbarnes/playlist-sync/internal/playlist"
	"github.com/alexjbarnes/playlist-sync/internal/syncer"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4ECDC4"))

	addedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	removedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	modifiedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(0, 1)
)

func marker(kind playlist.ChangeKind) string {
	switch kind {
	case playlist.ChangeAdded:
		return addedStyle.Render("+")
	case playlist.ChangeRemoved:
		return removedStyle.Render("-")
	case playlist.ChangeReordered:
		return modifiedStyle.Render(">")
	default:
		return modifiedStyle.Render("~")
	}
}

// Diff writes a human-readable diff.
func Diff(w io.Writer, d *playlist.DiffResult) error {
	if d.Empty() {
		_, err := fmt.Fprintln(w, dimStyle.Render("No differences."))
		return err
	}

	var b strings.Builder

	s := d.Summary
	b.WriteString(boxStyle.Render(fmt.Sprintf(
		"%s\nplaylists: %s %s %s\nitems:     %s %s %s",
		titleStyle.Render("Local vs remote"),
		addedStyle.Render(fmt.Sprintf("+%d", s.PlaylistsAdded)),
		removedStyle.Render(fmt.Sprintf("-%d", s.PlaylistsRemoved)),
		modifiedStyle.Render(fmt.Sprintf("~%d", s.PlaylistsModified)),
		addedStyle.Render(fmt.Sprintf("+%d", s.ItemsAdded)),
		removedStyle.Render(fmt.Sprintf("-%d", s.ItemsRemoved)),
		modifiedStyle.Render(fmt.Sprintf(">%d", s.ItemsReordered)),
	)))
	b.WriteString("\n")

	for _, p := range d.Playlists {
		name := p.Name
		if p.NameDiff != "" {
			name = p.NameDiff
		}

		fmt.Fprintf(&b, "%s %s %s\n", marker(p.Kind), name, dimStyle.Render(fmt.Sprintf("(%s, %d items)", p.ID, p.ItemCount)))

		for _, it := range p.Items {
			label := it.ID
			if it.Title != "" {
				label = it.Title + " " + dimStyle.Render("["+it.ID+"]")
			}

			switch it.Kind {
			case playlist.ChangeReordered:
				fmt.Fprintf(&b, "    %s %s %s\n", marker(it.Kind), label, dimStyle.Render(fmt.Sprintf("%d -> %d", it.From, it.To)))
			default:
				fmt.Fprintf(&b, "    %s %s\n", marker(it.Kind), label)
			}
		}
	}

	_, err := io.WriteString(w, b.String())

	return err
}

// Conflict writes the prompt shown when both sides hold different data.
func Conflict(w io.Writer, c syncer.Conflict) error {
	local, remote := 0, 0
	if c.Local != nil {
		local = len(c.Local.Playlists)
	}

	if c.Remote != nil {
		remote = len(c.Remote.Playlists)
	}

	header := boxStyle.Render(fmt.Sprintf(
		"%s\nThis device has %d playlists, your account has %d.\nChoose which copy to keep: local or remote.",
		titleStyle.Render("Sync conflict"), local, remote,
	))

	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	if c.Reason != "" {
		if _, err := fmt.Fprintln(w, dimStyle.Render("reason: "+c.Reason)); err != nil {
			return err
		}
	}

	return Diff(w, c.Diff)
}

// Status writes a one-line summary of the sync session.
func Status(w io.Writer, st syncer.Status) error {
	var state string

	switch {
	case !st.Authenticated:
		state = dimStyle.Render("signed out")
	case st.ConflictPending:
		state = removedStyle.Render("conflict pending")
	case !st.Loaded:
		state = modifiedStyle.Render("loading")
	case st.PushScheduled:
		state = modifiedStyle.Render("changes pending")
	default:
		state = addedStyle.Render("in sync")
	}

	line := state
	if st.Owner != "" {
		line += " " + dimStyle.Render("as "+st.Owner)
	}

	if !st.LastSync.IsZero() {
		line += " " + dimStyle.Render("last sync "+st.LastSync.Format("15:04:05"))
	}

	if st.LastError != "" {
		line += " " + removedStyle.Render(st.LastError)
	}

	_, err := fmt.Fprintln(w, line)

	return err
}
