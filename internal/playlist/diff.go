package playlist

import (
	"strings"

	"github.com/alexjbarnes/playlist-sync/internal/models"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// ChangeKind classifies one entry of a DiffResult.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeRemoved   ChangeKind = "removed"
	ChangeModified  ChangeKind = "modified"
	ChangeReordered ChangeKind = "reordered"
)

// ItemChange describes one item that differs between the two sides of a
// playlist. From and To are positions among the items both sides share,
// or -1 when the item is absent on that side.
type ItemChange struct {
	Kind  ChangeKind `json:"kind" yaml:"kind"`
	ID    string     `json:"id" yaml:"id"`
	Title string     `json:"title,omitempty" yaml:"title,omitempty"`
	From  int        `json:"from" yaml:"from"`
	To    int        `json:"to" yaml:"to"`
}

// PlaylistDiff describes one playlist that differs. For modified
// playlists NameDiff carries an inline rendering of the rename using
// [-removed-] and {+inserted+} markers.
type PlaylistDiff struct {
	Kind      ChangeKind   `json:"kind" yaml:"kind"`
	ID        string       `json:"id" yaml:"id"`
	Name      string       `json:"name" yaml:"name"`
	OldName   string       `json:"oldName,omitempty" yaml:"oldName,omitempty"`
	NameDiff  string       `json:"nameDiff,omitempty" yaml:"nameDiff,omitempty"`
	ItemCount int          `json:"itemCount" yaml:"itemCount"`
	Items     []ItemChange `json:"items,omitempty" yaml:"items,omitempty"`
}

// DiffSummary aggregates the counts of a DiffResult.
type DiffSummary struct {
	PlaylistsAdded    int `json:"playlistsAdded" yaml:"playlistsAdded"`
	PlaylistsRemoved  int `json:"playlistsRemoved" yaml:"playlistsRemoved"`
	PlaylistsModified int `json:"playlistsModified" yaml:"playlistsModified"`
	ItemsAdded        int `json:"itemsAdded" yaml:"itemsAdded"`
	ItemsRemoved      int `json:"itemsRemoved" yaml:"itemsRemoved"`
	ItemsReordered    int `json:"itemsReordered" yaml:"itemsReordered"`
}

// DiffResult is the display-only difference between a local and a remote
// snapshot. It is never applied back to a snapshot.
type DiffResult struct {
	Summary   DiffSummary    `json:"summary" yaml:"summary"`
	Playlists []PlaylistDiff `json:"playlists" yaml:"playlists"`
}

// Empty reports whether the diff found nothing.
func (d *DiffResult) Empty() bool {
	return d == nil || len(d.Playlists) == 0
}

// Diff computes what changes going from local to remote. Playlists are
// matched by id: present only in local is removed, present only in
// remote is added. A nil side is treated as having no playlists.
//
// Output order follows local order for removed and modified playlists,
// then remote order for added ones.
func Diff(local, remote *models.Snapshot) *DiffResult {
	var localLists, remoteLists []models.Playlist
	if local != nil {
		localLists = local.Playlists
	}

	if remote != nil {
		remoteLists = remote.Playlists
	}

	remoteByID := make(map[string]models.Playlist, len(remoteLists))
	for _, p := range remoteLists {
		if _, dup := remoteByID[p.ID]; !dup {
			remoteByID[p.ID] = p
		}
	}

	result := &DiffResult{Playlists: []PlaylistDiff{}}
	seen := make(map[string]bool, len(localLists))

	for _, lp := range localLists {
		if seen[lp.ID] {
			continue
		}

		seen[lp.ID] = true

		rp, ok := remoteByID[lp.ID]
		if !ok {
			result.Playlists = append(result.Playlists, PlaylistDiff{
				Kind:      ChangeRemoved,
				ID:        lp.ID,
				Name:      lp.Name,
				ItemCount: len(lp.Items),
			})
			result.Summary.PlaylistsRemoved++

			continue
		}

		items := diffItems(lp.Items, rp.Items)
		if lp.Name == rp.Name && len(items) == 0 {
			continue
		}

		pd := PlaylistDiff{
			Kind:      ChangeModified,
			ID:        lp.ID,
			Name:      rp.Name,
			ItemCount: len(rp.Items),
			Items:     items,
		}
		if lp.Name != rp.Name {
			pd.OldName = lp.Name
			pd.NameDiff = inlineDiff(lp.Name, rp.Name)
		}

		for _, ic := range items {
			switch ic.Kind {
			case ChangeAdded:
				result.Summary.ItemsAdded++
			case ChangeRemoved:
				result.Summary.ItemsRemoved++
			case ChangeReordered:
				result.Summary.ItemsReordered++
			}
		}

		result.Playlists = append(result.Playlists, pd)
		result.Summary.PlaylistsModified++
	}

	for _, rp := range remoteLists {
		if seen[rp.ID] {
			continue
		}

		seen[rp.ID] = true

		result.Playlists = append(result.Playlists, PlaylistDiff{
			Kind:      ChangeAdded,
			ID:        rp.ID,
			Name:      rp.Name,
			ItemCount: len(rp.Items),
		})
		result.Summary.PlaylistsAdded++
	}

	return result
}

// diffItems classifies items by id presence, then flags shared items
// whose position among the shared items moved. Measuring position within
// the shared subsequence keeps an insertion from reporting every later
// item as reordered.
func diffItems(local, remote []models.PlaylistItem) []ItemChange {
	localIdx := indexItems(local)
	remoteIdx := indexItems(remote)

	var changes []ItemChange

	var sharedLocal []string
	for i, it := range local {
		if localIdx[it.ID] != i {
			continue
		}

		if _, ok := remoteIdx[it.ID]; !ok {
			changes = append(changes, ItemChange{Kind: ChangeRemoved, ID: it.ID, Title: it.Title, From: -1, To: -1})
			continue
		}

		sharedLocal = append(sharedLocal, it.ID)
	}

	sharedRemotePos := make(map[string]int, len(sharedLocal))
	titles := make(map[string]string, len(remote))
	pos := 0

	for i, it := range remote {
		if remoteIdx[it.ID] != i {
			continue
		}

		if _, ok := localIdx[it.ID]; !ok {
			changes = append(changes, ItemChange{Kind: ChangeAdded, ID: it.ID, Title: it.Title, From: -1, To: -1})
			continue
		}

		sharedRemotePos[it.ID] = pos
		titles[it.ID] = it.Title
		pos++
	}

	for from, id := range sharedLocal {
		to := sharedRemotePos[id]
		if from != to {
			changes = append(changes, ItemChange{Kind: ChangeReordered, ID: id, Title: titles[id], From: from, To: to})
		}
	}

	return changes
}

// indexItems maps item id to its first position. Callers skip later
// duplicates by checking the recorded position.
func indexItems(items []models.PlaylistItem) map[string]int {
	idx := make(map[string]int, len(items))
	for i, it := range items {
		if _, ok := idx[it.ID]; ok {
			continue
		}

		idx[it.ID] = i
	}

	return idx
}

func inlineDiff(oldText, newText string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		}
	}

	return b.String()
}
