package model

// PlaylistItem is one entry of a resolved playlist listing.
type PlaylistItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// PlaylistListing is the already-fetched metadata of a playlist.
type PlaylistListing struct {
	Title string         `json:"title"`
	Items []PlaylistItem `json:"items"`
}

// Select resolves the working set for a playlist job: when ids is non-empty
// the listing is filtered to exactly those ids, preserving playlist order;
// otherwise the whole listing is used. Returns the selected items and the
// ids that matched nothing.
func (l *PlaylistListing) Select(ids []string) ([]PlaylistItem, []string) {
	if len(ids) == 0 {
		return l.Items, nil
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	selected := make([]PlaylistItem, 0, len(ids))
	for _, item := range l.Items {
		if _, ok := wanted[item.ID]; ok {
			selected = append(selected, item)
			delete(wanted, item.ID)
		}
	}

	missing := make([]string, 0, len(wanted))
	for _, id := range ids {
		if _, ok := wanted[id]; ok {
			missing = append(missing, id)
		}
	}
	return selected, missing
}
