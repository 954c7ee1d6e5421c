package jellyfin

import (
	"strings"
	"time"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/library"
)

// ServerInfo is the public system info of a Jellyfin server.
type ServerInfo struct {
	ID         string `json:"Id"`
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
}

// Item is an item as returned by GET /Items.
type Item struct {
	ID                string            `json:"Id"`
	Name              string            `json:"Name"`
	SortName          string            `json:"SortName"`
	Overview          string            `json:"Overview"`
	Type              string            `json:"Type"`
	ParentID          string            `json:"ParentId"`
	ProviderIDs       map[string]string `json:"ProviderIds"`
	PremiereDate      *time.Time        `json:"PremiereDate"`
	DateCreated       *time.Time        `json:"DateCreated"`
	DateLastRefreshed *time.Time        `json:"DateLastRefreshed"`
	LocationType      string            `json:"LocationType"`
	ImageTags         map[string]string `json:"ImageTags"`
	BackdropImageTags []string          `json:"BackdropImageTags"`
}

// ItemsResponse is one page of GET /Items.
type ItemsResponse struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
	StartIndex       int    `json:"StartIndex"`
}

// ImageInfo is one entry of GET /Items/{id}/Images.
type ImageInfo struct {
	ImageType  string `json:"ImageType"`
	ImageIndex *int   `json:"ImageIndex"`
	ImageTag   string `json:"ImageTag"`
	Path       string `json:"Path"`
}

// ItemsQuery filters GET /Items. Zero values are omitted.
type ItemsQuery struct {
	Types    []string
	ParentID string
}

var kindsByType = map[string]library.Kind{
	"Movie":            library.KindMovie,
	"Series":           library.KindSeries,
	"Season":           library.KindSeason,
	"Episode":          library.KindEpisode,
	"Folder":           library.KindFolder,
	"CollectionFolder": library.KindFolder,
	"BoxSet":           library.KindFolder,
}

// TypesFor returns the Jellyfin item types for the given kinds.
func TypesFor(kinds ...library.Kind) []string {
	var types []string
	for _, k := range kinds {
		switch k {
		case library.KindMovie:
			types = append(types, "Movie")
		case library.KindSeries:
			types = append(types, "Series")
		case library.KindSeason:
			types = append(types, "Season")
		case library.KindEpisode:
			types = append(types, "Episode")
		case library.KindFolder:
			types = append(types, "Folder", "CollectionFolder", "BoxSet")
		}
	}
	return types
}

var imageTypes = map[string]library.ImageType{
	"Primary":  library.ImagePrimary,
	"Backdrop": library.ImageBackdrop,
	"Logo":     library.ImageLogo,
	"Thumb":    library.ImageThumb,
}

// Kind maps the Jellyfin type to a library kind.
func (i Item) Kind() (library.Kind, bool) {
	k, ok := kindsByType[i.Type]
	return k, ok
}

// LibraryItem converts the item for the local store. Images are recorded as
// remote tags; callers that resolve file paths replace them.
func (i Item) LibraryItem() *library.Item {
	kind, _ := i.Kind()
	item := &library.Item{
		ExternalID:       i.ID,
		ParentExternalID: i.ParentID,
		Kind:             kind,
		Name:             i.Name,
		SortName:         i.SortName,
		Overview:         i.Overview,
		ProviderIDs:      make(map[string]string, len(i.ProviderIDs)),
		PremiereDate:     validTime(i.PremiereDate),
		LastRefreshedAt:  validTime(i.DateLastRefreshed),
		IsVirtual:        strings.EqualFold(i.LocationType, "Virtual"),
	}
	if created := validTime(i.DateCreated); created != nil {
		item.CreatedAt = *created
	}
	for k, v := range i.ProviderIDs {
		if strings.TrimSpace(v) != "" {
			item.ProviderIDs[k] = v
		}
	}
	for t, tag := range i.ImageTags {
		if it, ok := imageTypes[t]; ok {
			item.Images = append(item.Images, library.Image{Type: it, Path: tag, Remote: true})
		}
	}
	for _, tag := range i.BackdropImageTags {
		item.Images = append(item.Images, library.Image{Type: library.ImageBackdrop, Path: tag, Remote: true})
	}
	return item
}

// LibraryImages converts image infos with file paths.
func LibraryImages(infos []ImageInfo) []library.Image {
	var out []library.Image
	for _, info := range infos {
		it, ok := imageTypes[info.ImageType]
		if !ok {
			continue
		}
		img := library.Image{Type: it, Path: info.Path}
		if img.Path == "" {
			img.Path = info.ImageTag
			img.Remote = true
		}
		out = append(out, img)
	}
	return out
}

// validTime drops the zero dates Jellyfin uses for unset values.
func validTime(t *time.Time) *time.Time {
	if t == nil || t.Year() <= 1 {
		return nil
	}
	u := t.UTC()
	return &u
}
