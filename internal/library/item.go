// Package library is the local mirror of media-server items.
package library

import "time"

// Kind identifies the type of a library item.
type Kind string

const (
	KindMovie   Kind = "movie"
	KindSeries  Kind = "series"
	KindSeason  Kind = "season"
	KindEpisode Kind = "episode"
	KindFolder  Kind = "folder"
)

// ImageType is an image slot on an item.
type ImageType string

const (
	ImagePrimary  ImageType = "primary"
	ImageBackdrop ImageType = "backdrop"
	ImageLogo     ImageType = "logo"
	ImageThumb    ImageType = "thumb"
)

// Item is one media record.
type Item struct {
	ID               int64             `json:"id"`
	ExternalID       string            `json:"externalId"`
	ParentID         *int64            `json:"parentId,omitempty"`
	ParentExternalID string            `json:"parentExternalId,omitempty"`
	Kind             Kind              `json:"kind"`
	Name             string            `json:"name"`
	SortName         string            `json:"sortName"`
	Overview         string            `json:"overview,omitempty"`
	ProviderIDs      map[string]string `json:"providerIds"`
	PremiereDate     *time.Time        `json:"premiereDate,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	LastRefreshedAt  *time.Time        `json:"lastRefreshedAt,omitempty"`
	IsVirtual        bool              `json:"isVirtual"`
	Images           []Image           `json:"images,omitempty"`
}

// Image is a stored image reference. Remote images are known to the media
// server but have no local file.
type Image struct {
	Type   ImageType `json:"type"`
	Path   string    `json:"path"`
	Remote bool      `json:"remote"`
}

// ImagesOf returns the item's images in the given slot.
func (i *Item) ImagesOf(t ImageType) []Image {
	var out []Image
	for _, img := range i.Images {
		if img.Type == t {
			out = append(out, img)
		}
	}
	return out
}

// RefreshOptions controls how aggressive a refresh is.
type RefreshOptions struct {
	ReplaceAllImages   bool `json:"replaceAllImages"`
	ReplaceAllMetadata bool `json:"replaceAllMetadata"`
}
