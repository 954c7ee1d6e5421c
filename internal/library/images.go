package library

import (
	"fmt"
	"os"
	"strings"
)

// ImagePolicy decides when an image slot counts as missing.
type ImagePolicy string

const (
	// ImagePolicyNone disables the check.
	ImagePolicyNone ImagePolicy = "none"
	// ImagePolicyAny requires at least one image of the slot, local or remote.
	ImagePolicyAny ImagePolicy = "any"
	// ImagePolicyLocal requires at least one image file present on disk.
	ImagePolicyLocal ImagePolicy = "local"
)

// ParseImagePolicy parses a configured policy. Empty means ImagePolicyAny.
func ParseImagePolicy(s string) (ImagePolicy, error) {
	switch p := ImagePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ImagePolicyAny, nil
	case ImagePolicyNone, ImagePolicyAny, ImagePolicyLocal:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownImagePolicy, s)
	}
}

// ImageChecker answers whether an item lacks an image under a policy.
type ImageChecker struct {
	stat func(name string) (os.FileInfo, error)
}

// NewImageChecker creates an ImageChecker backed by the local filesystem.
func NewImageChecker() *ImageChecker {
	return &ImageChecker{stat: os.Stat}
}

// MissingImage reports whether item has no acceptable image of type t.
func (c *ImageChecker) MissingImage(item *Item, t ImageType, policy ImagePolicy) bool {
	switch policy {
	case ImagePolicyNone:
		return false
	case ImagePolicyLocal:
		for _, img := range item.ImagesOf(t) {
			if img.Remote || img.Path == "" {
				continue
			}
			if info, err := c.stat(img.Path); err == nil && !info.IsDir() {
				return false
			}
		}
		return true
	default:
		return len(item.ImagesOf(t)) == 0
	}
}
