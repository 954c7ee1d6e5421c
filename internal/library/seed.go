package library

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout accepted by LoadSeedFile.
type SeedFile struct {
	Items []SeedItem `yaml:"items"`
}

// SeedItem describes one item in a seed file. Ages are relative to load time
// so fixtures stay meaningful for the cooldown and age windows.
type SeedItem struct {
	ExternalID     string            `yaml:"id"`
	Parent         string            `yaml:"parent"`
	Kind           Kind              `yaml:"kind"`
	Name           string            `yaml:"name"`
	SortName       string            `yaml:"sort_name"`
	Overview       string            `yaml:"overview"`
	ProviderIDs    map[string]string `yaml:"provider_ids"`
	Premiere       string            `yaml:"premiere"` // YYYY-MM-DD
	CreatedDaysAgo int               `yaml:"created_days_ago"`
	RefreshedAgo   string            `yaml:"refreshed_ago"` // Go duration, empty = never
	Virtual        bool              `yaml:"virtual"`
	Images         []SeedImage       `yaml:"images"`
}

// SeedImage describes an image in a seed file.
type SeedImage struct {
	Type   ImageType `yaml:"type"`
	Path   string    `yaml:"path"`
	Remote bool      `yaml:"remote"`
}

// ParseSeed converts seed YAML into items relative to now.
func ParseSeed(data []byte, now time.Time) ([]*Item, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	items := make([]*Item, 0, len(file.Items))
	for i, s := range file.Items {
		if s.ExternalID == "" {
			return nil, fmt.Errorf("%w: seed item %d has no id", ErrInvalidItem, i)
		}
		item := &Item{
			ExternalID:       s.ExternalID,
			ParentExternalID: s.Parent,
			Kind:             s.Kind,
			Name:             s.Name,
			SortName:         s.SortName,
			Overview:         s.Overview,
			ProviderIDs:      s.ProviderIDs,
			CreatedAt:        now.AddDate(0, 0, -s.CreatedDaysAgo),
			IsVirtual:        s.Virtual,
		}
		if item.Kind == "" {
			item.Kind = KindMovie
		}
		if s.Premiere != "" {
			t, err := time.Parse(time.DateOnly, s.Premiere)
			if err != nil {
				return nil, fmt.Errorf("%w: seed item %s premiere: %v", ErrInvalidItem, s.ExternalID, err)
			}
			item.PremiereDate = &t
		}
		if s.RefreshedAgo != "" {
			d, err := time.ParseDuration(s.RefreshedAgo)
			if err != nil {
				return nil, fmt.Errorf("%w: seed item %s refreshed_ago: %v", ErrInvalidItem, s.ExternalID, err)
			}
			t := now.Add(-d)
			item.LastRefreshedAt = &t
		}
		for _, img := range s.Images {
			item.Images = append(item.Images, Image(img))
		}
		items = append(items, item)
	}
	return items, nil
}

// LoadSeedFile upserts every item of a YAML seed file into the store, in file
// order so parents listed first resolve for their children.
func (s *Store) LoadSeedFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	items, err := ParseSeed(data, time.Now())
	if err != nil {
		return 0, err
	}

	for _, item := range items {
		if _, err := s.Upsert(ctx, item); err != nil {
			return 0, err
		}
	}

	s.logger.Info().Str("path", path).Int("items", len(items)).Msg("Loaded seed file")
	return len(items), nil
}
