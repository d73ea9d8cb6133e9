package imageio

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// Metadata is the EXIF information of an uploaded photo.
type Metadata struct {
	CameraMake  string    `json:"cameraMake,omitempty"`
	CameraModel string    `json:"cameraModel,omitempty"`
	DateTaken   time.Time `json:"dateTaken,omitempty"`
	HasDate     bool      `json:"hasDate"`
	Latitude    float64   `json:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
	HasGPS      bool      `json:"hasGps"`
}

// ExtractMetadata reads EXIF data from r. Only the metadata blocks are read.
// Date priority: DateTimeOriginal, then CreateDate, then ModifyDate.
func ExtractMetadata(r io.ReadSeeker) (*Metadata, error) {
	exif, err := imagemeta.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode EXIF metadata: %w", err)
	}

	m := &Metadata{
		CameraMake:  strings.TrimSpace(exif.Make),
		CameraModel: strings.TrimSpace(exif.Model),
	}
	if lat, lon := exif.GPS.Latitude(), exif.GPS.Longitude(); lat != 0 || lon != 0 {
		m.Latitude, m.Longitude, m.HasGPS = lat, lon, true
	}
	for _, t := range []time.Time{exif.DateTimeOriginal(), exif.CreateDate(), exif.ModifyDate()} {
		if !t.IsZero() {
			m.DateTaken, m.HasDate = t, true
			break
		}
	}

	log.Debug().
		Str("camera", m.Camera()).
		Bool("has_gps", m.HasGPS).
		Bool("has_date", m.HasDate).
		Msg("Image metadata extraction complete")
	return m, nil
}

// ExtractMetadataBytes is ExtractMetadata over an in-memory photo.
func ExtractMetadataBytes(data []byte) (*Metadata, error) {
	return ExtractMetadata(bytes.NewReader(data))
}

// Camera returns "make model", or "" when neither is known.
func (m *Metadata) Camera() string {
	return strings.TrimSpace(m.CameraMake + " " + m.CameraModel)
}

// Fields flattens the metadata for history entries and logs. Unknown values are omitted.
func (m *Metadata) Fields() map[string]any {
	out := make(map[string]any)
	if c := m.Camera(); c != "" {
		out["camera"] = c
	}
	if m.HasDate {
		out["dateTaken"] = m.DateTaken.Format(time.RFC3339)
	}
	if m.HasGPS {
		out["gps"] = fmt.Sprintf("%.6f,%.6f", m.Latitude, m.Longitude)
	}
	return out
}
