// Package packaging assembles a run's output files into a single zip
// archive for delivery.
package packaging

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TilesMemberName is the fixed archive entry for the vector tile set.
const TilesMemberName = "vector_tiles.pmtiles"

// Member is one file to place in the archive under a flat name.
type Member struct {
	Name string
	Path string
}

// MemberName builds the flat archive entry for a source/format artifact,
// e.g. "osm_geojson.geojson".
func MemberName(source, format, ext string) string {
	return fmt.Sprintf("%s_%s%s", source, format, ext)
}

// BuildArchive writes all members into a deflate-compressed zip at
// outPath and returns its size in bytes. At least one member is required.
func BuildArchive(members []Member, outPath string) (int64, error) {
	if len(members) == 0 {
		return 0, fmt.Errorf("archive needs at least one member")
	}

	out, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, m := range members {
		if err := addMember(zw, m); err != nil {
			_ = zw.Close()
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finalize archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, err
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func addMember(zw *zip.Writer, m Member) error {
	src, err := os.Open(m.Path)
	if err != nil {
		return fmt.Errorf("open archive member %s: %w", m.Name, err)
	}
	defer src.Close()

	name := m.Name
	if name == "" {
		name = filepath.Base(m.Path)
	}
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("add archive member %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write archive member %s: %w", name, err)
	}
	return nil
}
