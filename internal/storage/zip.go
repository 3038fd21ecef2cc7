package storage

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ShapefileParts are the members of a shapefile that readers use. The .shp,
// .shx and .dbf parts are required; .prj and .cpg are copied when present.
var ShapefileParts = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

var requiredShapefileParts = []string{".shp", ".shx", ".dbf"}

// ExtractShapefile copies the parts of the shapefile named name (for example
// "hand_021.shp") out of a zip archive into destDir and returns the local
// .shp path. Members match on base name, case-insensitively, wherever they
// sit in the archive; everything else is skipped.
func ExtractShapefile(zipPath, destDir, name string) (string, error) {
	stem := strings.TrimSuffix(strings.ToLower(name), ".shp")

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrapf(err, "zip: open %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	found := make(map[string]string, len(ShapefileParts))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		base := strings.ToLower(path.Base(f.Name))
		ext := path.Ext(base)
		if strings.TrimSuffix(base, ext) != stem || !slices.Contains(ShapefileParts, ext) {
			continue
		}
		if _, dup := found[ext]; dup {
			return "", eris.Errorf("zip: %s holds more than one %s%s", zipPath, stem, ext)
		}
		local, err := extractMember(f, destDir, stem+ext)
		if err != nil {
			return "", err
		}
		found[ext] = local
	}

	for _, ext := range requiredShapefileParts {
		if _, ok := found[ext]; !ok {
			return "", eris.Wrapf(os.ErrNotExist, "zip: %s has no %s%s", zipPath, stem, ext)
		}
	}
	zap.L().Debug("zip: extracted shapefile", zap.String("archive", zipPath), zap.Int("parts", len(found)))
	return found[".shp"], nil
}

// extractMember writes f to destDir/name. Members whose archive path
// escapes the archive root are rejected.
func extractMember(f *zip.File, destDir, name string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(f.Name)) {
		return "", eris.Errorf("zip: illegal member path %q", f.Name)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "zip: create %s", destDir)
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(err, "zip: open member %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	local := filepath.Join(destDir, name)
	out, err := os.Create(local)
	if err != nil {
		return "", eris.Wrapf(err, "zip: create %s", local)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close() //nolint:errcheck,gosec
		return "", eris.Wrapf(err, "zip: write %s", local)
	}
	return local, eris.Wrapf(out.Close(), "zip: close %s", local)
}
