package assets

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// maxReferenceDim caps either dimension of an ingested reference image.
const maxReferenceDim = 4096

// PrepareReferenceImage normalizes arbitrary source bytes into a safe
// reference image: auto-rotated by EXIF orientation, capped at
// maxReferenceDim on the long side with Lanczos resampling, and
// re-encoded to PNG when transparency is present, JPEG quality 90
// otherwise. Bytes that do not decode as an image pass through
// unchanged with an extension guessed from the source filename.
func PrepareReferenceImage(sourcePath string, raw []byte) (data []byte, ext string, width, height int) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return raw, GuessExtension(sourcePath), 0, 0
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxReferenceDim || bounds.Dy() > maxReferenceDim {
		img = imaging.Fit(img, maxReferenceDim, maxReferenceDim, imaging.Lanczos)
	}

	hasAlpha := false
	if o, ok := img.(interface{ Opaque() bool }); ok {
		hasAlpha = !o.Opaque()
	}

	var buf bytes.Buffer
	if hasAlpha {
		err = imaging.Encode(&buf, img, imaging.PNG)
		ext = "png"
	} else {
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90))
		ext = "jpg"
	}
	if err != nil {
		return raw, GuessExtension(sourcePath), 0, 0
	}

	final := img.Bounds()
	return buf.Bytes(), ext, final.Dx(), final.Dy()
}

// GuessExtension extracts the lowercased file extension without the
// leading dot, or "" when the path has none.
func GuessExtension(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
