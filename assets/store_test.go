package assets

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDeduplicatesIdenticalBytes(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	first, err := store.Store([]byte("segment placeholder"), "txt", "video")
	require.NoError(t, err)
	second, err := store.Store([]byte("segment placeholder"), "txt", "video")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.LocalPath, second.LocalPath)

	matches, err := filepath.Glob(filepath.Join(store.Dir(), "*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestStoreLeavesNoTempFileBehind(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	asset, err := store.Store([]byte("payload"), "png", "image")
	require.NoError(t, err)

	data, err := os.ReadFile(asset.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	leftovers, err := filepath.Glob(filepath.Join(store.Dir(), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestContentIDIsStable(t *testing.T) {
	a := ContentID([]byte("alpha"))
	b := ContentID([]byte("alpha"))
	c := ContentID([]byte("beta"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestResolveFindsStoredAsset(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	asset, err := store.Store([]byte("keyframe"), "png", "image")
	require.NoError(t, err)

	assert.Equal(t, asset.LocalPath, store.Resolve(asset.ID))
	assert.Empty(t, store.Resolve("deadbeef"))
}

func TestPrepareReferenceImageReencodesOpaqueAsJPEG(t *testing.T) {
	img := imaging.New(12, 9, color.NRGBA{R: 200, G: 160, B: 90, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))

	data, ext, width, height := PrepareReferenceImage("golden.png", buf.Bytes())

	assert.Equal(t, "jpg", ext)
	assert.Equal(t, 12, width)
	assert.Equal(t, 9, height)
	assert.NotEmpty(t, data)
}

func TestPrepareReferenceImageKeepsTransparencyAsPNG(t *testing.T) {
	img := imaging.New(8, 8, color.NRGBA{R: 10, G: 10, B: 10, A: 120})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))

	_, ext, _, _ := PrepareReferenceImage("ghost.png", buf.Bytes())

	assert.Equal(t, "png", ext)
}

func TestPrepareReferenceImagePassesThroughNonImages(t *testing.T) {
	raw := []byte("definitely not pixels")

	data, ext, width, height := PrepareReferenceImage("notes.JPG", raw)

	assert.Equal(t, raw, data)
	assert.Equal(t, "jpg", ext)
	assert.Zero(t, width)
	assert.Zero(t, height)
}

func TestGuessExtension(t *testing.T) {
	assert.Equal(t, "jpeg", GuessExtension("photo.JPEG"))
	assert.Equal(t, "png", GuessExtension("/tmp/a/b.png"))
	assert.Empty(t, GuessExtension("no-extension"))
}
