package catalog

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpenSeedsDefaultMap(t *testing.T) {
	c := openTestCatalog(t)
	entry, err := c.Get(context.Background(), "meadow")
	require.NoError(t, err)
	assert.Equal(t, "Meadow", entry.Name)
	assert.NotEmpty(t, entry.ColorPath)
	assert.NotEmpty(t, entry.DepthPath)
}

func TestPutGetListRoundTrip(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, MapEntry{ID: "atoll", Name: "Atoll", ColorPath: "a.png", DepthPath: "b.png"}))

	entry, err := c.Get(ctx, "atoll")
	require.NoError(t, err)
	assert.Equal(t, "Atoll", entry.Name)

	entries, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "atoll", entries[0].ID)
	assert.Equal(t, "meadow", entries[1].ID)
}

func TestGetMissingMap(t *testing.T) {
	c := openTestCatalog(t)
	_, err := c.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadDecodesRasters(t *testing.T) {
	dir := t.TempDir()
	colorPath := filepath.Join(dir, "color.png")
	depthPath := filepath.Join(dir, "depth.png")
	writeTestPNG(t, colorPath, 24, 24)
	writeTestPNG(t, depthPath, 24, 24)

	c := openTestCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, MapEntry{ID: "test", Name: "Test", ColorPath: colorPath, DepthPath: depthPath}))

	colorImg, depthImg, err := c.Load(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, 24, colorImg.Bounds().Dx())
	assert.Equal(t, 24, depthImg.Bounds().Dy())
}

func TestLoadSurfacesMissingRaster(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, MapEntry{ID: "broken", Name: "Broken", ColorPath: "does-not-exist.png", DepthPath: "also-missing.png"}))

	_, _, err := c.Load(ctx, "broken")
	assert.Error(t, err)
}
