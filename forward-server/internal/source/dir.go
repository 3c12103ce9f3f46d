package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// frameExts en orden de preferencia: si cam.jpg y cam.png existen, gana cam.jpg.
var frameExts = []struct {
	ext    string
	fourcc string
}{
	{".jpg", "MJPG"},
	{".jpeg", "MJPG"},
	{".png", "PNG "},
}

// rankOf devuelve la posición de la extensión de name en frameExts, o -1.
func rankOf(name string) int {
	ext := strings.ToLower(filepath.Ext(name))
	for i, f := range frameExts {
		if f.ext == ext {
			return i
		}
	}
	return -1
}

// DirSource sirve cada imagen de un directorio como una cámara fija:
// frames/front.jpg es la cámara "front".
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// frames mapea id de cámara -> nombre de archivo, eligiendo la extensión
// preferida cuando hay varias para el mismo id.
func (s *DirSource) frames(ctx context.Context) (map[string]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("source: reading %s: %w", s.dir, err)
	}

	out := make(map[string]string)
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rank := rankOf(e.Name())
		if e.IsDir() || rank < 0 {
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if prev, ok := out[id]; ok && rankOf(prev) <= rank {
			continue
		}
		out[id] = e.Name()
	}
	return out, nil
}

func (s *DirSource) Cameras(ctx context.Context) ([]Device, error) {
	files, err := s.frames(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Device, 0, len(files))
	for id, name := range files {
		path := filepath.Join(s.dir, name)
		dev := Device{
			ID:      id,
			Name:    path,
			Product: "still image",
			Formats: []Format{{Description: "file", PixelFormat: frameExts[rankOf(name)].fourcc}},
		}
		if w, h, err := imageSize(path); err == nil {
			dev.Formats[0].Resolutions = []Resolution{{
				Width:  w,
				Height: h,
				// un archivo no tiene cadencia propia
				FrameRates: []FrameRate{{Numerator: 1, Denominator: 1}},
			}}
		}
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *DirSource) Capture(ctx context.Context, id string) ([]byte, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return nil, fmt.Errorf("%w: %q", ErrCameraNotFound, id)
	}
	files, err := s.frames(ctx)
	if err != nil {
		return nil, err
	}
	name, ok := files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCameraNotFound, id)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("source: reading frame %s: %w", id, err)
	}
	return data, nil
}

func imageSize(path string) (uint32, uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return uint32(cfg.Width), uint32(cfg.Height), nil
}
