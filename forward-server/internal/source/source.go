// Package source obtiene los frames que el gateway manda a procesar.
// La captura es intercambiable: un directorio de imágenes, snapshots HTTP de
// cámaras IP, o cualquier otra implementación de FrameSource.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var ErrCameraNotFound = errors.New("source: camera not found")

// FrameSource produce bytes crudos para un id de cámara.
type FrameSource interface {
	Cameras(ctx context.Context) ([]Device, error)
	Capture(ctx context.Context, id string) ([]byte, error)
}

// FrameRate es un intervalo de cuadro numerador/denominador (30/1 = 30 fps).
type FrameRate struct {
	Numerator   uint32 `json:"numerator"`
	Denominator uint32 `json:"denominator"`
}

type Resolution struct {
	Width      uint32      `json:"width"`
	Height     uint32      `json:"height"`
	FrameRates []FrameRate `json:"frame_rates"`
}

type Format struct {
	Description string       `json:"description"`
	PixelFormat string       `json:"pixel_format"` // fourcc, p.ej. "MJPG"
	Resolutions []Resolution `json:"resolutions"`
}

// Device describe una cámara y lo que soporta.
type Device struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Product      string   `json:"product,omitempty"`
	Serial       string   `json:"serial,omitempty"`
	Formats      []Format `json:"formats"`
}

// Multi combina varias fuentes; el primer origen que conoce el id gana.
type Multi []FrameSource

func (m Multi) Cameras(ctx context.Context) ([]Device, error) {
	var out []Device
	seen := make(map[string]bool)
	for _, s := range m {
		devs, err := s.Cameras(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range devs {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m Multi) Capture(ctx context.Context, id string) ([]byte, error) {
	for _, s := range m {
		data, err := s.Capture(ctx, id)
		if errors.Is(err, ErrCameraNotFound) {
			continue
		}
		return data, err
	}
	return nil, fmt.Errorf("%w: %s", ErrCameraNotFound, id)
}
