package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"
)

const maxSnapshotSize = 32 << 20

var ErrSnapshotTooLarge = errors.New("source: snapshot exceeds size limit")

// SnapshotSource toma frames de cámaras IP que exponen un endpoint de
// snapshot JPEG (GET devuelve una imagen).
type SnapshotSource struct {
	urls    map[string]string
	client  *http.Client
	maxSize int64
}

func NewSnapshotSource(urls map[string]string) *SnapshotSource {
	return &SnapshotSource{
		urls:    urls,
		client:  &http.Client{Timeout: 10 * time.Second},
		maxSize: maxSnapshotSize,
	}
}

func (s *SnapshotSource) Cameras(context.Context) ([]Device, error) {
	out := make([]Device, 0, len(s.urls))
	for id, raw := range s.urls {
		name := raw
		if u, err := url.Parse(raw); err == nil {
			name = u.Host
		}
		out = append(out, Device{
			ID:      id,
			Name:    name,
			Product: "ip snapshot",
			Formats: []Format{{Description: "jpeg snapshot", PixelFormat: "MJPG"}},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *SnapshotSource) Capture(ctx context.Context, id string) ([]byte, error) {
	raw, ok := s.urls[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCameraNotFound, id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("source: snapshot request for %s: %w", id, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: snapshot %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source: snapshot %s: unexpected status %s", id, resp.Status)
	}
	// un byte de más delata una imagen cortada
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("source: snapshot %s: %w", id, err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("%w: %s larger than %d bytes", ErrSnapshotTooLarge, id, s.maxSize)
	}
	return data, nil
}
