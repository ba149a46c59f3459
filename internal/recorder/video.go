package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deskrec/internal/config"
	"deskrec/internal/pipeline"
)

var videoExts = map[string]bool{".mkv": true, ".mp4": true, ".mov": true, ".flv": true}

// backfillVideo runs after the writer's last batch and records the
// session's external video file, if one can be found.
func (r *Recorder) backfillVideo(ctx context.Context, sink pipeline.Sink) error {
	path, err := FindVideo(r.cfg().Video, time.UnixMilli(r.session.StartWallMs))
	if err != nil {
		return err
	}
	if path == "" {
		return nil
	}
	if err := sink.SetVideoPath(ctx, r.session.ID, path); err != nil {
		return err
	}
	r.logger.Info("video path recorded", "path", path)
	return nil
}

// FindVideo returns v.Path when set. Otherwise it returns the newest
// video file in v.Dir modified at or after since, or "" when there is
// none.
func FindVideo(v config.VideoConfig, since time.Time) (string, error) {
	if v.Path != "" {
		return v.Path, nil
	}
	if v.Dir == "" {
		return "", nil
	}
	entries, err := os.ReadDir(v.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var best string
	var bestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !videoExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if mod.Before(since) || (best != "" && !mod.After(bestMod)) {
			continue
		}
		best, bestMod = filepath.Join(v.Dir, e.Name()), mod
	}
	return best, nil
}
