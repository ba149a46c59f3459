package recorder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"deskrec/internal/coalesce"
	"deskrec/internal/config"
	"deskrec/internal/dib"
	"deskrec/internal/event"
)

// clipboardLoop watches the clipboard sequence number and captures the
// content once it has stopped changing for the debounce interval.
// Changes made while paused or disabled are skipped.
func (r *Recorder) clipboardLoop(ctx context.Context) {
	poll := r.cfg().Clipboard.Poll()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	lastSeq := r.clipSeq
	var pending bool
	var changedMs int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cc := r.cfg().Clipboard
		if p := cc.Poll(); p != poll {
			poll = p
			ticker.Reset(poll)
		}

		seq := r.plat.Clipboard.Sequence()
		if !r.running() || !cc.Enabled {
			lastSeq, pending = seq, false
			continue
		}
		now := r.clock.MonoMs()
		if seq != lastSeq {
			lastSeq, pending, changedMs = seq, true, now
			continue
		}
		if pending && now-changedMs >= cc.Debounce().Milliseconds() {
			pending = false
			r.captureClipboard(cc, now)
		}
	}
}

// captureClipboard classifies the settled clipboard as image, file list
// or text, in that order, and emits at most one record.
func (r *Recorder) captureClipboard(cc config.ClipboardConfig, now int64) {
	win := r.tracker.context()
	if !r.gate.AllowProcess(win.Process) {
		r.logger.Debug("clipboard change in excluded process skipped")
		return
	}
	content, err := r.plat.Clipboard.Read()
	if err != nil {
		r.logger.Debug("read clipboard", "error", err)
		return
	}

	var rec event.Record
	var handled bool
	if content.HasDIB {
		rec, handled = r.imageRecord(cc, content.DIB, now)
	}
	switch {
	case handled:
	case content.HasFiles && len(content.Files) > 0:
		parts := make([][]byte, len(content.Files))
		for i, f := range content.Files {
			parts[i] = []byte(f)
		}
		if !r.checkDedupe(coalesce.HashContent("files", parts...), now) {
			return
		}
		rec = r.newRecord(event.ClipboardFiles, map[string]any{
			"files": content.Files,
			"count": len(content.Files),
		})
	case content.HasText && content.Text != "":
		if !r.checkDedupe(coalesce.HashContent("text", []byte(content.Text)), now) {
			return
		}
		runes := []rune(content.Text)
		text, truncated := content.Text, false
		if cc.MaxTextChars > 0 && len(runes) > cc.MaxTextChars {
			text, truncated = string(runes[:cc.MaxTextChars]), true
		}
		rec = r.newRecord(event.ClipboardText, map[string]any{
			"text":      text,
			"length":    len(runes),
			"truncated": truncated,
		})
	}
	if rec.Type == "" {
		return
	}
	r.emit(rec.WithWindow(win))
}

// imageRecord builds the record for a bitmap. handled is false when the
// bitmap cannot be decoded, so classification falls through to the next
// type. A duplicate is handled with an empty record.
func (r *Recorder) imageRecord(cc config.ClipboardConfig, data []byte, now int64) (rec event.Record, handled bool) {
	img, _, err := dib.Decode(data)
	if err != nil {
		r.logger.Debug("clipboard bitmap not decodable", "error", err)
		return event.Record{}, false
	}
	if !r.checkDedupe(coalesce.HashContent("image", data), now) {
		return event.Record{}, true
	}

	b := img.Bounds()
	payload := map[string]any{
		"width":  b.Dx(),
		"height": b.Dy(),
		"bytes":  len(data),
	}
	if cc.SaveImages && r.paths.Dir != "" {
		path, err := r.saveImage(img, now)
		if err != nil {
			r.logger.Warn("save clipboard image", "error", err)
		} else {
			payload["path"] = path
		}
	}
	return r.newRecord(event.ClipboardImage, payload), true
}

// saveImage writes img as a self-contained BMP under the session's
// clipboard directory.
func (r *Recorder) saveImage(img image.Image, now int64) (string, error) {
	dir := filepath.Join(r.paths.Clipboard(), r.session.ID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create clipboard dir: %w", err)
	}
	var buf bytes.Buffer
	if err := dib.EncodeBMP(&buf, img); err != nil {
		return "", err
	}
	path := filepath.Join(dir, strconv.FormatInt(now, 10)+".bmp")
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return "", fmt.Errorf("write bitmap: %w", err)
	}
	return path, nil
}

func (r *Recorder) checkDedupe(h coalesce.Hash, now int64) bool {
	if r.dedupe.Check(h, now) {
		return true
	}
	r.metrics.ClipboardSuppressed.Inc()
	return false
}
