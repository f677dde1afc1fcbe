package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/asticode/go-astisub"

	"github.com/jwulff/transcribe/internal/errs"
)

// Format is an export format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
)

// ParseFormat accepts the format names and common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "srt":
		return FormatSRT, nil
	case "vtt", "webvtt":
		return FormatVTT, nil
	}
	return "", &errs.ValidationError{Msg: fmt.Sprintf("unknown export format %q", s)}
}

func (f Format) ext() string {
	if f == FormatText {
		return "txt"
	}
	return string(f)
}

// File is an export ready to be written.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Exporter renders results. It never modifies them.
type Exporter struct {
	now func() time.Time
}

// NewExporter returns an Exporter stamping filenames with the current time.
func NewExporter() *Exporter {
	return &Exporter{now: time.Now}
}

// Export renders res as format.
func (e *Exporter) Export(res Result, format Format) (File, error) {
	var (
		data []byte
		ct   string
		err  error
	)
	switch format {
	case FormatText:
		text := res.Display()
		if text == "" {
			return File{}, &errs.NoDataError{Format: "text"}
		}
		data, ct = []byte(text), "text/plain; charset=utf-8"
	case FormatJSON:
		if res.Empty() {
			return File{}, &errs.NoDataError{Format: "JSON"}
		}
		data, err = json.MarshalIndent(res, "", "  ")
		if err != nil {
			return File{}, fmt.Errorf("marshal result: %w", err)
		}
		ct = "application/json"
	case FormatSRT, FormatVTT:
		subs := subtitles(res)
		if len(subs.Items) == 0 {
			return File{}, &errs.NoDataError{Format: "speaker segment"}
		}
		buf := &bytes.Buffer{}
		if format == FormatSRT {
			err, ct = subs.WriteToSRT(buf), "application/x-subrip"
		} else {
			err, ct = subs.WriteToWebVTT(buf), "text/vtt"
		}
		if err != nil {
			return File{}, fmt.Errorf("write %s: %w", format, err)
		}
		data = buf.Bytes()
	default:
		return File{}, &errs.ValidationError{Msg: fmt.Sprintf("unknown export format %q", format)}
	}

	return File{
		Filename:    fmt.Sprintf("transcription_%d.%s", e.now().UnixMilli(), format.ext()),
		ContentType: ct,
		Data:        data,
	}, nil
}

// subtitles lays out all speaker segments by start time.
func subtitles(res Result) *astisub.Subtitles {
	type labeled struct {
		speaker string
		seg     Segment
	}
	var all []labeled
	for speaker, segs := range res.Speakers {
		for _, s := range segs {
			if strings.TrimSpace(s.Text) == "" {
				continue
			}
			all = append(all, labeled{speaker, s})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].seg.Start != all[j].seg.Start {
			return all[i].seg.Start < all[j].seg.Start
		}
		return all[i].speaker < all[j].speaker
	})

	subs := astisub.NewSubtitles()
	for _, l := range all {
		item := &astisub.Item{}
		item.StartAt = time.Duration(int(l.seg.Start*1000)) * time.Millisecond
		item.EndAt = time.Duration(int(l.seg.End*1000)) * time.Millisecond
		text := strings.TrimSpace(l.seg.Text)
		if len(res.Speakers) > 1 {
			text = l.speaker + ": " + text
		}
		item.Lines = append(item.Lines, astisub.Line{Items: []astisub.LineItem{{Text: text}}})
		subs.Items = append(subs.Items, item)
	}
	return subs
}

// Save writes f into dir and returns its path.
func (e *Exporter) Save(f File, dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, f.Filename)
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}
