package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MediaInfo describes the streams of a probed media file.
type MediaInfo struct {
	Duration   time.Duration
	Width      int
	Height     int
	FrameRate  float64
	VideoCodec string
	AudioCodec string
	HasVideo   bool
	HasAudio   bool
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

// Probe inspects a media file with ffprobe and returns its stream layout.
func (e *Executor) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	out, err := e.runner.Output(ctx, e.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse probe output for %s: %w", path, err)
	}

	info := &MediaInfo{}
	if secs, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(secs * float64(time.Second))
	}

	for _, stream := range parsed.Streams {
		switch stream.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.VideoCodec = stream.CodecName
			info.Width = stream.Width
			info.Height = stream.Height
			info.FrameRate = parseFrameRate(stream.RFrameRate)
			if info.FrameRate == 0 {
				info.FrameRate = parseFrameRate(stream.AvgFrameRate)
			}
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioCodec = stream.CodecName
		}
	}

	if info.Duration == 0 {
		for _, stream := range parsed.Streams {
			if secs, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
				d := time.Duration(secs * float64(time.Second))
				if d > info.Duration {
					info.Duration = d
				}
			}
		}
	}

	return info, nil
}

// Duration returns the container duration of a media file.
func (e *Executor) Duration(ctx context.Context, path string) (time.Duration, error) {
	info, err := e.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

func parseFrameRate(raw string) float64 {
	num, den, ok := strings.Cut(raw, "/")
	if !ok {
		value, _ := strconv.ParseFloat(raw, 64)
		return value
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
