package pipeline

import (
	"context"

	"commentary/worker/internal/ffmpeg"
	"commentary/worker/internal/subtitle"

	"go.uber.org/zap"
)

// mux renders the deliverable: composed video, burned subtitles, the
// merged narration track and looped background music mixed at their
// configured volumes. Output length is pinned to the composed video so the
// looping music can never extend it.
func (d *Driver) mux(ctx context.Context, in Inputs, tl *timeline, res *Result) error {
	opts := ffmpeg.MuxOptions{
		Video:             res.ComposedVideo,
		Narration:         res.NarrationTrack,
		BGM:               in.BGM,
		Output:            finalVideoPath(in.WorkDir),
		KeepOriginalAudio: true,
		OriginalVolume:    d.cfg.OriginalVolume,
		NarrationVolume:   d.cfg.NarrationVolume,
		BGMVolume:         d.cfg.BGMVolume,
		Duration:          tl.Total,
		Encoder:           d.media.SelectVideoEncoder(ctx, nil),
	}

	if d.cfg.SubtitleEnabled && res.SubtitleTrack != "" {
		cues, err := subtitle.ParseSRTFile(res.SubtitleTrack)
		if err != nil {
			d.logger.Warn("unreadable merged subtitle track, muxing without subtitles",
				zap.String("task_id", in.TaskID), zap.Error(err))
		} else {
			assPath := subtitleStylePath(in.WorkDir, in.TaskID)
			if err := subtitle.WriteASSFile(assPath, cues, d.cfg.SubtitleStyle, d.cfg.Width, d.cfg.Height); err != nil {
				return &MuxError{Err: err}
			}
			opts.SubtitleASS = assPath
		}
	}

	if err := d.media.Mux(ctx, opts); err != nil {
		return &MuxError{Err: err}
	}
	res.FinalVideo = opts.Output
	return nil
}
