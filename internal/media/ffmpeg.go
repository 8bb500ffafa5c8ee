package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/voxsub/voxsub/internal/models"
)

// ProgressFunc receives encode progress in percent of the known duration.
type ProgressFunc func(percent float64)

// FFmpeg runs transcode and render operations.
type FFmpeg struct {
	runner       *Runner
	ffmpegPath   string
	fontDir      string
	subtitleFont string
	rtlFont      string
	logger       *slog.Logger
}

// FFmpegOptions configures an FFmpeg instance.
type FFmpegOptions struct {
	BinaryPath   string
	FontDir      string
	SubtitleFont string
	RTLFont      string
}

// NewFFmpeg creates an FFmpeg wrapper.
func NewFFmpeg(runner *Runner, opts FFmpegOptions, logger *slog.Logger) *FFmpeg {
	if opts.BinaryPath == "" {
		opts.BinaryPath = "ffmpeg"
	}
	if opts.SubtitleFont == "" {
		opts.SubtitleFont = "DejaVu Sans"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{
		runner:       runner,
		ffmpegPath:   opts.BinaryPath,
		fontDir:      opts.FontDir,
		subtitleFont: opts.SubtitleFont,
		rtlFont:      opts.RTLFont,
		logger:       logger,
	}
}

// ExtractAudio demuxes the audio track to mono 16 kHz PCM WAV, the input
// format whisper expects.
func (f *FFmpeg) ExtractAudio(ctx context.Context, input, output string, durationS float64, onProgress ProgressFunc) error {
	args := []string{
		"-y", "-hide_banner", "-nostdin",
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
	}
	args = appendProgressArgs(args)
	args = append(args, output)
	return f.run(ctx, args, durationS, onProgress)
}

// BurnInOptions describes a subtitle burn-in render.
type BurnInOptions struct {
	Input        string
	SubtitlePath string
	Output       string
	DurationS    float64
	// RTL selects the right-to-left subtitle font.
	RTL bool
	// Watermark, when enabled, overlays a logo on top of the video.
	Watermark models.WatermarkChoices
	// LogoPath is the absolute path of the watermark image. Required when
	// Watermark.Enabled.
	LogoPath string
}

// BurnIn renders subtitles (and an optional watermark) into the video in a
// single pass. Audio is copied untouched.
func (f *FFmpeg) BurnIn(ctx context.Context, opts BurnInOptions, onProgress ProgressFunc) error {
	filter, err := f.buildBurnInFilter(opts)
	if err != nil {
		return err
	}

	args := []string{
		"-y", "-hide_banner", "-nostdin",
		"-i", opts.Input,
	}
	if opts.Watermark.Enabled {
		args = append(args, "-i", opts.LogoPath)
	}
	args = append(args,
		"-filter_complex", filter,
		"-map", "[vout]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "20",
		"-c:a", "copy",
		"-movflags", "+faststart",
	)
	args = appendProgressArgs(args)
	args = append(args, opts.Output)
	return f.run(ctx, args, opts.DurationS, onProgress)
}

// buildBurnInFilter assembles the single filtergraph for subtitles plus an
// optional watermark overlay.
func (f *FFmpeg) buildBurnInFilter(opts BurnInOptions) (string, error) {
	font := f.subtitleFont
	if opts.RTL && f.rtlFont != "" {
		font = f.rtlFont
	}

	var sub strings.Builder
	sub.WriteString("subtitles=")
	sub.WriteString(escapeFilterPath(opts.SubtitlePath))
	if f.fontDir != "" {
		sub.WriteString(":fontsdir=")
		sub.WriteString(escapeFilterPath(f.fontDir))
	}
	sub.WriteString(":force_style='FontName=")
	sub.WriteString(font)
	sub.WriteString("'")

	if !opts.Watermark.Enabled {
		return fmt.Sprintf("[0:v]%s[vout]", sub.String()), nil
	}

	if opts.LogoPath == "" {
		return "", fmt.Errorf("watermark enabled without logo path")
	}

	scale := watermarkScale(opts.Watermark.Size)
	opacity := float64(opts.Watermark.Opacity) / 100.0
	x, y := watermarkCoords(opts.Watermark.Position)

	// Logo is scaled relative to the main video width, faded to the
	// requested opacity, then overlaid after subtitles are rendered.
	return fmt.Sprintf(
		"[1:v]format=rgba,colorchannelmixer=aa=%.2f[wm];"+
			"[0:v]%s[subbed];"+
			"[wm][subbed]scale2ref=w=iw*%.2f:h=ow/mdar[wms][base];"+
			"[base][wms]overlay=%s:%s[vout]",
		opacity, sub.String(), scale, x, y,
	), nil
}

// watermarkScale maps the size choice to a fraction of the video width.
func watermarkScale(size models.WatermarkSize) float64 {
	switch size {
	case models.SizeSmall:
		return 0.08
	case models.SizeLarge:
		return 0.18
	default:
		return 0.12
	}
}

// watermarkCoords maps the position choice to overlay x:y expressions with a
// 2% margin.
func watermarkCoords(pos models.WatermarkPosition) (x, y string) {
	const margin = "main_w*0.02"
	switch pos {
	case models.PositionTopLeft:
		return margin, margin
	case models.PositionTopRight:
		return "main_w-overlay_w-" + margin, margin
	case models.PositionBottomLeft:
		return margin, "main_h-overlay_h-" + margin
	case models.PositionCenter:
		return "(main_w-overlay_w)/2", "(main_h-overlay_h)/2"
	default:
		return "main_w-overlay_w-" + margin, "main_h-overlay_h-" + margin
	}
}

// escapeFilterPath escapes a path for use as a filter option value inside an
// ffmpeg filtergraph. The value is parsed twice: the filter option parser
// consumes one level of escaping (quote, backslash, colon), then the graph
// parser consumes another and additionally treats brackets, commas, and
// semicolons specially. A quote therefore ends up as \\\' in the final
// string.
func escapeFilterPath(path string) string {
	option := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
	)
	graph := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`[`, `\[`,
		`]`, `\]`,
		`,`, `\,`,
		`;`, `\;`,
	)
	return graph.Replace(option.Replace(path))
}

// Cut re-encodes a time range of the input. Seeking happens before the input
// for speed; the re-encode keeps cut points frame accurate.
func (f *FFmpeg) Cut(ctx context.Context, input, output string, startS, endS float64, onProgress ProgressFunc) error {
	if endS <= startS {
		return fmt.Errorf("invalid cut range: start %.3f >= end %.3f", startS, endS)
	}
	duration := endS - startS
	args := []string{
		"-y", "-hide_banner", "-nostdin",
		"-ss", formatSeconds(startS),
		"-i", input,
		"-t", formatSeconds(duration),
	}
	args = append(args, reencodeArgs()...)
	args = appendProgressArgs(args)
	args = append(args, output)
	return f.run(ctx, args, duration, onProgress)
}

// Merge concatenates the inputs with the concat demuxer and re-encodes to a
// uniform stream. The list file is written next to the output.
func (f *FFmpeg) Merge(ctx context.Context, inputs []string, output string, totalDurationS float64, onProgress ProgressFunc) error {
	if len(inputs) < 2 {
		return fmt.Errorf("merge requires at least two inputs, got %d", len(inputs))
	}

	listPath := output + ".concat.txt"
	var list strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return fmt.Errorf("resolving merge input: %w", err)
		}
		list.WriteString("file '")
		list.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		list.WriteString("'\n")
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o640); err != nil {
		return fmt.Errorf("writing concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y", "-hide_banner", "-nostdin",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
	}
	args = append(args, reencodeArgs()...)
	args = appendProgressArgs(args)
	args = append(args, output)
	return f.run(ctx, args, totalDurationS, onProgress)
}

// EmbedSubs muxes a subtitle track into the container without re-encoding
// the media streams. MP4 output uses mov_text; everything else carries SRT.
func (f *FFmpeg) EmbedSubs(ctx context.Context, input, subtitlePath, output string, durationS float64, onProgress ProgressFunc) error {
	subCodec := "srt"
	if strings.EqualFold(filepath.Ext(output), ".mp4") {
		subCodec = "mov_text"
	}
	args := []string{
		"-y", "-hide_banner", "-nostdin",
		"-i", input,
		"-i", subtitlePath,
		"-map", "0",
		"-map", "1:0",
		"-c", "copy",
		"-c:s", subCodec,
	}
	args = appendProgressArgs(args)
	args = append(args, output)
	return f.run(ctx, args, durationS, onProgress)
}

// AddLogo overlays a logo on the video without subtitles.
func (f *FFmpeg) AddLogo(ctx context.Context, input, logoPath, output string, durationS float64, wm models.WatermarkChoices, onProgress ProgressFunc) error {
	scale := watermarkScale(wm.Size)
	opacity := float64(wm.Opacity) / 100.0
	x, y := watermarkCoords(wm.Position)

	filter := fmt.Sprintf(
		"[1:v]format=rgba,colorchannelmixer=aa=%.2f[wm];"+
			"[wm][0:v]scale2ref=w=iw*%.2f:h=ow/mdar[wms][base];"+
			"[base][wms]overlay=%s:%s[vout]",
		opacity, scale, x, y,
	)

	args := []string{
		"-y", "-hide_banner", "-nostdin",
		"-i", input,
		"-i", logoPath,
		"-filter_complex", filter,
		"-map", "[vout]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "20",
		"-c:a", "copy",
		"-movflags", "+faststart",
	}
	args = appendProgressArgs(args)
	args = append(args, output)
	return f.run(ctx, args, durationS, onProgress)
}

// Reencode normalizes arbitrary input to H.264 video and AAC audio in an
// MP4 container with the moov atom up front.
func (f *FFmpeg) Reencode(ctx context.Context, input, output string, durationS float64, onProgress ProgressFunc) error {
	args := []string{
		"-y", "-hide_banner", "-nostdin",
		"-i", input,
	}
	args = append(args, reencodeArgs()...)
	args = appendProgressArgs(args)
	args = append(args, output)
	return f.run(ctx, args, durationS, onProgress)
}

func reencodeArgs() []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "20",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
	}
}

func appendProgressArgs(args []string) []string {
	return append(args, "-progress", "pipe:1", "-v", "error")
}

func (f *FFmpeg) run(ctx context.Context, args []string, durationS float64, onProgress ProgressFunc) error {
	parser := newProgressParser(durationS, onProgress)
	return f.runner.Run(ctx, Command{
		Path:   f.ffmpegPath,
		Args:   args,
		OnLine: parser.Line,
	})
}

// progressParser turns ffmpeg -progress key=value lines into percentages.
type progressParser struct {
	durationS  float64
	onProgress ProgressFunc
	lastPct    float64
}

func newProgressParser(durationS float64, onProgress ProgressFunc) *progressParser {
	return &progressParser{durationS: durationS, onProgress: onProgress}
}

// Line consumes one line of -progress output. Lines that are not progress
// keys are ignored.
func (p *progressParser) Line(line string) {
	if p.onProgress == nil || p.durationS <= 0 {
		return
	}
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found {
		return
	}

	var outSeconds float64
	switch key {
	case "out_time_us":
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return
		}
		outSeconds = float64(us) / 1e6
	case "out_time":
		outSeconds = parseClockTime(value)
		if outSeconds < 0 {
			return
		}
	case "progress":
		if value == "end" {
			p.report(100)
		}
		return
	default:
		return
	}

	pct := outSeconds / p.durationS * 100
	if pct > 100 {
		pct = 100
	}
	p.report(pct)
}

func (p *progressParser) report(pct float64) {
	if pct <= p.lastPct {
		return
	}
	p.lastPct = pct
	p.onProgress(pct)
}

// parseClockTime parses "HH:MM:SS.micros" into seconds, returning -1 on
// malformed input.
func parseClockTime(s string) float64 {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return -1
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return -1
	}
	return h*3600 + m*60 + sec
}

// formatSeconds renders a duration in seconds for ffmpeg arguments.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
