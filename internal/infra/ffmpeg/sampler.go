package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/signdata/signdata-processing-service/internal/domain/port"
	"go.uber.org/zap"
)

const (
	DefaultTargetFPS = 6.0
	fallbackFPS      = 30.0
)

var ErrCannotOpen = port.ErrCannotOpen

type Sampler struct {
	ffmpegBin  string
	ffprobeBin string
	logger     *zap.Logger
}

func NewSampler(logger *zap.Logger) *Sampler {
	return &Sampler{ffmpegBin: "ffmpeg", ffprobeBin: "ffprobe", logger: logger}
}

type probeResult struct {
	Width     int
	Height    int
	NativeFPS float64
	Duration  float64
}

// SampleFrames decodes videoPath and keeps every stride-th frame, where
// stride = max(1, round(native fps / targetFPS)). A container with no decodable
// frames yields an empty result, not an error.
func (s *Sampler) SampleFrames(ctx context.Context, videoPath string, targetFPS float64) (*port.SampledVideo, error) {
	if targetFPS <= 0 {
		targetFPS = DefaultTargetFPS
	}

	probe, err := s.probe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotOpen, err)
	}

	stride := Stride(probe.NativeFPS, targetFPS)
	frames, err := s.decode(ctx, videoPath, probe.Width, probe.Height, stride)
	if err != nil {
		return nil, err
	}

	s.logger.Info("frames sampled",
		zap.Int("count", len(frames)),
		zap.Float64("native_fps", probe.NativeFPS),
		zap.Int("stride", stride),
		zap.Float64("video_duration", probe.Duration),
	)

	return &port.SampledVideo{
		Frames:    frames,
		NativeFPS: probe.NativeFPS,
		Stride:    stride,
		Duration:  probe.Duration,
	}, nil
}

func Stride(nativeFPS, targetFPS float64) int {
	stride := int(math.Round(nativeFPS / targetFPS))
	if stride < 1 {
		return 1
	}
	return stride
}

func (s *Sampler) probe(ctx context.Context, videoPath string) (*probeResult, error) {
	cmd := exec.CommandContext(ctx, s.ffprobeBin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate:format=duration",
		"-of", "json",
		videoPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w, output: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (*probeResult, error) {
	var raw struct {
		Streams []struct {
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			RFrameRate   string `json:"r_frame_rate"`
			AvgFrameRate string `json:"avg_frame_rate"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(raw.Streams) == 0 {
		return nil, errors.New("no video stream")
	}
	st := raw.Streams[0]
	if st.Width <= 0 || st.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", st.Width, st.Height)
	}

	fps := parseRate(st.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(st.RFrameRate)
	}
	if fps <= 0 {
		fps = fallbackFPS
	}
	duration, _ := strconv.ParseFloat(strings.TrimSpace(raw.Format.Duration), 64)

	return &probeResult{Width: st.Width, Height: st.Height, NativeFPS: fps, Duration: duration}, nil
}

// parseRate reads ffprobe rates such as "30000/1001" or "25". Unreadable rates are 0.
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(rate), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func (s *Sampler) decode(ctx context.Context, videoPath string, width, height, stride int) ([]image.Image, error) {
	cmd := exec.CommandContext(ctx, s.ffmpegBin,
		"-v", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", stride),
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	frames, readErr := readRawFrames(bufio.NewReaderSize(stdout, 1<<20), width, height)
	waitErr := cmd.Wait()
	if readErr != nil {
		return nil, readErr
	}
	if waitErr != nil {
		if len(frames) == 0 {
			return nil, fmt.Errorf("%w: ffmpeg error: %v, output: %s", ErrCannotOpen, waitErr, strings.TrimSpace(stderr.String()))
		}
		s.logger.Warn("ffmpeg exited with error after decoding frames",
			zap.Error(waitErr),
			zap.Int("frames", len(frames)),
			zap.String("stderr", strings.TrimSpace(stderr.String())),
		)
	}
	return frames, nil
}

// readRawFrames splits an rgb24 stream into RGBA images. A trailing partial frame is dropped.
func readRawFrames(r io.Reader, width, height int) ([]image.Image, error) {
	frameSize := width * height * 3
	buf := make([]byte, frameSize)
	var frames []image.Image
	for {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return frames, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read decoded frames: %w", err)
		}

		img := image.NewRGBA(image.Rect(0, 0, width, height))
		for i, j := 0, 0; i < frameSize; i, j = i+3, j+4 {
			img.Pix[j] = buf[i]
			img.Pix[j+1] = buf[i+1]
			img.Pix[j+2] = buf[i+2]
			img.Pix[j+3] = 0xff
		}
		frames = append(frames, img)
	}
}
