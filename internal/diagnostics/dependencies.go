package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"

	"go2tv.app/embedplayer/internal/domain"
)

var (
	lookPath   = exec.LookPath
	runCommand = defaultRunCommand
)

type BinaryStatus struct {
	Found bool   `json:"found"`
	Path  string `json:"path,omitempty"`
}

// DependencyReport describes optional host tooling. ffprobe is used to
// probe intrinsic media dimensions for the initial player size; the
// embed host works without it.
type DependencyReport struct {
	FFprobe      BinaryStatus `json:"ffprobe"`
	ProbeSupport bool         `json:"probe_support"`
}

func DetectDependencies() DependencyReport {
	ffprobe := detectBinary("ffprobe")
	return DependencyReport{
		FFprobe:      ffprobe,
		ProbeSupport: ffprobe.Found,
	}
}

func detectBinary(name string) BinaryStatus {
	path, err := lookPath(name)
	if err != nil {
		return BinaryStatus{Found: false}
	}
	return BinaryStatus{Found: true, Path: path}
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// ProbeDimensions asks ffprobe for the first video stream's intrinsic
// size. Returns an error when ffprobe is missing or the source carries
// no video stream with usable dimensions.
func ProbeDimensions(ctx context.Context, source string) (domain.Size, error) {
	if _, err := lookPath("ffprobe"); err != nil {
		return domain.Size{}, errors.New("ffprobe is not available")
	}

	raw, err := runCommand(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "v",
		source,
	)
	if err != nil {
		return domain.Size{}, err
	}

	var parsed probeOutput
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.Size{}, err
	}
	for _, stream := range parsed.Streams {
		if stream.CodecType == "video" && stream.Width > 0 && stream.Height > 0 {
			return domain.Size{Width: stream.Width, Height: stream.Height}, nil
		}
	}
	return domain.Size{}, errors.New("no video stream with usable dimensions")
}

func defaultRunCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
