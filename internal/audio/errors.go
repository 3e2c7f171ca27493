package audio

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidUpload     = errors.New("invalid upload")
	ErrFFmpegUnavailable = errors.New("ffmpeg is not available")
)

type UnsupportedFormatError struct {
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported audio format %q", e.Extension)
}

type TooLargeError struct {
	Size int64
	Max  int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("file is %d bytes, limit is %d", e.Size, e.Max)
}
