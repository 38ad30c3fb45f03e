package storage

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lshigami/cefrexam/config"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupportedAudio = errors.New("unsupported audio format")
	ErrAudioTooLarge    = errors.New("audio file exceeds size limit")
	ErrForeignAudioURL  = errors.New("audio url is not served by this storage")
)

const DefaultMaxAudioBytes int64 = 10 << 20

var allowedAudioExt = map[string]bool{
	".webm": true, ".mp3": true, ".m4a": true, ".mp4": true,
	".wav": true, ".ogg": true, ".oga": true, ".opus": true,
}

var allowedAudioMIME = map[string]bool{
	"audio/webm": true, "video/webm": true,
	"audio/mpeg": true, "audio/mp3": true,
	"audio/mp4": true, "audio/m4a": true, "audio/x-m4a": true,
	"audio/wav": true, "audio/x-wav": true, "audio/wave": true,
	"audio/ogg": true, "audio/opus": true,
}

// AudioUpload describes an uploaded file before it is written anywhere.
type AudioUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type AudioStorage interface {
	// Validate rejects the upload before any storage mutation.
	Validate(upload AudioUpload) error
	// SaveAnswerAudio stores the file as {attemptID}_{attemptQuestionID}{ext} and returns its public URL.
	// Retried uploads overwrite the same file.
	SaveAnswerAudio(attemptID, attemptQuestionID uint, upload AudioUpload) (string, error)
	// SaveTemp stores the file under a random name; the returned cleanup removes it.
	SaveTemp(upload AudioUpload) (path string, cleanup func(), err error)
	// LocalPath maps a URL produced by this storage back to a file on disk.
	LocalPath(audioURL string) (string, error)
}

type diskAudioStorage struct {
	dir       string
	urlPrefix string
	maxBytes  int64
}

func NewAudioStorage(cfg *config.Config) (AudioStorage, error) {
	return NewDiskAudioStorage(cfg.Upload.Dir, cfg.Upload.URLPrefix, cfg.Upload.MaxBytes)
}

func NewDiskAudioStorage(dir, urlPrefix string, maxBytes int64) (AudioStorage, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAudioBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &diskAudioStorage{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/"), maxBytes: maxBytes}, nil
}

func (s *diskAudioStorage) Validate(upload AudioUpload) error {
	if upload.Size > s.maxBytes {
		return ErrAudioTooLarge
	}
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	extOK := allowedAudioExt[ext]

	mediaType := ""
	if upload.ContentType != "" {
		if parsed, _, err := mime.ParseMediaType(upload.ContentType); err == nil {
			mediaType = strings.ToLower(parsed)
		}
	}
	switch {
	case allowedAudioMIME[mediaType]:
		return nil
	case (mediaType == "" || mediaType == "application/octet-stream") && extOK:
		return nil
	}
	return fmt.Errorf("%w: %q (%s)", ErrUnsupportedAudio, upload.Filename, upload.ContentType)
}

func (s *diskAudioStorage) extension(upload AudioUpload) string {
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	if allowedAudioExt[ext] {
		return ext
	}
	return ".webm"
}

func (s *diskAudioStorage) SaveAnswerAudio(attemptID, attemptQuestionID uint, upload AudioUpload) (string, error) {
	if err := s.Validate(upload); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%d_%d%s", attemptID, attemptQuestionID, s.extension(upload))
	tmp, err := s.writeTemp(upload)
	if err != nil {
		return "", err
	}
	final := filepath.Join(s.dir, name)
	if err := os.Rename(tmp, final); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", tmp).Msg("Failed to clean up temp audio file")
		}
		return "", fmt.Errorf("failed to move audio into place: %w", err)
	}
	return s.urlPrefix + "/" + name, nil
}

func (s *diskAudioStorage) SaveTemp(upload AudioUpload) (string, func(), error) {
	if err := s.Validate(upload); err != nil {
		return "", nil, err
	}
	tmp, err := s.writeTemp(upload)
	if err != nil {
		return "", nil, err
	}
	// Keep the extension so the transcriber can infer the MIME type.
	path := tmp + s.extension(upload)
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", nil, fmt.Errorf("failed to finalize temp audio: %w", err)
	}
	return path, func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove temp audio")
		}
	}, nil
}

// writeTemp copies the body into a hidden temp file, enforcing the size cap on the
// actual bytes read rather than the declared size.
func (s *diskAudioStorage) writeTemp(upload AudioUpload) (string, error) {
	tmp := filepath.Join(s.dir, ".upload-"+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create temp audio file: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(upload.Body, s.maxBytes+1))
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		err = fmt.Errorf("failed to write audio: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("failed to close audio: %w", closeErr)
	case n > s.maxBytes:
		err = ErrAudioTooLarge
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

func (s *diskAudioStorage) LocalPath(audioURL string) (string, error) {
	if !strings.HasPrefix(audioURL, s.urlPrefix+"/") {
		return "", fmt.Errorf("%w: %s", ErrForeignAudioURL, audioURL)
	}
	name := filepath.Base(strings.TrimPrefix(audioURL, s.urlPrefix+"/"))
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %s", ErrForeignAudioURL, audioURL)
	}
	return filepath.Join(s.dir, name), nil
}
