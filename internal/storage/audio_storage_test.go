package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorage(t *testing.T, maxBytes int64) (AudioStorage, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewDiskAudioStorage(dir, "/uploads", maxBytes)
	require.NoError(t, err)
	return s, dir
}

func upload(name, contentType string, body []byte) AudioUpload {
	return AudioUpload{Filename: name, ContentType: contentType, Size: int64(len(body)), Body: bytes.NewReader(body)}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSaveAnswerAudio_DeterministicName(t *testing.T) {
	s, dir := newStorage(t, 0)

	url, err := s.SaveAnswerAudio(7, 31, upload("rec.webm", "audio/webm", []byte("first")))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/7_31.webm", url)

	url, err = s.SaveAnswerAudio(7, 31, upload("rec.webm", "audio/webm;codecs=opus", []byte("second")))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/7_31.webm", url)

	data, err := os.ReadFile(filepath.Join(dir, "7_31.webm"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	assert.Equal(t, []string{"7_31.webm"}, listDir(t, dir))
}

func TestValidate(t *testing.T) {
	s, _ := newStorage(t, 16)

	cases := []struct {
		name    string
		upload  AudioUpload
		wantErr error
	}{
		{"mpeg", upload("a.mp3", "audio/mpeg", nil), nil},
		{"m4a", upload("a.m4a", "audio/x-m4a", nil), nil},
		{"ogg", upload("a.ogg", "audio/ogg", nil), nil},
		{"octet stream with wav ext", upload("a.wav", "application/octet-stream", nil), nil},
		{"no content type", upload("a.webm", "", nil), nil},
		{"image", upload("a.png", "image/png", nil), ErrUnsupportedAudio},
		{"octet stream with exe", upload("a.exe", "application/octet-stream", nil), ErrUnsupportedAudio},
		{"declared too large", AudioUpload{Filename: "a.mp3", ContentType: "audio/mpeg", Size: 17}, ErrAudioTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Validate(tc.upload)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestSaveAnswerAudio_RejectsOversizeBodyAndCleansUp(t *testing.T) {
	s, dir := newStorage(t, 8)

	// Declared size lies; the real body is larger than the cap.
	u := AudioUpload{Filename: "a.webm", ContentType: "audio/webm", Size: 4, Body: strings.NewReader("0123456789")}
	_, err := s.SaveAnswerAudio(1, 2, u)
	assert.ErrorIs(t, err, ErrAudioTooLarge)
	assert.Empty(t, listDir(t, dir))
}

func TestSaveTemp(t *testing.T) {
	s, dir := newStorage(t, 0)

	path, cleanup, err := s.SaveTemp(upload("clip.ogg", "audio/ogg", []byte("x")))
	require.NoError(t, err)
	assert.Equal(t, ".ogg", filepath.Ext(path))
	assert.FileExists(t, path)

	cleanup()
	assert.NoFileExists(t, path)
	assert.Empty(t, listDir(t, dir))
}

func TestLocalPath(t *testing.T) {
	s, dir := newStorage(t, 0)

	p, err := s.LocalPath("/uploads/7_31.webm")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "7_31.webm"), p)

	_, err = s.LocalPath("https://cdn.example.com/7_31.webm")
	assert.ErrorIs(t, err, ErrForeignAudioURL)

	p, err = s.LocalPath("/uploads/../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "passwd"), p)
}
