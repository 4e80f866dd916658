package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirWriter_Write(t *testing.T) {
	root := t.TempDir()
	w := NewDirWriter(root)

	require.NoError(t, w.Write(context.Background(), "novels/Moon1-3.txt", "hello"))

	got, err := os.ReadFile(filepath.Join(root, "novels", "Moon1-3.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	leftovers, _ := filepath.Glob(filepath.Join(root, "novels", "*.part"))
	assert.Empty(t, leftovers)
}

func TestDirWriter_Overwrites(t *testing.T) {
	root := t.TempDir()
	w := NewDirWriter(root)

	require.NoError(t, w.Write(context.Background(), "a.txt", "one"))
	require.NoError(t, w.Write(context.Background(), "a.txt", "two"))

	got, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	assert.Equal(t, "two", string(got))
}

func TestDirWriter_NoDir(t *testing.T) {
	err := NewDirWriter(filepath.Join(t.TempDir(), "missing")).Write(context.Background(), "a.txt", "x")
	assert.ErrorIs(t, err, ErrNoDir)

	err = NewDirWriter("").Write(context.Background(), "a.txt", "x")
	assert.ErrorIs(t, err, ErrNoDir)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	err = NewDirWriter(file).Write(context.Background(), "a.txt", "x")
	assert.ErrorIs(t, err, ErrNoDir)
}

func TestDirWriter_NoPermission(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}

	root := t.TempDir()
	require.NoError(t, os.Chmod(root, 0555))
	t.Cleanup(func() { _ = os.Chmod(root, 0755) })

	err := NewDirWriter(root).Write(context.Background(), "a.txt", "x")
	assert.ErrorIs(t, err, ErrNoPermission)
}

func TestDirWriter_RejectsEscape(t *testing.T) {
	err := NewDirWriter(t.TempDir()).Write(context.Background(), "../evil.txt", "x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoDir))
}

func TestFileDownloader_Uniquifies(t *testing.T) {
	dir := t.TempDir()
	d := NewFileDownloader(dir)

	id1, err := d.Download(context.Background(), []byte("a"), "Moon1-3.txt")
	require.NoError(t, err)
	id2, err := d.Download(context.Background(), []byte("b"), "Moon1-3.txt")
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	first, _ := os.ReadFile(filepath.Join(dir, "Moon1-3.txt"))
	second, _ := os.ReadFile(filepath.Join(dir, "Moon1-3 (1).txt"))
	assert.Equal(t, "a", string(first))
	assert.Equal(t, "b", string(second))
}

type fakeWriter struct {
	err   error
	calls int
}

func (f *fakeWriter) Write(context.Context, string, string) error {
	f.calls++
	return f.err
}

type fakeDownloader struct {
	names []string
	err   error
}

func (f *fakeDownloader) Download(_ context.Context, _ []byte, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.names = append(f.names, name)
	return "id-" + name, nil
}

func TestSink_DirectoryFirst(t *testing.T) {
	w, dl := &fakeWriter{}, &fakeDownloader{}
	s := NewSink(w, dl, nil)

	require.NoError(t, s.Persist(context.Background(), "a.txt", "x"))

	assert.Equal(t, 1, w.calls)
	assert.Empty(t, dl.names)
	assert.Equal(t, []Saved{{Name: "a.txt", Via: ViaDirectory}}, s.Saved())
}

func TestSink_UnauthorizedDisablesDirectory(t *testing.T) {
	for _, cause := range []error{ErrNoDir, ErrNoPermission} {
		t.Run(cause.Error(), func(t *testing.T) {
			w, dl := &fakeWriter{err: cause}, &fakeDownloader{}
			s := NewSink(w, dl, nil)

			err := s.Persist(context.Background(), "a.txt", "x")
			require.ErrorIs(t, err, ErrWriteUnauthorized)
			require.ErrorIs(t, err, cause)
			assert.True(t, s.DirDisabled())
			assert.Empty(t, dl.names)

			// the directory is no longer tried
			require.NoError(t, s.Persist(context.Background(), "b.txt", "x"))
			assert.Equal(t, 1, w.calls)
			assert.Equal(t, []string{"b.txt"}, dl.names)

			s.Reset()
			assert.False(t, s.DirDisabled())
			assert.Empty(t, s.Saved())
		})
	}
}

func TestSink_OtherErrorsFallBack(t *testing.T) {
	w, dl := &fakeWriter{err: errors.New("disk full")}, &fakeDownloader{}
	s := NewSink(w, dl, nil)

	require.NoError(t, s.Persist(context.Background(), "a.txt", "x"))

	assert.Equal(t, []string{"a.txt"}, dl.names)
	assert.False(t, s.DirDisabled())
	assert.Equal(t, ViaDownload, s.Saved()[0].Via)
	assert.Equal(t, "id-a.txt", s.Saved()[0].ID)
}

func TestSink_NoDirectoryUsesDownloader(t *testing.T) {
	dl := &fakeDownloader{}
	s := NewSink(nil, dl, nil)

	require.NoError(t, s.Persist(context.Background(), "a.txt", "x"))
	assert.Equal(t, []string{"a.txt"}, dl.names)
}

func TestSink_DownloaderError(t *testing.T) {
	boom := errors.New("boom")
	s := NewSink(nil, &fakeDownloader{err: boom}, nil)

	assert.ErrorIs(t, s.Persist(context.Background(), "a.txt", "x"), boom)
}
