package storage

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{
		BasePath:   t.TempDir(),
		BaseURL:    "http://localhost:8080/files/",
		SigningKey: "test-key",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	key := ExportKey(uuid.New())

	require.NoError(t, s.Put(ctx, key, strings.NewReader("xlsx-bytes"), PutOptions{}))

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, info, err := s.Get(ctx, key)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "xlsx-bytes", string(body))
	assert.Equal(t, ContentTypeXLSX, info.ContentType)
	assert.EqualValues(t, 10, info.Size)

	err = s.Put(ctx, key, strings.NewReader("again"), PutOptions{})
	assert.ErrorIs(t, err, ErrKeyExists)
	require.NoError(t, s.Put(ctx, key, strings.NewReader("again"), PutOptions{Overwrite: true}))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	_, _, err = s.Get(ctx, key)
	assert.True(t, IsNotFound(err))
}

func TestLocalStorage_MaxSize(t *testing.T) {
	s := newTestLocal(t)
	err := s.Put(context.Background(), "exports/a/b.xlsx", strings.NewReader("0123456789"), PutOptions{MaxSize: 4})
	assert.True(t, IsTooLarge(err))

	ok, _ := s.Exists(context.Background(), "exports/a/b.xlsx")
	assert.False(t, ok)
}

func TestLocalStorage_InvalidKeys(t *testing.T) {
	s := newTestLocal(t)
	for _, key := range []string{"", "../etc/passwd", "/abs/path", "exports/../../x"} {
		err := s.Put(context.Background(), key, strings.NewReader("x"), PutOptions{})
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestLocalStorage_SignedURLs(t *testing.T) {
	s := newTestLocal(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	key := "exports/u1/list.xlsx"
	require.NoError(t, s.Put(context.Background(), key, strings.NewReader("data"), PutOptions{}))

	link, err := s.URL(context.Background(), key, time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "http://localhost:8080/files/exports/u1/list.xlsx?"))

	u, err := url.Parse(link)
	require.NoError(t, err)
	h := http.StripPrefix("/files", s.Handler())

	fetch := func(rawQuery string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/files/"+key+"?"+rawQuery, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := fetch(u.RawQuery)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "list.xlsx")

	q := u.Query()
	q.Set("signature", strings.Repeat("0", 64))
	assert.Equal(t, http.StatusForbidden, fetch(q.Encode()).Code)

	now = now.Add(2 * time.Hour)
	assert.Equal(t, http.StatusForbidden, fetch(u.RawQuery).Code)
}

func TestIsSpreadsheet(t *testing.T) {
	tests := []struct {
		contentType, filename string
		want                  bool
	}{
		{ContentTypeXLSX, "words.xlsx", true},
		{"application/octet-stream", "words.XLSX", true},
		{"", "words.xlsx", true},
		{"text/csv", "words.csv", false},
		{"application/octet-stream", "words.exe", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsSpreadsheet(tt.contentType, tt.filename), tt.filename)
	}
}
