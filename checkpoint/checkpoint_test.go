package checkpoint

import (
	"context"
	"github.com/getcharzp/volseg/sam2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestResolve_UnknownVariant(t *testing.T) {
	p := &Provider{Dir: t.TempDir()}
	_, err := p.Resolve(context.Background(), "sam2_hiera_huge")
	require.ErrorIs(t, err, ErrUnknownVariant)
}

func TestResolve_Downloads(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := &Provider{BaseURL: srv.URL + "/", Dir: dir, Client: srv.Client()}
	cp, err := p.Resolve(context.Background(), "sam2_hiera_small")
	require.NoError(t, err)
	assert.Empty(t, cp.Warnings)
	assert.Len(t, cp.Downloaded, 2)
	assert.True(t, cp.Ready())

	data, err := os.ReadFile(filepath.Join(dir, "sam2_hiera_small", sam2.EncoderFile))
	require.NoError(t, err)
	assert.Equal(t, "/sam2_hiera_small/"+sam2.EncoderFile, string(data))

	// 已存在的文件不再下载
	cp, err = p.Resolve(context.Background(), "sam2_hiera_small")
	require.NoError(t, err)
	assert.Empty(t, cp.Downloaded)
	assert.Equal(t, int32(2), hits.Load())

	cfg := cp.Config()
	assert.Equal(t, filepath.Join(dir, "sam2_hiera_small", sam2.DecoderFile), cfg.DecodeModelPath)
}

func TestResolve_FailureIsWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := &Provider{BaseURL: srv.URL, Dir: dir, Client: srv.Client()}
	cp, err := p.Resolve(context.Background(), "sam2_hiera_tiny")
	require.NoError(t, err)
	assert.Len(t, cp.Warnings, 2)
	assert.Empty(t, cp.Downloaded)
	assert.False(t, cp.Ready())

	// 失败时不留下半成品
	entries, err := os.ReadDir(filepath.Join(dir, "sam2_hiera_tiny"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResolve_NoBaseURL(t *testing.T) {
	dir := t.TempDir()
	variantDir := filepath.Join(dir, "sam2_hiera_large")
	require.NoError(t, os.MkdirAll(variantDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(variantDir, sam2.EncoderFile), []byte("x"), 0o644))

	p := &Provider{Dir: dir}
	cp, err := p.Resolve(context.Background(), "sam2_hiera_large")
	require.NoError(t, err)
	assert.Len(t, cp.Warnings, 1)
	assert.False(t, cp.Ready())
}
