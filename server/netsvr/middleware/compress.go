package middleware

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// CompressConfig 壓縮等級
type CompressConfig struct {
	GzipLevel int
	ZstdLevel zstd.EncoderLevel
}

var DefaultCompressConfig = CompressConfig{
	GzipLevel: gzip.DefaultCompression,
	ZstdLevel: zstd.SpeedFastest,
}

// --- Pools ---
var (
	gzipPool sync.Pool
	zstdPool sync.Pool
)

// encoder 是 gzip.Writer 與 zstd.Encoder 的共同形狀
type encoder interface {
	io.Writer
	Flush() error
	Close() error
}

// codec 一種 Content-Encoding 的取得與歸還方式
type codec struct {
	name    string
	get     func(w io.Writer) encoder
	release func(e encoder, discard bool)
}

// 依偏好順序
var codecs = [...]codec{
	{name: "zstd", get: getZstdWriter, release: releaseZstdWriter},
	{name: "gzip", get: getGzipWriter, release: releaseGzipWriter},
}

func getZstdWriter(w io.Writer) encoder {
	if v := zstdPool.Get(); v != nil {
		zw := v.(*zstd.Encoder)
		zw.Reset(w)
		return zw
	}
	zw, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(DefaultCompressConfig.ZstdLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic(err)
	}
	return zw
}

func releaseZstdWriter(e encoder, discard bool) {
	zw := e.(*zstd.Encoder)
	// 204/304 不能帶 footer
	if discard {
		zw.Reset(io.Discard)
	}
	_ = zw.Close()
	zstdPool.Put(zw)
}

func getGzipWriter(w io.Writer) encoder {
	if v := gzipPool.Get(); v != nil {
		gw := v.(*gzip.Writer)
		gw.Reset(w)
		return gw
	}
	gw, _ := gzip.NewWriterLevel(w, DefaultCompressConfig.GzipLevel)
	return gw
}

func releaseGzipWriter(e encoder, discard bool) {
	gw := e.(*gzip.Writer)
	if discard {
		gw.Reset(io.Discard)
	}
	_ = gw.Close()
	gzipPool.Put(gw)
}

// --- ResponseWriter Wrapper ---

type compressResponseWriter struct {
	http.ResponseWriter
	enc      encoder
	disabled bool // 204/304/1xx 時動態取消壓縮
}

func (cw *compressResponseWriter) Write(b []byte) (int, error) {
	if cw.disabled {
		return cw.ResponseWriter.Write(b)
	}
	// 長度會被壓縮改變
	cw.Header().Del("Content-Length")
	if cw.Header().Get("Content-Type") == "" {
		cw.Header().Set("Content-Type", http.DetectContentType(b))
	}
	return cw.enc.Write(b)
}

func (cw *compressResponseWriter) WriteHeader(code int) {
	cw.Header().Del("Content-Length")
	if isNoBodyStatus(code) {
		cw.disabled = true
		cw.Header().Del("Content-Encoding")
		cw.Header().Del("Vary")
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *compressResponseWriter) Flush() {
	if !cw.disabled {
		_ = cw.enc.Flush()
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (cw *compressResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := cw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying response writer does not support Hijacker")
	}
	return hj.Hijack()
}

func (cw *compressResponseWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

// Compression 依 Accept-Encoding 以 zstd 或 gzip 壓縮回應；websocket 與 HEAD 直接放行。
func Compression(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead || isWebSocketUpgrade(r) || w.Header().Get("Content-Encoding") != "" {
			next.ServeHTTP(w, r)
			return
		}
		accept := r.Header.Get("Accept-Encoding")
		for _, c := range codecs {
			if !strings.Contains(accept, c.name) {
				continue
			}
			w.Header().Set("Content-Encoding", c.name)
			w.Header().Add("Vary", "Accept-Encoding")
			cw := &compressResponseWriter{ResponseWriter: w, enc: c.get(w)}
			defer func() { c.release(cw.enc, cw.disabled) }()
			next.ServeHTTP(cw, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
