package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nsg/camon/internal/daemon"
)

const hlsTargetDuration = 6 // seconds, an upper bound advertised in the playlist

// registerLiveRoutes registers the raw-bytes live playback endpoints
// directly on the chi router: an HLS-style media playlist built on the fly
// from the camera's hot buffer, and the MPEG-TS bytes of one segment.
func registerLiveRoutes(router *chi.Mux, sup *daemon.Supervisor) {
	router.Get("/cameras/{camera}/live/playlist.m3u8", func(w http.ResponseWriter, r *http.Request) {
		cameraID := chi.URLParam(r, "camera")
		unit, ok := sup.Camera(cameraID)
		if !ok {
			http.NotFound(w, r)
			return
		}

		segments := unit.Buffer.Range()
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")

		var b strings.Builder
		b.WriteString("#EXTM3U\n")
		b.WriteString("#EXT-X-VERSION:3\n")
		fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", hlsTargetDuration)
		if len(segments) > 0 {
			fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", segments[0].Sequence)
		}
		for _, seg := range segments {
			fmt.Fprintf(&b, "#EXTINF:%.3f,\n", float64(seg.DurationNS)/1e9)
			fmt.Fprintf(&b, "segments/%d.ts\n", seg.Sequence)
		}
		w.Write([]byte(b.String()))
	})

	router.Get("/cameras/{camera}/live/segments/{sequence}.ts", func(w http.ResponseWriter, r *http.Request) {
		cameraID := chi.URLParam(r, "camera")
		unit, ok := sup.Camera(cameraID)
		if !ok {
			http.NotFound(w, r)
			return
		}

		sequence, err := strconv.ParseUint(chi.URLParam(r, "sequence"), 10, 64)
		if err != nil {
			http.Error(w, "invalid sequence", http.StatusBadRequest)
			return
		}

		seg, ok := unit.Buffer.Get(sequence)
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "video/mp2t")
		w.Write(seg.Data)
	})
}
