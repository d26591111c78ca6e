package httpapi

import (
	"context"
	"net/http"
	"os"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/nsg/camon/internal/daemon"
	"github.com/nsg/camon/internal/store"
)

type motionInput struct {
	Camera string `path:"camera"`
}

type motionOutput struct {
	Body struct {
		Motion []store.MotionSnapshot `json:"motion"`
	}
}

type detectionsInput struct {
	Camera string `path:"camera"`
}

type detectionsOutput struct {
	Body struct {
		Detections []store.DetectionSnapshot `json:"detections"`
	}
}

type eventsInput struct {
	Camera string `path:"camera"`
	From   uint64 `query:"from"`
	To     uint64 `query:"to"`
}

type eventSummary struct {
	StartPTSNS uint64 `json:"start_pts_ns"`
	DurationMS uint32 `json:"duration_ms"`
	Type       string `json:"type"`
	FileSize   uint64 `json:"file_size"`
}

type eventsOutput struct {
	Body struct {
		Events []eventSummary `json:"events"`
	}
}

func registerEventRoutes(api huma.API, router *chi.Mux, sup *daemon.Supervisor) {
	huma.Register(api, huma.Operation{
		OperationID: "getMotion",
		Method:      "GET",
		Path:        "/cameras/{camera}/motion",
		Summary:     "Recent motion history for a camera",
		Tags:        []string{"Analytics"},
	}, func(ctx context.Context, input *motionInput) (*motionOutput, error) {
		out := &motionOutput{}
		out.Body.Motion = sup.MotionStore.GetMotion(input.Camera)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getDetections",
		Method:      "GET",
		Path:        "/cameras/{camera}/detections",
		Summary:     "Recent object detections for a camera",
		Tags:        []string{"Analytics"},
	}, func(ctx context.Context, input *detectionsInput) (*detectionsOutput, error) {
		out := &detectionsOutput{}
		out.Body.Detections = sup.DetectionStore.GetDetections(input.Camera)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getEvents",
		Method:      "GET",
		Path:        "/cameras/{camera}/events",
		Summary:     "Warm-storage events within a time range",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *eventsInput) (*eventsOutput, error) {
		entries := sup.WarmIndex.Query(input.Camera, input.From, input.To)
		out := &eventsOutput{}
		for _, e := range entries {
			t := "movement"
			if e.EventType == store.EventTypeObject {
				t = "object"
			}
			out.Body.Events = append(out.Body.Events, eventSummary{
				StartPTSNS: e.StartPTSNS, DurationMS: e.DurationMS, Type: t, FileSize: e.FileSize,
			})
		}
		return out, nil
	})

	router.Get("/cameras/{camera}/events/{start_pts_ns}/playlist.m3u8", func(w http.ResponseWriter, r *http.Request) {
		cameraID := chi.URLParam(r, "camera")
		startPTS, err := strconv.ParseUint(chi.URLParam(r, "start_pts_ns"), 10, 64)
		if err != nil {
			http.Error(w, "invalid start_pts_ns", http.StatusBadRequest)
			return
		}

		entry, ok := sup.WarmIndex.FindEvent(cameraID, startPTS)
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.Write([]byte("#EXTM3U\n" +
			"#EXT-X-VERSION:3\n" +
			"#EXT-X-TARGETDURATION:" + strconv.Itoa(int(entry.DurationMS/1000)+1) + "\n" +
			"#EXT-X-PLAYLIST-TYPE:VOD\n" +
			"#EXTINF:" + strconv.FormatFloat(float64(entry.DurationMS)/1000, 'f', 3, 64) + ",\n" +
			"segment.ts\n" +
			"#EXT-X-ENDLIST\n"))
	})

	router.Get("/cameras/{camera}/events/{start_pts_ns}/segment.ts", func(w http.ResponseWriter, r *http.Request) {
		cameraID := chi.URLParam(r, "camera")
		startPTS, err := strconv.ParseUint(chi.URLParam(r, "start_pts_ns"), 10, 64)
		if err != nil {
			http.Error(w, "invalid start_pts_ns", http.StatusBadRequest)
			return
		}

		entry, ok := sup.WarmIndex.FindEvent(cameraID, startPTS)
		if !ok {
			http.NotFound(w, r)
			return
		}

		path := sup.WarmIndex.ResolveFilePath(cameraID, entry)
		data, err := os.ReadFile(path)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "video/mp2t")
		w.Write(data)
	})
}
