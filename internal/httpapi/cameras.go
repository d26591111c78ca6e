package httpapi

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nsg/camon/internal/daemon"
)

type cameraSummary struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Codec  string `json:"codec"`
	Status string `json:"status"`
}

type listCamerasInput struct{}

type listCamerasOutput struct {
	Body struct {
		Cameras []cameraSummary `json:"cameras"`
	}
}

func registerCameraRoutes(api huma.API, sup *daemon.Supervisor) {
	huma.Register(api, huma.Operation{
		OperationID: "listCameras",
		Method:      "GET",
		Path:        "/cameras",
		Summary:     "List configured cameras",
		Tags:        []string{"Cameras"},
	}, func(ctx context.Context, input *listCamerasInput) (*listCamerasOutput, error) {
		records, err := sup.Registry.ListCameras()
		if err != nil {
			return nil, huma.Error500InternalServerError("listing cameras", err)
		}

		out := &listCamerasOutput{}
		for _, rec := range records {
			status := "stopped"
			if _, running := sup.Camera(rec.ID); running {
				status = "running"
			}
			out.Body.Cameras = append(out.Body.Cameras, cameraSummary{
				ID: rec.ID, URL: rec.URL, Codec: rec.Codec, Status: status,
			})
		}
		return out, nil
	})
}
