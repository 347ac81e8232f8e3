package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"parceltrack/internal/domain"
	"parceltrack/internal/engine"
	"parceltrack/internal/engine/auth"
)

type containerBody struct {
	Body domain.Container `json:"body"`
}

func registerContainers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-containers",
		Method:      http.MethodGet,
		Path:        "/containers",
		Summary:     "List containers",
		Tags:        []string{"containers"},
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Container `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermContainerRead); err != nil {
			return nil, err
		}
		items, err := e.ListContainers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Container `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-container",
		Method:      http.MethodGet,
		Path:        "/containers/{id}",
		Summary:     "Get container",
		Tags:        []string{"containers"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*containerBody, error) {
		if _, err := requirePermission(ctx, e, auth.PermContainerRead); err != nil {
			return nil, err
		}
		c, err := e.GetContainer(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &containerBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-container-members",
		Method:      http.MethodPut,
		Path:        "/containers/{id}/members",
		Summary:     "Add parcels to a container",
		Description: "Creates the container on first use. Membership is a set.",
		Tags:        []string{"containers"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body ParcelIDsRequest `json:"body"`
	}) (*containerBody, error) {
		if _, err := requirePermission(ctx, e, auth.PermContainerWrite); err != nil {
			return nil, err
		}
		c, err := e.AddContainerMembers(ctx, input.ID, input.Body.ParcelIDs)
		if err != nil {
			return nil, handleError(err)
		}
		return &containerBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-container-members",
		Method:      http.MethodDelete,
		Path:        "/containers/{id}/members",
		Summary:     "Remove parcels from a container",
		Tags:        []string{"containers"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body ParcelIDsRequest `json:"body"`
	}) (*containerBody, error) {
		if _, err := requirePermission(ctx, e, auth.PermContainerWrite); err != nil {
			return nil, err
		}
		c, err := e.RemoveContainerMembers(ctx, input.ID, input.Body.ParcelIDs)
		if err != nil {
			return nil, handleError(err)
		}
		return &containerBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "propagate-container-state",
		Method:      http.MethodPut,
		Path:        "/containers/{id}/state",
		Summary:     "Move every parcel in a container to a state",
		Description: "Each member is transitioned independently; failures are reported per parcel.",
		Tags:        []string{"containers"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Body StateRequest `json:"body"`
	}) (*struct {
		Body engine.PropagationResult `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermContainerWrite); err != nil {
			return nil, err
		}
		if _, err := requirePermission(ctx, e, auth.PermParcelWrite); err != nil {
			return nil, err
		}
		res, err := e.PropagateContainerState(ctx, input.ID, input.Body.State)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.PropagationResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-container",
		Method:      http.MethodDelete,
		Path:        "/containers/{id}",
		Summary:     "Delete a container",
		Description: "Removes the container and its membership. Member parcels are kept.",
		Tags:        []string{"containers"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body DeletedResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteContainer(ctx, principal, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeletedResponse `json:"body"`
		}{Body: DeletedResponse{ID: input.ID, Deleted: true}}, nil
	})
}
