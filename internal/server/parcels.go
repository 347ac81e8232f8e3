package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"parceltrack/internal/domain"
	"parceltrack/internal/engine"
	"parceltrack/internal/engine/auth"
)

type parcelPath struct {
	ID string `path:"id"`
}

func registerParcels(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "receive-parcel",
		Method:        http.MethodPost,
		Path:          "/parcels",
		Summary:       "Receive a parcel",
		Tags:          []string{"parcels"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body ReceiveParcelRequest `json:"body"`
	}) (*struct {
		Body IDResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermParcelWrite); err != nil {
			return nil, err
		}
		p, err := e.ReceiveParcel(ctx, input.Body.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IDResponse `json:"body"`
		}{Body: IDResponse{ID: p.ID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-parcels",
		Method:      http.MethodGet,
		Path:        "/parcels",
		Summary:     "List parcels",
		Description: "Pages through parcels ordered by last event time (default) or id.",
		Tags:        []string{"parcels"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Page     int    `query:"page" doc:"1-based page, defaults to 1"`
		PageSize int    `query:"page_size" doc:"items per page, defaults to 10, at most 200"`
		State    string `query:"state" doc:"only parcels currently in this state"`
		Sort     string `query:"sort" doc:"last_event or id"`
		Order    string `query:"order" doc:"asc or desc"`
	}) (*struct {
		Body engine.ParcelPage `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermParcelRead); err != nil {
			return nil, err
		}
		page, err := e.ListParcels(ctx, engine.ParcelQuery{
			Page:     input.Page,
			PageSize: input.PageSize,
			State:    input.State,
			Sort:     input.Sort,
			Order:    input.Order,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ParcelPage `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "parcel-transitions",
		Method:      http.MethodGet,
		Path:        "/parcels/transitions",
		Summary:     "Allowed parcel state transitions",
		Tags:        []string{"parcels"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TransitionsResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermParcelRead); err != nil {
			return nil, err
		}
		table := e.Transitions()
		return &struct {
			Body TransitionsResponse `json:"body"`
		}{Body: TransitionsResponse{
			Enforced:    table.Enforce,
			States:      domain.ParcelStates,
			Transitions: table.Pairs(),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-parcel",
		Method:      http.MethodGet,
		Path:        "/parcels/{id}",
		Summary:     "Get parcel",
		Tags:        []string{"parcels"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *parcelPath) (*struct {
		Body domain.Parcel `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermParcelRead); err != nil {
			return nil, err
		}
		p, err := e.GetParcel(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Parcel `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-parcel",
		Method:      http.MethodPut,
		Path:        "/parcels/{id}/state",
		Summary:     "Move a parcel to a new state",
		Tags:        []string{"parcels"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Body StateRequest `json:"body"`
	}) (*struct {
		Body domain.Parcel `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermParcelWrite); err != nil {
			return nil, err
		}
		p, err := e.TransitionParcel(ctx, input.ID, input.Body.State)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Parcel `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-parcel",
		Method:      http.MethodDelete,
		Path:        "/parcels/{id}",
		Summary:     "Delete a parcel and its issues",
		Tags:        []string{"parcels"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *parcelPath) (*struct {
		Body engine.ParcelDeletion `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.DeleteParcel(ctx, principal, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ParcelDeletion `json:"body"`
		}{Body: res}, nil
	})
}
