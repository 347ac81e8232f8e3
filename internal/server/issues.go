package server

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"parceltrack/internal/domain"
	"parceltrack/internal/engine"
	"parceltrack/internal/engine/auth"
)

// attachmentFields are the multipart field names accepted for uploads.
var attachmentFields = []string{"attachments", "attachments[]"}

type issuePath struct {
	ID string `path:"id"`
}

type issueBody struct {
	Body domain.Issue `json:"body"`
}

func formValue(form *multipart.Form, key string) string {
	if form == nil {
		return ""
	}
	if v := form.Value[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// formFiles opens every uploaded attachment. The returned func closes them.
func formFiles(form *multipart.Form) ([]engine.File, func(), error) {
	var (
		files   []engine.File
		closers []io.Closer
	)
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}
	if form == nil {
		return nil, closeAll, nil
	}
	for _, field := range attachmentFields {
		for _, fh := range form.File[field] {
			f, err := fh.Open()
			if err != nil {
				closeAll()
				return nil, func() {}, err
			}
			closers = append(closers, f)
			files = append(files, engine.File{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Reader:      f,
			})
		}
	}
	return files, closeAll, nil
}

func registerIssues(api huma.API, e engine.Engine, maxUpload int64) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-issue",
		Method:        http.MethodPost,
		Path:          "/issues",
		Summary:       "File an issue for a parcel",
		Description:   "Multipart form with parcel_id, type, description and optional attachments files.",
		Tags:          []string{"issues"},
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  maxUpload,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		RawBody multipart.Form
	}) (*struct {
		Body IDResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermIssueWrite); err != nil {
			return nil, err
		}
		files, closeFiles, err := formFiles(&input.RawBody)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unreadable attachment", nil)
		}
		defer closeFiles()
		is, err := e.CreateIssue(ctx, engine.IssueCreate{
			ParcelID:    formValue(&input.RawBody, "parcel_id"),
			Type:        formValue(&input.RawBody, "type"),
			Description: formValue(&input.RawBody, "description"),
			Files:       files,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IDResponse `json:"body"`
		}{Body: IDResponse{ID: is.ID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-issues",
		Method:      http.MethodGet,
		Path:        "/issues",
		Summary:     "List issues",
		Tags:        []string{"issues"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		ParcelID string `query:"parcel_id"`
	}) (*struct {
		Body []domain.Issue `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermIssueRead); err != nil {
			return nil, err
		}
		items, err := e.ListIssues(ctx, engine.IssueFilter{Status: input.Status, ParcelID: input.ParcelID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Issue `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "issue-details",
		Method:      http.MethodPost,
		Path:        "/issues/details",
		Summary:     "Issue details for a batch of parcels",
		Tags:        []string{"issues"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body ParcelIDsRequest `json:"body"`
	}) (*struct {
		Body IssueDetailsResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermIssueRead); err != nil {
			return nil, err
		}
		items, err := e.IssueDetailsBatch(ctx, input.Body.ParcelIDs)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IssueDetailsResponse `json:"body"`
		}{Body: IssueDetailsResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-issue",
		Method:      http.MethodGet,
		Path:        "/issues/{id}",
		Summary:     "Get issue",
		Tags:        []string{"issues"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *issuePath) (*issueBody, error) {
		if _, err := requirePermission(ctx, e, auth.PermIssueRead); err != nil {
			return nil, err
		}
		is, err := e.GetIssue(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &issueBody{Body: is}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "update-issue",
		Method:       http.MethodPatch,
		Path:         "/issues/{id}",
		Summary:      "Update issue status, comment and attachments",
		Description:  "Multipart form with any of status, comment and attachments files. Events are recorded in that order.",
		Tags:         []string{"issues"},
		MaxBodyBytes: maxUpload,
		Errors:       []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		RawBody multipart.Form
	}) (*issueBody, error) {
		if _, err := requirePermission(ctx, e, auth.PermIssueWrite); err != nil {
			return nil, err
		}
		files, closeFiles, err := formFiles(&input.RawBody)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unreadable attachment", nil)
		}
		defer closeFiles()
		is, err := e.UpdateIssue(ctx, input.ID, engine.IssueUpdate{
			Status:  formValue(&input.RawBody, "status"),
			Comment: formValue(&input.RawBody, "comment"),
			Files:   files,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &issueBody{Body: is}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-issue-status",
		Method:      http.MethodPut,
		Path:        "/issues/{id}/status",
		Summary:     "Change issue status",
		Tags:        []string{"issues"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body IssueStatusRequest `json:"body"`
	}) (*issueBody, error) {
		if _, err := requirePermission(ctx, e, auth.PermIssueWrite); err != nil {
			return nil, err
		}
		is, err := e.ChangeIssueStatus(ctx, input.ID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &issueBody{Body: is}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-issue-comment",
		Method:      http.MethodPost,
		Path:        "/issues/{id}/comments",
		Summary:     "Comment on an issue",
		Tags:        []string{"issues"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body IssueCommentRequest `json:"body"`
	}) (*issueBody, error) {
		if _, err := requirePermission(ctx, e, auth.PermIssueWrite); err != nil {
			return nil, err
		}
		is, err := e.AddIssueComment(ctx, input.ID, input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return &issueBody{Body: is}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "add-issue-attachments",
		Method:       http.MethodPost,
		Path:         "/issues/{id}/attachments",
		Summary:      "Attach files to an issue",
		Tags:         []string{"issues"},
		MaxBodyBytes: maxUpload,
		Errors:       []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		RawBody multipart.Form
	}) (*issueBody, error) {
		if _, err := requirePermission(ctx, e, auth.PermIssueWrite); err != nil {
			return nil, err
		}
		files, closeFiles, err := formFiles(&input.RawBody)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unreadable attachment", nil)
		}
		defer closeFiles()
		is, err := e.AddIssueAttachments(ctx, input.ID, files)
		if err != nil {
			return nil, handleError(err)
		}
		return &issueBody{Body: is}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-issue",
		Method:      http.MethodDelete,
		Path:        "/issues/{id}",
		Summary:     "Delete an issue",
		Tags:        []string{"issues"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *issuePath) (*struct {
		Body engine.IssueDeletion `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.DeleteIssue(ctx, principal, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.IssueDeletion `json:"body"`
		}{Body: res}, nil
	})
}
