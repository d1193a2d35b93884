package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"certline/internal/domain"
	"certline/internal/engine"
	"certline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid transition draft -> approved"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type actorKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the certification API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(actorMiddleware)
	hcfg := huma.DefaultConfig("Certline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerApplications(group, cfg.Engine)
	registerTransitions(group, cfg.Engine)
	registerStatistics(group, cfg.Engine)
	registerCertificates(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

// actorMiddleware reads the caller identity from X-Actor-Id. Authentication
// proper is handled upstream of this service.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
		if actor == "" {
			actor = "anonymous"
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func actorID(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ite engine.InvalidTransitionError
	if errors.As(err, &ite) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"from": string(ite.From),
			"to":   string(ite.To),
		})
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"field": ve.Field})
	}
	var ae engine.AllocationError
	if errors.As(err, &ae) {
		return newAPIError(http.StatusInternalServerError, "allocation_failed", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", "application was modified concurrently; reload and retry", nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Certline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerApplications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-application",
		Method:        http.MethodPost,
		Path:          "/applications",
		Summary:       "Create application",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateApplicationRequest `json:"body"`
	}) (*struct {
		Body domain.Application `json:"body"`
	}, error) {
		a, err := e.CreateApplication(ctx, engine.CreateOptions{
			FarmerID:    input.Body.FarmerID,
			FarmName:    input.Body.FarmName,
			CropType:    stringOrEmpty(input.Body.CropType),
			FarmAddress: stringOrEmpty(input.Body.FarmAddress),
			Documents:   input.Body.Documents,
			ActorID:     actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Application `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-applications",
		Method:      http.MethodGet,
		Path:        "/applications",
		Summary:     "List applications",
	}, func(ctx context.Context, input *struct {
		Status          string `query:"status"`
		FarmerID        string `query:"farmer_id"`
		Limit           int    `query:"limit"`
		CursorCreatedAt string `query:"cursor_created_at"`
		CursorID        string `query:"cursor_id"`
	}) (*struct {
		Body []domain.Application `json:"body"`
	}, error) {
		items, err := e.Repo.ListApplications(ctx, repo.ApplicationFilters{
			Status:          input.Status,
			FarmerID:        input.FarmerID,
			Limit:           input.Limit,
			CursorCreatedAt: input.CursorCreatedAt,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Application `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-application",
		Method:      http.MethodGet,
		Path:        "/applications/{id}",
		Summary:     "Get application",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Application `json:"body"`
	}, error) {
		a, err := e.Repo.GetApplication(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Application `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-documents",
		Method:      http.MethodPatch,
		Path:        "/applications/{id}/documents",
		Summary:     "Update application documents",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body UpdateDocumentsRequest `json:"body"`
	}) (*struct {
		Body domain.Application `json:"body"`
	}, error) {
		a, err := e.UpdateDocuments(ctx, input.ID, input.Body.Documents, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Application `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-application-history",
		Method:      http.MethodGet,
		Path:        "/applications/{id}/history",
		Summary:     "Get application audit history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetApplication(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		entries, err := e.Repo.ListHistory(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: HistoryResponse{ApplicationID: input.ID, Entries: entries}}, nil
	})
}

func transitionErrors() []int {
	return []int{
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusUnprocessableEntity,
		http.StatusInternalServerError,
	}
}

func transitionBody(res engine.Result) *struct {
	Body TransitionResponse `json:"body"`
} {
	return &struct {
		Body TransitionResponse `json:"body"`
	}{Body: TransitionResponse{Application: res.Application, Warnings: res.Warnings}}
}

func registerTransitions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-application",
		Method:      http.MethodPost,
		Path:        "/applications/{id}/submit",
		Summary:     "Submit application",
		Errors:      transitionErrors(),
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		res, err := e.SubmitApplication(ctx, input.ID, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return transitionBody(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-document-review",
		Method:      http.MethodPost,
		Path:        "/applications/{id}/review/start",
		Summary:     "Start document review",
		Errors:      transitionErrors(),
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body StartReviewRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		reviewerID := input.Body.ReviewerID
		if reviewerID == "" {
			reviewerID = actorID(ctx)
		}
		res, err := e.StartDocumentReview(ctx, input.ID, reviewerID)
		if err != nil {
			return nil, handleError(err)
		}
		return transitionBody(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-document-review",
		Method:      http.MethodPost,
		Path:        "/applications/{id}/review/complete",
		Summary:     "Complete document review",
		Errors:      transitionErrors(),
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body CompleteReviewRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		res, err := e.CompleteDocumentReview(ctx, input.ID, engine.DocumentReviewResult{
			Approved:             input.Body.Approved,
			RequestMoreDocuments: input.Body.RequestMoreDocuments,
			MissingDocuments:     input.Body.MissingDocuments,
			InspectorID:          stringOrEmpty(input.Body.InspectorID),
			InspectionDate:       stringOrEmpty(input.Body.InspectionDate),
			Reason:               stringOrEmpty(input.Body.Reason),
			Note:                 stringOrEmpty(input.Body.Note),
		}, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return transitionBody(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-field-inspection",
		Method:      http.MethodPost,
		Path:        "/applications/{id}/inspection/start",
		Summary:     "Start field inspection",
		Errors:      transitionErrors(),
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body StartInspectionRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		inspectorID := input.Body.InspectorID
		if inspectorID == "" {
			inspectorID = actorID(ctx)
		}
		res, err := e.StartFieldInspection(ctx, input.ID, inspectorID)
		if err != nil {
			return nil, handleError(err)
		}
		return transitionBody(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-field-inspection",
		Method:      http.MethodPost,
		Path:        "/applications/{id}/inspection/complete",
		Summary:     "Complete field inspection",
		Errors:      transitionErrors(),
	}, func(ctx context.Context, input *struct {
		ID   string                    `path:"id"`
		Body CompleteInspectionRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		res, err := e.CompleteFieldInspection(ctx, input.ID, domain.InspectionReport{
			InspectorID:       actorID(ctx),
			Score:             input.Body.Score,
			Passed:            input.Body.Passed,
			SOPImplemented:    input.Body.SOPImplemented,
			TraceabilityReady: input.Body.TraceabilityReady,
			QualityControl:    input.Body.QualityControl,
			Notes:             stringOrEmpty(input.Body.Notes),
		}, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return transitionBody(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-reinspection",
		Method:      http.MethodPost,
		Path:        "/applications/{id}/reinspect",
		Summary:     "Request re-inspection",
		Errors:      transitionErrors(),
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body ReinspectRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		res, err := e.RequestReinspection(ctx, input.ID, input.Body.InspectorID, stringOrEmpty(input.Body.InspectionDate), actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return transitionBody(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "forward-to-approval",
		Method:      http.MethodPost,
		Path:        "/applications/{id}/forward-approval",
		Summary:     "Forward to approval",
		Errors:      transitionErrors(),
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body ForwardApprovalRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		res, err := e.ForwardToApproval(ctx, input.ID, actorID(ctx), stringOrEmpty(input.Body.Note))
		if err != nil {
			return nil, handleError(err)
		}
		return transitionBody(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-application",
		Method:      http.MethodPost,
		Path:        "/applications/{id}/approve",
		Summary:     "Approve application and issue certificate",
		Errors:      transitionErrors(),
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body ApproveRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		res, err := e.ApproveApplication(ctx, input.ID, actorID(ctx), stringOrEmpty(input.Body.Note))
		if err != nil {
			return nil, handleError(err)
		}
		return transitionBody(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-application",
		Method:      http.MethodPost,
		Path:        "/applications/{id}/reject",
		Summary:     "Reject application",
		Errors:      transitionErrors(),
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body RejectRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		res, err := e.RejectApplication(ctx, input.ID, input.Body.Reason, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return transitionBody(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "expire-application",
		Method:      http.MethodPost,
		Path:        "/applications/{id}/expire",
		Summary:     "Expire issued certificate",
		Errors:      transitionErrors(),
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		res, err := e.ExpireApplication(ctx, input.ID, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return transitionBody(res), nil
	})
}

func registerStatistics(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "workflow-statistics",
		Method:      http.MethodGet,
		Path:        "/statistics",
		Summary:     "Workflow statistics",
	}, func(ctx context.Context, input *struct {
		FarmerID      string `query:"farmer_id"`
		CreatedAfter  string `query:"created_after"`
		CreatedBefore string `query:"created_before"`
	}) (*struct {
		Body StatisticsResponse `json:"body"`
	}, error) {
		stats, err := e.WorkflowStatistics(ctx, engine.StatisticsFilters{
			FarmerID:      input.FarmerID,
			CreatedAfter:  input.CreatedAfter,
			CreatedBefore: input.CreatedBefore,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatisticsResponse `json:"body"`
		}{Body: StatisticsResponse{Statuses: stats}}, nil
	})
}

func registerCertificates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-certificate",
		Method:      http.MethodGet,
		Path:        "/certificates/{number}",
		Summary:     "Get certificate",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Number string `path:"number"`
	}) (*struct {
		Body domain.Certificate `json:"body"`
	}, error) {
		cert, err := e.Repo.GetCertificate(ctx, input.Number)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Certificate `json:"body"`
		}{Body: cert}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-certificate",
		Method:      http.MethodGet,
		Path:        "/certificates/verify",
		Summary:     "Verify certificate token",
	}, func(ctx context.Context, input *struct {
		Token string `query:"token" required:"true"`
	}) (*struct {
		Body CertificateVerifyResponse `json:"body"`
	}, error) {
		cert, err := e.VerifyCertificateToken(ctx, input.Token)
		if err != nil {
			var ve engine.ValidationError
			if errors.As(err, &ve) {
				return &struct {
					Body CertificateVerifyResponse `json:"body"`
				}{Body: CertificateVerifyResponse{Valid: false, Reason: ve.Reason}}, nil
			}
			return nil, handleError(err)
		}
		return &struct {
			Body CertificateVerifyResponse `json:"body"`
		}{Body: CertificateVerifyResponse{Valid: cert.Status == domain.CertificateActive, Certificate: &cert}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List domain events",
	}, func(ctx context.Context, input *struct {
		Limit         int    `query:"limit"`
		Cursor        int64  `query:"cursor"`
		ApplicationID string `query:"application_id"`
		Type          string `query:"type"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.Cursor, input.ApplicationID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
