// Package registration contains the HTTP handlers of the registration form
// and of the applicants it creates.
//
// HANDLER PATTERN USED HERE (THE CLOSURE / FACTORY PATTERN):
// ────────────────────────────────────────────────────────────
// Every exported function receives its dependencies (catalog, validator,
// registrar, storage) once at startup and returns the
// http.HandlerFunc the router calls on every request:
//
//	router.HandleFunc("POST /api/register", registration.Register(deps))
//
// The form itself is per request: a client posts its whole draft and the
// handler loads it into a fresh registration.Form.
//
// Dates in a posted draft use RFC 3339, e.g. "2006-01-01T00:00:00Z".
package registration

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aanand-mishra/studyabroad-api/internal/catalog"
	"github.com/aanand-mishra/studyabroad-api/internal/registration"
	"github.com/aanand-mishra/studyabroad-api/internal/storage"
	"github.com/aanand-mishra/studyabroad-api/internal/types"
	"github.com/aanand-mishra/studyabroad-api/internal/utils/response"
)

// Deps are the collaborators the registration handlers share.
type Deps struct {
	Catalog   types.SchoolCatalog
	Validator *registration.Validator
	Registrar registration.Registrar
	InFlight  *registration.InFlight
	Config    registration.Config
}

var errInFlight = errors.New("a registration for this email is already being processed")

// formState is what the browser needs to render the form.
type formState struct {
	Draft     types.RegistrationDraft `json:"draft"`
	Countries []string                `json:"countries"`
	Schools   []types.School          `json:"schools"`
	Programs  []types.Program         `json:"programs"`
}

func stateOf(d types.RegistrationDraft, schools types.SchoolCatalog) formState {
	c := registration.Derive(d, schools)
	// passwords are never echoed back
	d.Password, d.ConfirmPassword = "", ""
	return formState{
		Draft:     d,
		Countries: catalog.Countries(schools),
		Schools:   c.VisibleSchools,
		Programs:  c.VisiblePrograms,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Defaults handles GET /api/registration/defaults
// Returns a freshly initialised draft with the option lists for it.
//
// Success response (200 OK):
//
//	{ "draft": { "country": "VN", "schoolName": "...", ... },
//	  "countries": ["VN", "US"], "schools": [...], "programs": [...] }
//
// ─────────────────────────────────────────────────────────────────────────────
func Defaults(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := registration.Initialize(deps.Catalog)
		if err != nil {
			slog.Error("error initialising draft", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, stateOf(draft, deps.Catalog))
	}
}

// optionsRequest is the body of POST /api/registration/options. Field and
// Value are optional; when set, the change is applied before deriving.
type optionsRequest struct {
	Draft types.RegistrationDraft `json:"draft"`
	Field registration.Field      `json:"field"`
	Value string                  `json:"value"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Options handles POST /api/registration/options
// Applies one field change to the posted draft and returns the resulting
// draft with its school and program lists. Changing the country or the
// school resets the selections that no longer fit.
//
// Request body (JSON):
//
//	{ "draft": { ... }, "field": "country", "value": "US" }
//
// Error responses:
//
//	400 Bad Request : empty body, malformed JSON, unknown field or bad value
//
// ─────────────────────────────────────────────────────────────────────────────
func Options(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req optionsRequest
		if err := response.DecodeJSON(r, &req); err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		form, err := registration.NewForm(deps.Catalog, deps.Validator, deps.Registrar, deps.Config)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}
		form.Load(req.Draft)

		if req.Field != "" {
			if err := form.SetField(req.Field, req.Value); err != nil {
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
				return
			}
		}

		response.WriteJSON(w, http.StatusOK, stateOf(form.Draft(), deps.Catalog))
	}
}

// validateResponse groups the field errors by form tab.
type validateResponse struct {
	Valid bool                                          `json:"valid"`
	Tabs  map[registration.Tab]registration.FieldErrors `json:"tabs"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validate handles POST /api/registration/validate
// Checks a draft without submitting it. Always 200 for a well-formed body.
//
// Success response (200 OK):
//
//	{ "valid": false, "tabs": { "account": { "email": "field email is required" } } }
//
// ─────────────────────────────────────────────────────────────────────────────
func Validate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var draft types.RegistrationDraft
		if err := response.DecodeJSON(r, &draft); err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		_, errs := deps.Validator.Validate(draft)
		tabs := errs.ByTab()
		response.WriteJSON(w, http.StatusOK, validateResponse{Valid: errs == nil, Tabs: tabs})
	}
}

// registerResponse is the 201 body of a successful registration.
type registerResponse struct {
	Status          string `json:"status"`
	Success         string `json:"success"`
	RedirectTo      string `json:"redirectTo"`
	RedirectAfterMs int64  `json:"redirectAfterMs"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Register handles POST /api/register
// Validates the posted draft and submits it to the register action.
//
// Success response (201 Created):
//
//	{ "status": "ok", "success": "Registration successful! ...",
//	  "redirectTo": "/auth/login", "redirectAfterMs": 3000 }
//
// Error responses:
//
//	400 Bad Request         : malformed body or invalid fields ("fields" holds one message per field)
//	409 Conflict            : a registration for the same email is in progress
//	422 Unprocessable Entity: the register action refused (e.g. email already in use)
//	500 Internal            : the register action could not run
//
// ─────────────────────────────────────────────────────────────────────────────
func Register(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var draft types.RegistrationDraft
		if err := response.DecodeJSON(r, &draft); err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		// a draft without an email fails validation below; gating it would
		// turn concurrent invalid posts into 409s
		if key := strings.ToLower(strings.TrimSpace(draft.Email)); key != "" {
			release, ok := deps.InFlight.Acquire(key)
			if !ok {
				slog.Info("registration already in flight", slog.String("email", key))
				response.WriteJSON(w, http.StatusConflict, response.GeneralError(errInFlight))
				return
			}
			defer release()
		}

		form, err := registration.NewForm(deps.Catalog, deps.Validator, deps.Registrar, deps.Config)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}
		form.Load(draft)

		result, err := form.Submit(r.Context())
		if err != nil {
			var fieldErrs registration.FieldErrors
			switch {
			case errors.As(err, &fieldErrs):
				response.WriteJSON(w, http.StatusBadRequest, fieldErrors(fieldErrs))
			case errors.Is(err, registration.ErrSubmissionInFlight):
				response.WriteJSON(w, http.StatusConflict, response.GeneralError(errInFlight))
			default:
				slog.Error("error registering applicant", slog.String("error", err.Error()))
				response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			}
			return
		}

		if result.Error != "" {
			response.WriteJSON(w, http.StatusUnprocessableEntity, response.Response{
				Status: response.StatusError,
				Error:  result.Error,
			})
			return
		}

		response.WriteJSON(w, http.StatusCreated, registerResponse{
			Status:          response.StatusOK,
			Success:         result.Success,
			RedirectTo:      result.RedirectTo,
			RedirectAfterMs: result.RedirectAfter.Milliseconds(),
		})
	}
}

func fieldErrors(errs registration.FieldErrors) response.Response {
	fields := make(map[string]string, len(errs))
	for f, msg := range errs {
		fields[string(f)] = msg
	}
	return response.FieldErrors(fields, errs.Error())
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID handles GET /api/applicants/{id}
// Support staff only: the router puts it behind middleware.Session and
// middleware.RequireRole(types.RoleAdmin).
//
// Error responses:
//
//	400 Bad Request : id is not a valid integer
//	401 Unauthorized: no session
//	403 Forbidden   : the session is not ADMIN
//	404 Not Found   : no applicant with this id
//	500 Internal    : database error
//
// ─────────────────────────────────────────────────────────────────────────────
func GetByID(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		slog.Info("getting an applicant", slog.String("id", id))

		intID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(errors.New("invalid id: must be an integer")))
			return
		}

		applicant, err := store.GetApplicantByID(r.Context(), intID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				response.WriteJSON(w, http.StatusNotFound,
					response.GeneralError(fmt.Errorf("applicant %d not found", intID)))
				return
			}
			slog.Error("error getting applicant",
				slog.String("id", id),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, applicant)
	}
}

// GetList handles GET /api/applicants, for support staff only like
// GetByID. An empty table gives [] rather than null.
func GetList(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("getting all applicants")

		applicants, err := store.GetApplicants(r.Context())
		if err != nil {
			slog.Error("error getting applicants", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, applicants)
	}
}
