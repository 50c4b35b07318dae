package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"listing-service/internal/domain"
	"listing-service/internal/jobs"
	"listing-service/internal/learning"
	"listing-service/internal/listing"
	"listing-service/internal/provider"
)

// UserIDHeader carries the caller identity set by the auth gateway.
const UserIDHeader = "X-User-ID"

const (
	defaultReviewLimit = 25
	maxReviewLimit     = 100
)

// Lister creates marketplace listings from product ids.
type Lister interface {
	List(ctx context.Context, req listing.Request) (*listing.Result, error)
}

// JobManager is the correlation job API.
type JobManager interface {
	Start(ctx context.Context, userID, searchKey string) (*jobs.StartResult, error)
	Status(ctx context.Context, jobID, userID string) (*jobs.StatusView, error)
	List(ctx context.Context, userID string, limit int) ([]domain.Job, error)
	Decide(ctx context.Context, userID string, resultID int64, decision domain.Decision, reason *string) (*domain.CorrelationResult, error)
}

// Reviewer runs one batch of the aspect miss review.
type Reviewer interface {
	ReviewPending(ctx context.Context, limit int) (learning.Summary, error)
}

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	lister   Lister
	jobs     JobManager
	reviewer Reviewer
	validate *validator.Validate
	logger   logrus.FieldLogger
}

func NewHTTPHandler(lister Lister, jm JobManager, reviewer Reviewer, logger logrus.FieldLogger) *HTTPHandler {
	return &HTTPHandler{
		lister:   lister,
		jobs:     jm,
		reviewer: reviewer,
		validate: validator.New(),
		logger:   logger.WithField("component", "http"),
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error          string   `json:"error"`
	Step           string   `json:"step,omitempty"`
	JobID          string   `json:"job_id,omitempty"`
	MissingAspects []string `json:"missing_aspects,omitempty"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logrus.WithError(err).Error("Failed to encode JSON response")
		}
	}
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserIDHeader))
}

// requireUser rejects requests that did not come through the auth gateway.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID(r) == "" {
			respondWithError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// --- Listing Handlers ---

// ListingCreateInput defines the expected input for creating a listing.
type ListingCreateInput struct {
	ProductID string  `json:"product_id" validate:"required,max=64"`
	Price     float64 `json:"price" validate:"required,gt=0"`
	Quantity  int     `json:"quantity" validate:"omitempty,min=0"`
	Condition string  `json:"condition" validate:"required,max=64"`
	Publish   bool    `json:"publish"`
}

type ListingResponse struct {
	SKU            string          `json:"sku"`
	OfferID        string          `json:"offer_id"`
	ListingID      string          `json:"listing_id,omitempty"`
	OfferReused    bool            `json:"offer_reused"`
	Category       domain.Category `json:"category"`
	MissingAspects []string        `json:"missing_aspects,omitempty"`
}

func (h *HTTPHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var input ListingCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	res, err := h.lister.List(r.Context(), listing.Request{
		ProductID: strings.TrimSpace(input.ProductID),
		Price:     input.Price,
		Quantity:  input.Quantity,
		Condition: input.Condition,
		Publish:   input.Publish,
	})
	if err != nil {
		h.respondListingError(w, input.ProductID, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, ListingResponse{
		SKU:            res.SKU,
		OfferID:        res.OfferID,
		ListingID:      res.ListingID,
		OfferReused:    res.OfferReused,
		Category:       res.Category,
		MissingAspects: res.MissingAspects,
	})
}

func (h *HTTPHandler) respondListingError(w http.ResponseWriter, productID string, err error) {
	log := h.logger.WithError(err).WithField("product_id", productID)

	var missing *listing.MissingAspectsError
	var stepErr *listing.StepError
	switch {
	case errors.Is(err, listing.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &missing):
		log.Warn("Listing rejected for missing aspects")
		respondWithJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:          "marketplace rejected the listing for missing aspects",
			MissingAspects: missing.Names,
		})
	case errors.Is(err, provider.ErrProductNotFound):
		respondWithError(w, http.StatusNotFound, provider.ErrProductNotFound.Error())
	case errors.As(err, &stepErr):
		log.WithField("step", stepErr.Step).Error("Listing failed at upstream step")
		respondWithJSON(w, http.StatusBadGateway, ErrorResponse{Error: stepErr.Err.Error(), Step: stepErr.Step})
	default:
		log.Error("Listing failed")
		respondWithError(w, http.StatusInternalServerError, "Failed to create listing")
	}
}

// --- Job Handlers ---

// JobStartInput defines the expected input for starting a correlation job.
type JobStartInput struct {
	SearchKey string `json:"search_key" validate:"required,max=64"`
}

func (h *HTTPHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	var input JobStartInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	res, err := h.jobs.Start(r.Context(), userID(r), input.SearchKey)
	if err != nil {
		var trigErr *jobs.TriggerError
		switch {
		case errors.Is(err, jobs.ErrInvalidInput):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &trigErr):
			respondWithJSON(w, http.StatusBadGateway, ErrorResponse{Error: "failed to trigger job", JobID: trigErr.JobID})
		default:
			h.logger.WithError(err).Error("StartJob failed")
			respondWithError(w, http.StatusInternalServerError, "Failed to start job")
		}
		return
	}

	code := http.StatusAccepted
	if res.AlreadyRunning {
		code = http.StatusOK
	}
	respondWithJSON(w, code, res)
}

func (h *HTTPHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	view, err := h.jobs.Status(r.Context(), chi.URLParam(r, "jobId"), userID(r))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			respondWithError(w, http.StatusNotFound, jobs.ErrJobNotFound.Error())
		} else {
			h.logger.WithError(err).Error("GetJob failed")
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve job")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (h *HTTPHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobs.List(r.Context(), userID(r), queryLimit(r))
	if err != nil {
		h.logger.WithError(err).Error("ListJobs failed")
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve jobs")
		return
	}
	if list == nil {
		list = []domain.Job{}
	}
	respondWithJSON(w, http.StatusOK, struct {
		Data []domain.Job `json:"data"`
	}{Data: list})
}

// DecisionInput defines the expected input for deciding on a correlation result.
type DecisionInput struct {
	Decision string  `json:"decision" validate:"required,oneof=accepted declined"`
	Reason   *string `json:"reason" validate:"omitempty,max=500"`
}

func (h *HTTPHandler) DecideResult(w http.ResponseWriter, r *http.Request) {
	resultID, err := strconv.ParseInt(chi.URLParam(r, "resultId"), 10, 64)
	if err != nil || resultID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid result ID format")
		return
	}

	var input DecisionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	res, err := h.jobs.Decide(r.Context(), userID(r), resultID, domain.Decision(input.Decision), input.Reason)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrResultNotFound):
			respondWithError(w, http.StatusNotFound, jobs.ErrResultNotFound.Error())
		case errors.Is(err, jobs.ErrInvalidDecision):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.WithError(err).Error("DecideResult failed")
			respondWithError(w, http.StatusInternalServerError, "Failed to record decision")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// --- Learning Handlers ---

func (h *HTTPHandler) ReviewMisses(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	if limit == 0 {
		limit = defaultReviewLimit
	}
	if limit > maxReviewLimit {
		limit = maxReviewLimit
	}

	sum, err := h.reviewer.ReviewPending(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("ReviewMisses failed")
		respondWithError(w, http.StatusInternalServerError, "Failed to review aspect misses")
		return
	}
	respondWithJSON(w, http.StatusOK, sum)
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/listings", h.CreateListing)

	r.Route("/api/v1/jobs", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/", h.StartJob)
		r.Get("/", h.ListJobs)
		r.Get("/{jobId}", h.GetJob)
		r.Put("/results/{resultId}/decision", h.DecideResult)
	})

	r.Post("/api/v1/learning/review", h.ReviewMisses)
}
