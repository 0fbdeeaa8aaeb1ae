package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/geo"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/service"
)

// FoodHandler serves the listing endpoints. Create and update accept
// multipart forms so images can ride along; update also takes plain JSON.
type FoodHandler struct {
	food     *service.FoodService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewFoodHandler(food *service.FoodService, validate *validator.Validate, logger *slog.Logger) *FoodHandler {
	return &FoodHandler{food: food, validate: validate, logger: logger}
}

type createFoodForm struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description" validate:"required"`
	FoodType    string    `json:"foodType" validate:"required"`
	Quantity    string    `json:"quantity" validate:"required"`
	FreshUntil  time.Time `json:"freshUntil" validate:"required"`
}

type updateFoodRequest struct {
	Title              *string         `json:"title"`
	Description        *string         `json:"description"`
	FoodType           *string         `json:"foodType"`
	Quantity           *string         `json:"quantity"`
	FreshUntil         *string         `json:"freshUntil"`
	PickupInstructions *string         `json:"pickupInstructions"`
	Location           *model.GeoPoint `json:"location"`
}

// HandleList is the public feed of available food.
//
// HTTP: GET /api/food?donor=&foodType=&lat=&lng=&distance=&limit=
func (h *FoodHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	near, err := geo.ParseRadius(q.Get("lat"), q.Get("lng"), q.Get("distance"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, h.logger, apperror.ValidationFailed("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	listings, err := h.food.List(r.Context(), service.FoodQuery{
		DonorID:  q.Get("donor"),
		FoodType: q.Get("foodType"),
		Limit:    limit,
		Near:     near,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeList(w, listings)
}

// HandleGet returns one listing, available or not.
//
// HTTP: GET /api/food/{id}
func (h *FoodHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	listing, err := h.food.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, listing)
}

// HandleCreate lists new food. Donors only.
//
// HTTP: POST /api/food (multipart/form-data, up to 5 "images")
func (h *FoodHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		writeError(w, r, h.logger, apperror.ValidationFailed("body", "Expected a multipart form"))
		return
	}
	files, cleanup, err := parseMultipart(w, r)
	defer cleanup()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	freshUntil, err := formTime(r, "freshUntil")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	form := createFoodForm{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		FoodType:    r.FormValue("foodType"),
		Quantity:    r.FormValue("quantity"),
		FreshUntil:  freshUntil,
	}
	if err := validateStruct(h.validate, &form); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	location, err := formLocation(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	listing, err := h.food.Create(r.Context(), principal(r), service.FoodInput{
		Title:              form.Title,
		Description:        form.Description,
		FoodType:           form.FoodType,
		Quantity:           form.Quantity,
		FreshUntil:         form.FreshUntil,
		PickupInstructions: r.FormValue("pickupInstructions"),
		Location:           location,
	}, files)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, listing)
}

// HandleUpdate edits a listing. Only the donor who listed it may.
//
// HTTP: PUT /api/food/{id} (multipart/form-data or JSON)
func (h *FoodHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var (
		update service.FoodUpdate
		files  []service.ImageFile
	)

	if isMultipart(r) {
		var cleanup func()
		var err error
		files, cleanup, err = parseMultipart(w, r)
		defer cleanup()
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		update, err = h.updateFromForm(r)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	} else {
		var req updateFoodRequest
		if err := decodeJSON(w, r, h.validate, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		update = service.FoodUpdate{
			Title:              req.Title,
			Description:        req.Description,
			FoodType:           req.FoodType,
			Quantity:           req.Quantity,
			PickupInstructions: req.PickupInstructions,
			Location:           normalizePoint(req.Location),
		}
		if req.FreshUntil != nil && strings.TrimSpace(*req.FreshUntil) != "" {
			t, err := parseTime("freshUntil", *req.FreshUntil)
			if err != nil {
				writeError(w, r, h.logger, err)
				return
			}
			update.FreshUntil = &t
		}
	}

	listing, err := h.food.Update(r.Context(), principal(r), chi.URLParam(r, "id"), update, files)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, listing)
}

func (h *FoodHandler) updateFromForm(r *http.Request) (service.FoodUpdate, error) {
	update := service.FoodUpdate{
		Title:              formString(r, "title"),
		Description:        formString(r, "description"),
		FoodType:           formString(r, "foodType"),
		Quantity:           formString(r, "quantity"),
		PickupInstructions: formString(r, "pickupInstructions"),
	}
	if raw := formString(r, "freshUntil"); raw != nil && strings.TrimSpace(*raw) != "" {
		t, err := formTime(r, "freshUntil")
		if err != nil {
			return update, err
		}
		update.FreshUntil = &t
	}
	location, err := formLocation(r)
	if err != nil {
		return update, err
	}
	update.Location = location
	return update, nil
}

// HandleMarkUnavailable withdraws a listing from the feed.
//
// HTTP: PUT /api/food/{id}/unavailable
func (h *FoodHandler) HandleMarkUnavailable(w http.ResponseWriter, r *http.Request) {
	listing, err := h.food.MarkUnavailable(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, listing)
}
