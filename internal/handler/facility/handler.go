package facility

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
	"github.com/zhouzirui/emergency-hub/backend/pkg/utils"
)

// Handler 紧急服务设施查询的HTTP处理器
type Handler struct {
	store         facility.Store
	defaultRadius float64
}

// New 创建设施处理器。defaultRadius 仅在请求未携带 radius 时使用。
func New(store facility.Store, defaultRadius float64) *Handler {
	if defaultRadius <= 0 {
		defaultRadius = facility.DefaultRadiusKM
	}
	return &Handler{store: store, defaultRadius: defaultRadius}
}

// RegisterRoutes 注册设施相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/facilities/{category}", h.handleList)
	r.Get("/facilities/{category}/nearby", h.handleNearby)
	r.Get("/services/summary", h.handleSummary)
}

// handleList 列出某一类别的全部设施
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	category, ok := facility.ParseCategory(chi.URLParam(r, "category"))
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, facility.ErrUnknownCategory.Error())
		return
	}

	items, err := h.store.List(category)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"category":   category,
		"count":      len(items),
		"facilities": items,
	})
}

// handleNearby 按距离返回半径内的设施
func (h *Handler) handleNearby(w http.ResponseWriter, r *http.Request) {
	category, ok := facility.ParseCategory(chi.URLParam(r, "category"))
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, facility.ErrUnknownCategory.Error())
		return
	}

	query := r.URL.Query()
	lat, err := parseFloatParam(query.Get("lat"), "lat")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	lon, err := parseFloatParam(query.Get("lon"), "lon")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	radius := h.defaultRadius
	if raw := strings.TrimSpace(query.Get("radius")); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "radius must be a number")
			return
		}
	}

	nearby, err := h.store.FindNearby(category, lat, lon, radius)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"category":   category,
		"latitude":   lat,
		"longitude":  lon,
		"radius_km":  radius,
		"count":      len(nearby),
		"facilities": nearby,
	})
}

// handleSummary 返回各类别设施数量
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	counts := h.store.Counts()
	total := 0
	for _, n := range counts {
		total += n
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"hospitals":       counts[facility.Medical],
		"fire_stations":   counts[facility.Fire],
		"police_stations": counts[facility.Police],
		"total":           total,
	})
}

func parseFloatParam(raw, name string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New(name + " is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New(name + " must be a number")
	}
	return v, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, facility.ErrInvalidLatitude),
		errors.Is(err, facility.ErrInvalidLongitude),
		errors.Is(err, facility.ErrInvalidRadius),
		errors.Is(err, facility.ErrUnknownCategory):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
