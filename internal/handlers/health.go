package handlers

import (
	"net/http"

	helpers "accountmanager/internal/utils/helpers"
)

// Health godoc
// @Summary Проверка живости
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/health [get]
func Health(w http.ResponseWriter, r *http.Request) {
	helpers.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
