package helpers

import (
	"accountmanager/internal/logger"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Response — общий конверт ответов API: либо data, либо error.
type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	write(w, status, Response{Data: data})
}

func Error(w http.ResponseWriter, status int, errMsg string) {
	write(w, status, Response{Error: errMsg})
}

// write отдаёт конверт. Статус уже ушёл клиенту, ошибку кодирования можно только залогировать.
func write(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Warn("не удалось записать ответ", zap.Int("status", status), zap.Error(err))
	}
}
