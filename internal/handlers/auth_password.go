package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"accountmanager/internal/directory"
	"accountmanager/internal/hasher"
	"accountmanager/internal/logger"
	"accountmanager/internal/models"
	"accountmanager/internal/reqctx"
	"accountmanager/internal/services"
	"accountmanager/internal/strength"
	helpers "accountmanager/internal/utils/helpers"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// uid попадает в DN и фильтр поиска, поэтому допускаем только безопасные символы
var reUID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

const (
	msgChanged         = "Your password has been changed."
	msgUserChanged     = "The user's password has been changed."
	msgStillInactive   = "The account is not activated. The user can activate the account by changing their password."
	msgIncorrect       = "Your username or password was incorrect."
	msgAdminIncorrect  = "Administrator username or password was incorrect."
	msgNotAdmin        = "The supplied administrator account cannot perform this action."
	msgNoUser          = "Couldn't find that user in the directory."
	msgAgree           = "You must agree to the terms and conditions."
	msgMismatch        = "Your new passwords do not match."
	msgAdminMismatch   = "The new passwords do not match."
	msgWeak            = "Your new password is too weak."
	msgAdminWeak       = "The new password is too weak."
	msgLinkExpired     = "The password reset link you followed does not exist or has expired."
	msgResetProblem    = "There was a technical problem while processing your request. The admin account does not have permission to perform the user password reset action."
	msgInactive        = "Your account is not activated. You can activate your account by changing your password."
	msgInternal        = "internal error"
	msgUnavailable     = "directory is unavailable, try again later"
	msgMailUndelivered = "The password reset email could not be sent."
	msgTooLong         = "The new password is too long."
)

// то, что хендлеру нужно от сервисов
type passwordChanger interface {
	ChangePassword(ctx context.Context, req services.ChangeRequest) (services.Outcome, error)
}

type resetFlow interface {
	RequestReset(ctx context.Context, baseURL, uid string) (services.ResetOutcome, error)
	Lookup(ctx context.Context, slug string) (*models.ResetToken, error)
	IsExpired(token *models.ResetToken) bool
	Redeem(ctx context.Context, slug, newPassword string) (services.Outcome, error)
	Invalidate(ctx context.Context, uid string) error
}

type PasswordHandler struct {
	accounts passwordChanger
	resets   resetFlow
	resetURL string
}

func NewPasswordHandler(accounts passwordChanger, resets resetFlow, resetURL string) *PasswordHandler {
	return &PasswordHandler{accounts: accounts, resets: resets, resetURL: strings.TrimRight(resetURL, "/")}
}

type outcomeResp struct {
	Outcome string `json:"outcome"`
	Message string `json:"message"`
	Info    string `json:"info,omitempty"`
}

type changeReq struct {
	UID            string `json:"uid"`
	OldPassword    string `json:"old_password"`
	NewPassword    string `json:"new_password"`
	VerifyPassword string `json:"verify_password"`
	Agree          bool   `json:"agree"`
}

// Change godoc
// @Summary Смена пароля пользователем
// @Description Проверяет старый пароль bind-ом в каталог и записывает новый. Неактивированная учётка активируется.
// @Tags password
// @Accept json
// @Produce json
// @Param input body changeReq true "uid, старый и новый пароль"
// @Success 200 {object} outcomeResp
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/password/change [post]
func (h *PasswordHandler) Change(w http.ResponseWriter, r *http.Request) {
	var req changeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !reUID.MatchString(req.UID) || req.OldPassword == "" {
		logger.WithCtx(r.Context()).Warn("Невалидный payload в Change")
		helpers.Error(w, http.StatusBadRequest, "invalid payload")
		return
	}
	ctx := reqctx.WithUID(r.Context(), req.UID)
	log := logger.WithCtx(ctx)

	if !req.Agree {
		helpers.Error(w, http.StatusBadRequest, msgAgree)
		return
	}
	if req.NewPassword != req.VerifyPassword {
		helpers.Error(w, http.StatusBadRequest, msgMismatch)
		return
	}
	if strength.IsWeak(req.NewPassword) {
		helpers.Error(w, http.StatusBadRequest, msgWeak)
		return
	}

	outcome, err := h.accounts.ChangePassword(ctx, services.ChangeRequest{
		UID:         req.UID,
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		log.Error("Сбой при смене пароля", zap.Error(err))
		writeServiceError(w, err)
		return
	}

	switch outcome {
	case services.Success, services.SuccessInactive:
		h.invalidateResets(ctx, req.UID)
		helpers.JSON(w, http.StatusOK, outcomeResp{Outcome: outcome.String(), Message: msgChanged})
	case services.BindFailure, services.NoSuchAccount:
		helpers.Error(w, http.StatusUnauthorized, msgIncorrect)
	default:
		log.Error("Неожиданный исход смены пароля", zap.Stringer("outcome", outcome))
		helpers.Error(w, http.StatusInternalServerError, msgInternal)
	}
}

type adminResetReq struct {
	Admin          string `json:"admin"`
	AdminPassword  string `json:"admin_password"`
	UID            string `json:"uid"`
	NewPassword    string `json:"new_password"`
	VerifyPassword string `json:"verify_password"`
}

// AdminReset godoc
// @Summary Смена пароля администратором
// @Description Администратор задаёт новый пароль пользователю. Права проверяет каталог.
// @Tags admin
// @Accept json
// @Produce json
// @Param input body adminResetReq true "Учётные данные администратора, uid и новый пароль"
// @Success 200 {object} outcomeResp
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/admin/reset [post]
func (h *PasswordHandler) AdminReset(w http.ResponseWriter, r *http.Request) {
	var req adminResetReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		!reUID.MatchString(req.UID) || !reUID.MatchString(req.Admin) || req.AdminPassword == "" {
		logger.WithCtx(r.Context()).Warn("Невалидный payload в AdminReset")
		helpers.Error(w, http.StatusBadRequest, "invalid payload")
		return
	}
	ctx := reqctx.WithUID(r.Context(), req.UID)
	log := logger.WithCtx(ctx).With(zap.String("admin", req.Admin))

	if req.NewPassword != req.VerifyPassword {
		helpers.Error(w, http.StatusBadRequest, msgAdminMismatch)
		return
	}
	if strength.IsWeak(req.NewPassword) {
		helpers.Error(w, http.StatusBadRequest, msgAdminWeak)
		return
	}

	outcome, err := h.accounts.ChangePassword(ctx, services.ChangeRequest{
		UID:           req.UID,
		NewPassword:   req.NewPassword,
		Admin:         req.Admin,
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		log.Error("Сбой при смене пароля администратором", zap.Error(err))
		writeServiceError(w, err)
		return
	}

	if outcome.Succeeded() {
		h.invalidateResets(ctx, req.UID)
	}

	switch outcome {
	case services.Success:
		helpers.JSON(w, http.StatusOK, outcomeResp{Outcome: outcome.String(), Message: msgUserChanged})
	case services.SuccessInactive:
		helpers.JSON(w, http.StatusOK, outcomeResp{Outcome: outcome.String(), Message: msgUserChanged, Info: msgStillInactive})
	case services.BindFailure:
		helpers.Error(w, http.StatusUnauthorized, msgAdminIncorrect)
	case services.NotAdmin:
		helpers.Error(w, http.StatusForbidden, msgNotAdmin)
	case services.NoSuchAccount:
		helpers.Error(w, http.StatusNotFound, msgNoUser)
	default:
		log.Error("Неожиданный исход смены пароля", zap.Stringer("outcome", outcome))
		helpers.Error(w, http.StatusInternalServerError, msgInternal)
	}
}

type requestResetReq struct {
	UID string `json:"uid"`
}

// RequestReset godoc
// @Summary Запрос ссылки на сброс пароля
// @Description Отправляет одноразовую ссылку на адрес пересылки учётки.
// @Tags password
// @Accept json
// @Produce json
// @Param input body requestResetReq true "uid"
// @Success 200 {object} outcomeResp
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/password/reset [post]
func (h *PasswordHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req requestResetReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !reUID.MatchString(req.UID) {
		logger.WithCtx(r.Context()).Warn("Невалидный payload в RequestReset")
		helpers.Error(w, http.StatusBadRequest, "invalid payload")
		return
	}
	ctx := reqctx.WithUID(r.Context(), req.UID)
	log := logger.WithCtx(ctx)

	outcome, err := h.resets.RequestReset(ctx, h.baseURL(r), req.UID)
	if err != nil {
		log.Error("Сбой при запросе сброса пароля", zap.Error(err))
		if errors.Is(err, services.ErrMailDelivery) {
			helpers.Error(w, http.StatusBadGateway, msgMailUndelivered)
			return
		}
		writeServiceError(w, err)
		return
	}

	switch outcome {
	case services.ResetSuccess:
		helpers.JSON(w, http.StatusOK, outcomeResp{
			Outcome: outcome.String(),
			Message: fmt.Sprintf("Password reset instructions have been emailed to the forwarding address on file for %s.", req.UID),
		})
	case services.ResetAccountInactive:
		helpers.Error(w, http.StatusConflict, msgInactive)
	case services.ResetNoSuchAccount:
		helpers.Error(w, http.StatusNotFound, fmt.Sprintf("The account %s does not exist.", req.UID))
	case services.ResetNoForwardingAddress:
		helpers.Error(w, http.StatusUnprocessableEntity, fmt.Sprintf("There is no email forwarding address on file for %s.", req.UID))
	default:
		log.Error("Неожиданный исход запроса сброса", zap.Stringer("outcome", outcome))
		helpers.Error(w, http.StatusInternalServerError, msgInternal)
	}
}

// baseURL — куда ведёт ссылка из письма: RESET_URL или адрес самого запроса.
func (h *PasswordHandler) baseURL(r *http.Request) string {
	if h.resetURL != "" {
		return h.resetURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, strings.TrimRight(r.URL.Path, "/"))
}

type tokenResp struct {
	UID       string    `json:"uid"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CheckReset godoc
// @Summary Проверка ссылки на сброс пароля
// @Tags password
// @Produce json
// @Param slug path string true "Slug из письма"
// @Success 200 {object} tokenResp
// @Failure 404 {object} map[string]string
// @Router /api/password/reset/{slug} [get]
func (h *PasswordHandler) CheckReset(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	t, err := h.resets.Lookup(r.Context(), slug)
	if err != nil {
		if !errors.Is(err, services.ErrTokenNotFound) {
			logger.WithCtx(r.Context()).Error("Ошибка поиска токена сброса", zap.Error(err))
			helpers.Error(w, http.StatusInternalServerError, msgInternal)
			return
		}
		helpers.Error(w, http.StatusNotFound, msgLinkExpired)
		return
	}
	if h.resets.IsExpired(t) {
		helpers.Error(w, http.StatusNotFound, msgLinkExpired)
		return
	}

	helpers.JSON(w, http.StatusOK, tokenResp{UID: t.UID, ExpiresAt: t.ExpiresAt})
}

type redeemReq struct {
	NewPassword    string `json:"new_password"`
	VerifyPassword string `json:"verify_password"`
}

// Redeem godoc
// @Summary Смена пароля по ссылке из письма
// @Tags password
// @Accept json
// @Produce json
// @Param slug path string true "Slug из письма"
// @Param input body redeemReq true "Новый пароль"
// @Success 200 {object} outcomeResp
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/password/reset/{slug} [post]
func (h *PasswordHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	log := logger.WithCtx(r.Context())

	var req redeemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("Невалидный payload в Redeem")
		helpers.Error(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.NewPassword != req.VerifyPassword {
		helpers.Error(w, http.StatusBadRequest, msgMismatch)
		return
	}
	if strength.IsWeak(req.NewPassword) {
		helpers.Error(w, http.StatusBadRequest, msgWeak)
		return
	}

	outcome, err := h.resets.Redeem(r.Context(), slug, req.NewPassword)
	switch {
	case errors.Is(err, services.ErrTokenNotFound), errors.Is(err, services.ErrTokenExpired):
		helpers.Error(w, http.StatusNotFound, msgLinkExpired)
		return
	case err != nil:
		log.Error("Сбой при смене пароля по ссылке", zap.Error(err))
		writeServiceError(w, err)
		return
	}

	switch outcome {
	case services.Success, services.SuccessInactive:
		helpers.JSON(w, http.StatusOK, outcomeResp{Outcome: outcome.String(), Message: msgChanged})
	case services.NoSuchAccount:
		helpers.Error(w, http.StatusNotFound, msgNoUser)
	default:
		// служебная учётка не смогла записать пароль — это проблема конфигурации
		log.Error("Служебная учётка не смогла сменить пароль", zap.Stringer("outcome", outcome))
		helpers.Error(w, http.StatusInternalServerError, msgResetProblem)
	}
}

type strengthReq struct {
	Password string `json:"password"`
}

type strengthResp struct {
	Strong  bool    `json:"strong"`
	Entropy float64 `json:"entropy"`
}

// Strength godoc
// @Summary Оценка надёжности пароля
// @Tags password
// @Accept json
// @Produce json
// @Param input body strengthReq true "Пароль"
// @Success 200 {object} strengthResp
// @Router /api/password/strength [post]
func (h *PasswordHandler) Strength(w http.ResponseWriter, r *http.Request) {
	var req strengthReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		helpers.Error(w, http.StatusBadRequest, "invalid payload")
		return
	}
	helpers.JSON(w, http.StatusOK, strengthResp{
		Strong:  strength.IsStrong(req.Password),
		Entropy: strength.WeighedEntropy(req.Password),
	})
}

// invalidateResets гасит ссылки на сброс, выданные до смены пароля. Пароль уже
// записан, поэтому ошибка только логируется.
func (h *PasswordHandler) invalidateResets(ctx context.Context, uid string) {
	if err := h.resets.Invalidate(ctx, uid); err != nil {
		logger.WithCtx(ctx).Warn("Не удалось удалить ссылки на сброс", zap.Error(err))
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, hasher.ErrPasswordTooLong) {
		helpers.Error(w, http.StatusBadRequest, msgTooLong)
		return
	}
	if errors.Is(err, directory.ErrUnavailable) {
		helpers.Error(w, http.StatusServiceUnavailable, msgUnavailable)
		return
	}
	helpers.Error(w, http.StatusInternalServerError, msgInternal)
}
