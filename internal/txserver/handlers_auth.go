package txserver

import (
	"errors"
	"net/http"

	"github.com/meridianfi/ledger/internal/apperr"
	"github.com/meridianfi/ledger/internal/auth"
	"github.com/meridianfi/ledger/internal/model"
	"github.com/meridianfi/ledger/internal/txstore"
	"github.com/meridianfi/ledger/internal/web"
)

func (h *handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, apperr.Validation(err.Error()))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(w, r, apperr.Internal("hash password", err))
		return
	}

	user, err := h.db.CreateUser(r.Context(), model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if txstore.IsUniqueViolation(err) {
			h.fail(w, r, apperr.Conflict("username or email already in use"))
			return
		}
		h.fail(w, r, apperr.Database("create user", err))
		return
	}

	h.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	web.WriteJSON(w, r, http.StatusCreated, user.Summary())
}

func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		h.fail(w, r, apperr.Validation("username and password are required"))
		return
	}

	user, err := h.db.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, txstore.ErrNotFound) {
			// Burn the same hashing cost as a real verification so response
			// timing does not reveal whether the username exists.
			auth.DummyVerify()
			h.fail(w, r, apperr.Unauthorized("invalid credentials"))
			return
		}
		h.fail(w, r, apperr.Database("load user", err))
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		h.fail(w, r, apperr.Unauthorized("invalid credentials"))
		return
	}

	token, _, err := h.jwtMgr.IssueToken(user)
	if err != nil {
		h.fail(w, r, apperr.Internal("issue token", err))
		return
	}

	web.WriteJSON(w, r, http.StatusOK, model.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.jwtMgr.Expiration().Seconds()),
		User:        user.Summary(),
	})
}

func (h *handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.db.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, txstore.ErrNotFound) {
			h.fail(w, r, apperr.Unauthorized("account no longer exists"))
			return
		}
		h.fail(w, r, apperr.Database("load user", err))
		return
	}

	web.WriteJSON(w, r, http.StatusOK, user.Summary())
}
