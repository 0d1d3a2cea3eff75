package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"teamtask/tasks/adapters/rest"
	"teamtask/tasks/core"
	"teamtask/tasks/pkg/res"
)

type session struct {
	User  core.User `json:"user"`
	Token string    `json:"token"`
}

func NewRegisterHandler(log *slog.Logger, svc Accounts, tokens TokenIssuer, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in rest.RegisterIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			rest.BadRequest(w, "invalid json")
			return
		}

		role := core.Role(strings.ToLower(strings.TrimSpace(in.Role)))
		if role != "" && !role.Valid() {
			rest.BadRequest(w, "invalid role")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		u, err := svc.Register(ctx, in.Username, in.Password, role)
		if err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		token, err := tokens.Issue(u)
		if err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		res.Json(w, map[string]any{"success": true, "data": session{User: u, Token: token}}, http.StatusCreated)
	}
}

func NewLoginHandler(log *slog.Logger, svc Accounts, tokens TokenIssuer, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in rest.LoginIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			rest.BadRequest(w, "invalid json")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		u, err := svc.Login(ctx, in.Username, in.Password)
		if err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		token, err := tokens.Issue(u)
		if err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		res.Json(w, map[string]any{"success": true, "data": session{User: u, Token: token}}, http.StatusOK)
	}
}

func NewListUsersHandler(log *slog.Logger, svc Accounts, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		users, err := svc.ListUsers(ctx, mustActor(r))
		if err != nil {
			rest.WriteErr(w, log, err)
			return
		}
		res.Json(w, map[string]any{"success": true, "data": users, "count": len(users)}, http.StatusOK)
	}
}
