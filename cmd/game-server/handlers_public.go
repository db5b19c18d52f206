package main

import (
	"net/http"

	"gridstakes/internal/arena"
	"gridstakes/internal/leaderboard"
	"gridstakes/internal/store"
)

func healthHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			writeHTTPError(w, http.StatusServiceUnavailable, "db_unreachable")
			return
		}
		writeJSON(w, map[string]any{"status": "ok"})
	}
}

func publicRoomsHandler(orch *arena.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"items": orch.ListRooms()})
	}
}

func publicLeaderboardHandler(lb *leaderboard.Leaderboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r, 10, 100)
		entries, err := lb.TopN(r.Context(), limit)
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, map[string]any{"items": entries})
	}
}

func meHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		balance, err := st.GetBalance(r.Context(), user.ID)
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		prog, err := st.GetProgression(r.Context(), user.ID)
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, map[string]any{
			"user_id": user.ID,
			"name":    user.Name,
			"balance": balance,
			"rating":  prog.Rating,
			"xp":      prog.XP,
			"level":   prog.Level,
		})
	}
}

func historyHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		limit := parseLimit(r, 20, 100)
		rows, err := st.ListMatchHistory(r.Context(), user.ID, limit)
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		out := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			out = append(out, map[string]any{
				"match_id":     row.MatchID,
				"role":         row.Role,
				"outcome":      row.Outcome,
				"rating_delta": row.RatingDelta,
				"payout":       row.Payout,
				"played_at":    row.CreatedAt,
			})
		}
		writeJSON(w, map[string]any{"items": out})
	}
}

func ledgerHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		limit := parseLimit(r, 50, 200)
		entries, err := st.ListLedgerEntries(r.Context(), user.ID, limit)
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		out := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			out = append(out, map[string]any{
				"id":         e.ID,
				"type":       e.Type,
				"amount":     e.Amount,
				"ref_type":   e.RefType,
				"ref_id":     e.RefID,
				"created_at": e.CreatedAt,
			})
		}
		writeJSON(w, map[string]any{"items": out})
	}
}

func questsHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		progress, err := st.GetQuestProgress(r.Context(), user.ID)
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, map[string]any{"progress": progress})
	}
}
