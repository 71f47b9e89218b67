package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bryan-buckman/feedkeeper/internal/discover"
	"github.com/bryan-buckman/feedkeeper/internal/feeds"
	"github.com/bryan-buckman/feedkeeper/internal/model"
	"github.com/bryan-buckman/feedkeeper/internal/opml"
	"github.com/bryan-buckman/feedkeeper/internal/parser"
)

// maxOPMLBytes caps uploaded OPML documents.
const maxOPMLBytes = 10 << 20

type feedView struct {
	ID               int64                `json:"id"`
	FolderID         *int64               `json:"folder_id,omitempty"`
	Title            string               `json:"title"`
	URL              string               `json:"url"`
	Format           string               `json:"format"`
	Status           model.Status         `json:"status"`
	TotalCount       int                  `json:"total_count"`
	UnreadCount      int                  `json:"unread_count"`
	AutoUpdateMode   model.AutoUpdateMode `json:"auto_update_mode"`
	IntervalMinutes  int                  `json:"interval_minutes"`
	RemainingMinutes int                  `json:"remaining_minutes"`
	AutoUpdateDesc   string               `json:"auto_update_description"`
	LastFetched      *time.Time           `json:"last_fetched,omitempty"`
	LastError        string               `json:"last_error,omitempty"`
}

func (s *Server) view(f *feeds.Feed) feedView {
	st := f.Snapshot()
	v := feedView{
		ID:               st.ID,
		FolderID:         st.FolderID,
		Title:            st.Title,
		URL:              st.URL,
		Format:           st.Format,
		Status:           st.Status,
		TotalCount:       st.TotalCount,
		UnreadCount:      st.UnreadCount,
		AutoUpdateMode:   st.AutoUpdateMode,
		IntervalMinutes:  int(st.AutoUpdateInterval / time.Minute),
		RemainingMinutes: int(st.Remaining.Round(time.Minute) / time.Minute),
		AutoUpdateDesc:   s.deps.Scheduler.Description(f),
		LastError:        st.LastError,
	}
	if !st.LastFetched.IsZero() {
		fetched := st.LastFetched
		v.LastFetched = &fetched
	}
	return v
}

// --- Feeds ---

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	all := s.deps.Registry.All()
	views := make([]feedView, 0, len(all))
	for _, f := range all {
		views = append(views, s.view(f))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	f, ok := s.feedParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.view(f))
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL             string               `json:"url"`
		Title           string               `json:"title"`
		FolderID        *int64               `json:"folder_id"`
		Format          string               `json:"format"`
		Mode            model.AutoUpdateMode `json:"mode"`
		IntervalMinutes int                  `json:"interval_minutes"`
	}
	req.Mode = model.AutoUpdateGlobal
	if !decodeJSON(w, r, &req) {
		return
	}
	format, err := parser.ParseFormat(req.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := s.deps.Manager.AddFeed(r.Context(), model.Feed{
		AccountID:          model.DefaultAccountID,
		FolderID:           req.FolderID,
		Title:              req.Title,
		URL:                req.URL,
		Format:             string(format),
		AutoUpdateMode:     req.Mode,
		AutoUpdateInterval: time.Duration(req.IntervalMinutes) * time.Minute,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	// First fetch runs in the background; its outcome updates the feed.
	s.deps.Coordinator.Trigger(r.Context(), f.ID())
	writeJSON(w, http.StatusCreated, s.view(f))
}

func (s *Server) handleUpdateFeed(w http.ResponseWriter, r *http.Request) {
	f, ok := s.feedParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Title    *string `json:"title"`
		FolderID *int64  `json:"folder_id"`
		Unfiled  bool    `json:"unfiled"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title != nil {
		if err := s.deps.Manager.Rename(r.Context(), f.ID(), *req.Title); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}
	if req.FolderID != nil || req.Unfiled {
		if err := s.deps.Manager.Move(r.Context(), f.ID(), req.FolderID); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.view(f))
}

func (s *Server) handleRemoveFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.deps.Manager.RemoveFeed(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetAutoUpdate(w http.ResponseWriter, r *http.Request) {
	f, ok := s.feedParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Mode            model.AutoUpdateMode `json:"mode"`
		IntervalMinutes int                  `json:"interval_minutes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.deps.Manager.SetAutoUpdate(r.Context(), f.ID(), req.Mode, time.Duration(req.IntervalMinutes)*time.Minute)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(f))
}

func (s *Server) handleRefreshFeed(w http.ResponseWriter, r *http.Request) {
	f, ok := s.feedParam(w, r)
	if !ok {
		return
	}
	if _, started := s.deps.Coordinator.Trigger(r.Context(), f.ID()); !started {
		writeError(w, http.StatusConflict, "feed is already being updated")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "feed_id": f.ID()})
}

func (s *Server) handleFeedMessages(w http.ResponseWriter, r *http.Request) {
	f, ok := s.feedParam(w, r)
	if !ok {
		return
	}
	onlyUnread := r.URL.Query().Get("unread") == "1"
	msgs, err := s.deps.Store.GetMessages(r.Context(), f.ID(), f.AccountID(), onlyUnread)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleCleanFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	onlyRead := r.URL.Query().Get("read_only") == "1"
	n, err := s.deps.Manager.Clean(r.Context(), id, onlyRead)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "moved": n})
}

// --- Messages ---

type idsRequest struct {
	IDs  []int64 `json:"ids"`
	Read *bool   `json:"read,omitempty"`
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	read := req.Read == nil || *req.Read
	if err := s.deps.Manager.MarkRead(r.Context(), req.IDs, read); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteMessages(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.deps.Manager.Delete(r.Context(), req.IDs); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Recycle bin ---

func (s *Server) handleRecycleBin(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.Store.GetRecycleBin(r.Context(), model.DefaultAccountID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleRecycleBinCounts(w http.ResponseWriter, r *http.Request) {
	total, err := s.deps.Store.CountRecycleBin(r.Context(), model.DefaultAccountID, false)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	unread, err := s.deps.Store.CountRecycleBin(r.Context(), model.DefaultAccountID, true)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"total": total, "unread": unread})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.deps.Manager.Restore(r.Context(), req.IDs); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEmptyRecycleBin(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Store.EmptyRecycleBin(r.Context(), model.DefaultAccountID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "purged": n})
}

// --- Folders ---

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.deps.Store.GetFolders(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		ParentID *int64 `json:"parent_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "folder name is required")
		return
	}
	id, err := s.deps.Store.CreateFolder(r.Context(), req.Name, req.ParentID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.Folder{ID: id, Name: req.Name, ParentID: req.ParentID})
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "folderID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid folder id")
		return
	}
	if err := s.deps.Manager.DeleteFolder(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Settings ---

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"auto_update_interval_minutes": int(s.deps.Scheduler.GlobalInterval() / time.Minute),
	})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IntervalMinutes int `json:"auto_update_interval_minutes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.deps.Manager.SetGlobalInterval(r.Context(), time.Duration(req.IntervalMinutes)*time.Minute); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "auto_update_interval_minutes": req.IntervalMinutes})
}

// --- Refresh, OPML, discovery ---

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	results, err := s.deps.Coordinator.RefreshAll(ctx)
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, fmt.Sprintf("refresh interrupted: %v", err))
		return
	}
	updated, failed := 0, 0
	for _, out := range results {
		updated += out.Updated
		if out.ErrorKind != model.ErrorNone {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"feeds":   len(results),
		"updated": updated,
		"failed":  failed,
	})
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxOPMLBytes)
	file, _, err := r.FormFile("opml")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	entries, err := opml.Parse(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse OPML: %v", err))
		return
	}
	res, err := opml.Import(r.Context(), s.deps.Store, entries, model.AutoUpdateGlobal)
	s.deps.Manager.Adopt(r.Context(), res.Created)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	for _, rec := range res.Created {
		s.deps.Coordinator.Trigger(r.Context(), rec.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"imported": len(res.Created),
		"skipped":  res.Skipped,
		"invalid":  res.Invalid,
		"total":    len(entries),
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	entries, err := opml.Collect(r.Context(), s.deps.Store)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	data, err := opml.Export("Feedkeeper Feeds", entries, s.deps.Clock())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export")
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=feedkeeper-feeds.opml")
	_, _ = w.Write(data)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	pageURL := r.URL.Query().Get("url")
	if !feeds.ValidURL(pageURL) {
		writeError(w, http.StatusBadRequest, model.ErrInvalidFeedURL.Error())
		return
	}
	links, err := discover.Find(r.Context(), s.deps.Client, pageURL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// --- Helpers ---

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "feedID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid feed id")
		return 0, false
	}
	return id, true
}

func (s *Server) feedParam(w http.ResponseWriter, r *http.Request) (*feeds.Feed, bool) {
	id, ok := idParam(w, r)
	if !ok {
		return nil, false
	}
	f, found := s.deps.Registry.Get(id)
	if !found {
		writeError(w, http.StatusNotFound, model.ErrFeedNotFound.Error())
		return nil, false
	}
	return f, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrFeedNotFound), errors.Is(err, model.ErrFolderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidFeedURL), errors.Is(err, model.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
