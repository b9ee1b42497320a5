package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lingolens/lingolens-go/internal/host"
	"github.com/lingolens/lingolens-go/internal/protocol"
	"github.com/lingolens/lingolens-go/internal/storage"
	"github.com/lingolens/lingolens-go/internal/ws"
)

func (s *Server) session(c *gin.Context) (*ws.Session, bool) {
	sess, ok := s.bridge.Session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pane not found"})
		return nil, false
	}
	return sess, true
}

type paneInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Language string `json:"language"`
	Title    string `json:"title"`
}

func (s *Server) listPanes(c *gin.Context) {
	sessions := s.bridge.Sessions()
	panes := make([]paneInfo, 0, len(sessions))
	for _, sess := range sessions {
		p := sess.Pane()
		panes = append(panes, paneInfo{
			ID:       p.ID,
			URL:      sess.URL(),
			Language: p.Language(),
			Title:    p.Title(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"panes": panes})
}

func (s *Server) setLanguage(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req struct {
		Language string `json:"language" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.host.SetLanguage(sess.Pane(), req.Language)
	c.JSON(http.StatusOK, gin.H{"language": req.Language})
}

func (s *Server) triggerBatch(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	s.host.TriggerBatch(sess.Pane())
	c.Status(http.StatusAccepted)
}

func (s *Server) toggleMarquee(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.host.ToggleMarquee(sess.Pane(), req.Active)
	c.JSON(http.StatusOK, gin.H{"active": req.Active})
}

func (s *Server) retranslate(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	s.host.Retranslate(sess.Pane())
	c.Status(http.StatusAccepted)
}

func (s *Server) requestState(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	s.host.RequestPageState(sess.Pane())
	c.Status(http.StatusAccepted)
}

func (s *Server) requestExport(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	s.host.RequestExport(sess.Pane())
	c.Status(http.StatusAccepted)
}

// entryRef targets one translated element. Element IDs contain slashes, so
// they travel in the body rather than the path.
type entryRef struct {
	ID string `json:"id" binding:"required"`
}

func (s *Server) highlight(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req entryRef
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.host.Highlight(sess.Pane(), req.ID)
	c.Status(http.StatusAccepted)
}

func (s *Server) retranslateEntry(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req entryRef
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.host.RetranslateEntry(sess.Pane(), req.ID); err != nil {
		status := http.StatusNotFound
		if errors.Is(err, host.ErrEntryLocked) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) updateEntry(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req struct {
		ID     string `json:"id" binding:"required"`
		Text   string `json:"text" binding:"required"`
		Locked *bool  `json:"locked"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.host.UpdateEntry(sess.Pane(), req.ID, req.Text, req.Locked)
	c.Status(http.StatusAccepted)
}

func (s *Server) listLibrary(c *gin.Context) {
	summaries, err := s.library.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pages": summaries})
}

// saveToLibrary persists the host-side mirror of a pane. The mirror tracks
// PAGE_STATE_RESPONSE, so callers wanting a fresh snapshot request state first.
func (s *Server) saveToLibrary(c *gin.Context) {
	var req struct {
		Pane string `json:"pane" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, ok := s.bridge.Session(req.Pane)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pane not found"})
		return
	}
	p := sess.Pane()
	state := protocol.PageState{Translations: p.Mirror(), Title: p.Title()}
	rec, err := s.library.Save(sess.URL(), p.Language(), p.Title(), state)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.metrics.LibrarySave()
	s.log.Info("page saved to library",
		zap.String("id", rec.ID), zap.String("url", rec.URL))
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) getLibraryRecord(c *gin.Context) {
	rec, err := s.library.Load(c.Param("id"))
	if err != nil {
		s.libraryError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) deleteLibraryRecord(c *gin.Context) {
	if err := s.library.Delete(c.Param("id")); err != nil {
		s.libraryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// restoreFromLibrary replays a saved snapshot into a live pane.
func (s *Server) restoreFromLibrary(c *gin.Context) {
	var req struct {
		Pane string `json:"pane" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, ok := s.bridge.Session(req.Pane)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pane not found"})
		return
	}
	rec, err := s.library.Load(c.Param("id"))
	if err != nil {
		s.libraryError(c, err)
		return
	}
	s.host.Restore(sess.Pane(), rec.State)
	c.JSON(http.StatusOK, gin.H{"restored": len(rec.State.Translations)})
}

func (s *Server) libraryError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "page not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
