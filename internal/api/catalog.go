package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lessonchat/pkg/types"
)

type LessonResponse struct {
	Lesson *types.Lesson `json:"lesson"`
}

type ListLessonsResponse struct {
	Lessons []*types.Lesson `json:"lessons"`
}

type ChildResponse struct {
	Child *types.Child `json:"child"`
}

type ListChildrenResponse struct {
	Children []*types.Child `json:"children"`
}

func (s *Server) registerCatalogRoutes(r chi.Router) {
	r.Route("/lessons", func(lr chi.Router) {
		lr.Get("/", s.listLessons)
		lr.Post("/", s.createLesson)
		lr.Get("/{id}", s.getLesson)
		lr.Put("/{id}", s.updateLesson)
		lr.Delete("/{id}", s.deleteLesson)
	})
	r.Route("/children", func(cr chi.Router) {
		cr.Get("/", s.listChildren)
		cr.Post("/", s.createChild)
		cr.Get("/{id}", s.getChild)
		cr.Put("/{id}", s.updateChild)
		cr.Delete("/{id}", s.deleteChild)
	})
}

func (s *Server) listLessons(w http.ResponseWriter, r *http.Request) {
	lessons, err := s.catalog.ListLessons(r.Context())
	if err != nil {
		s.sendFailure(w, err, "Failed to list lessons")
		return
	}
	respondJSON(w, http.StatusOK, ListLessonsResponse{Lessons: lessons})
}

func (s *Server) createLesson(w http.ResponseWriter, r *http.Request) {
	var lesson types.Lesson
	if !s.decode(w, r, &lesson) {
		return
	}
	created, err := s.catalog.CreateLesson(r.Context(), &lesson)
	if err != nil {
		s.sendFailure(w, err, "Failed to create lesson")
		return
	}
	respondJSON(w, http.StatusCreated, LessonResponse{Lesson: created})
}

func (s *Server) getLesson(w http.ResponseWriter, r *http.Request) {
	lesson, err := s.catalog.GetLesson(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendFailure(w, err, "Failed to get lesson")
		return
	}
	respondJSON(w, http.StatusOK, LessonResponse{Lesson: lesson})
}

func (s *Server) updateLesson(w http.ResponseWriter, r *http.Request) {
	var lesson types.Lesson
	if !s.decode(w, r, &lesson) {
		return
	}
	updated, err := s.catalog.UpdateLesson(r.Context(), chi.URLParam(r, "id"), &lesson)
	if err != nil {
		s.sendFailure(w, err, "Failed to update lesson")
		return
	}
	respondJSON(w, http.StatusOK, LessonResponse{Lesson: updated})
}

// deleteLesson is a soft delete; sessions keep resolving the lesson
func (s *Server) deleteLesson(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteLesson(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendFailure(w, err, "Failed to delete lesson")
		return
	}
	respondJSON(w, http.StatusOK, MessageResult{Message: "Lesson deleted successfully"})
}

func (s *Server) listChildren(w http.ResponseWriter, r *http.Request) {
	children, err := s.catalog.ListChildren(r.Context())
	if err != nil {
		s.sendFailure(w, err, "Failed to list children")
		return
	}
	respondJSON(w, http.StatusOK, ListChildrenResponse{Children: children})
}

func (s *Server) createChild(w http.ResponseWriter, r *http.Request) {
	var child types.Child
	if !s.decode(w, r, &child) {
		return
	}
	created, err := s.catalog.CreateChild(r.Context(), &child)
	if err != nil {
		s.sendFailure(w, err, "Failed to create child")
		return
	}
	respondJSON(w, http.StatusCreated, ChildResponse{Child: created})
}

func (s *Server) getChild(w http.ResponseWriter, r *http.Request) {
	child, err := s.catalog.GetChild(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendFailure(w, err, "Failed to get child")
		return
	}
	respondJSON(w, http.StatusOK, ChildResponse{Child: child})
}

func (s *Server) updateChild(w http.ResponseWriter, r *http.Request) {
	var child types.Child
	if !s.decode(w, r, &child) {
		return
	}
	updated, err := s.catalog.UpdateChild(r.Context(), chi.URLParam(r, "id"), &child)
	if err != nil {
		s.sendFailure(w, err, "Failed to update child")
		return
	}
	respondJSON(w, http.StatusOK, ChildResponse{Child: updated})
}

func (s *Server) deleteChild(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteChild(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendFailure(w, err, "Failed to delete child")
		return
	}
	respondJSON(w, http.StatusOK, MessageResult{Message: "Child deleted successfully"})
}
