package httpapi

import (
	"net/http"

	"github.com/NordCoder/Deadswitch/internal/domain/contact"
)

type contactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	list, err := s.deps.Contacts.ListByUser(r.Context(), userID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if list == nil {
		list = []contact.Contact{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	var req contactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c := &contact.Contact{UserID: userID, Name: req.Name, Email: req.Email}
	if err := c.Normalize(); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if err := s.deps.Contacts.Create(r.Context(), c); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) updateContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	contactID, ok := uuidParam(w, r, "contactID")
	if !ok {
		return
	}
	var req contactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c := &contact.Contact{ID: contactID, UserID: userID, Name: req.Name, Email: req.Email}
	if err := c.Normalize(); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if err := s.deps.Contacts.Update(r.Context(), c); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	contactID, ok := uuidParam(w, r, "contactID")
	if !ok {
		return
	}
	if err := s.deps.Contacts.Delete(r.Context(), userID, contactID); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
