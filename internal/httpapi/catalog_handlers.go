package httpapi

import (
	"net/http"
	"strconv"

	"uspguard.org/internal/compliance"
)

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.engine.ListUsers(r.Context())
	listResource(w, r, users, err)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	createResource(w, r, validateUser, a.engine.CreateUser)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	getResource(w, r, a.engine.GetUser)
}

func (a *API) listChapters(w http.ResponseWriter, r *http.Request) {
	chapters, err := a.engine.ListChapters(r.Context())
	listResource(w, r, chapters, err)
}

func (a *API) createChapter(w http.ResponseWriter, r *http.Request) {
	createResource(w, r, func(in *compliance.NewChapter) error { return validateChapter(*in) }, a.engine.CreateChapter)
}

func (a *API) getChapter(w http.ResponseWriter, r *http.Request) {
	getResource(w, r, a.engine.GetChapter)
}

// chapterCompliance joins a chapter's requirements with the pharmacy's
// current compliance records.
func (a *API) chapterCompliance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	pharmacy, ok := pharmacyParam(w, r)
	if !ok {
		return
	}
	details, err := a.engine.ComplianceByChapter(r.Context(), id, pharmacy)
	listResource(w, r, details, err)
}

func (a *API) listRequirements(w http.ResponseWriter, r *http.Request) {
	var chapterID int64
	if raw := r.URL.Query().Get("chapter_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			writeError(w, r, http.StatusBadRequest, "chapter_id must be a positive integer")
			return
		}
		chapterID = v
	}
	reqs, err := a.engine.ListRequirements(r.Context(), chapterID)
	listResource(w, r, reqs, err)
}

func (a *API) createRequirement(w http.ResponseWriter, r *http.Request) {
	createResource(w, r, func(in *compliance.NewRequirement) error { return validateRequirement(*in) }, a.engine.CreateRequirement)
}

func (a *API) getRequirement(w http.ResponseWriter, r *http.Request) {
	getResource(w, r, a.engine.GetRequirement)
}

func (a *API) listPharmacies(w http.ResponseWriter, r *http.Request) {
	ids, err := a.engine.Pharmacies(r.Context())
	listResource(w, r, ids, err)
}
