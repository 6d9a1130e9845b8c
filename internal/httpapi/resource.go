package httpapi

import (
	"context"
	"net/http"
)

// createResource decodes In, validates it and answers 201 with the stored record.
func createResource[In, Out any](w http.ResponseWriter, r *http.Request, validate func(*In) error, create func(context.Context, In) (Out, error)) {
	var in In
	if err := decodeJSON(r, &in); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if validate != nil {
		if err := validate(&in); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	out, err := create(r.Context(), in)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func getResource[Out any](w http.ResponseWriter, r *http.Request, get func(context.Context, int64) (Out, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := get(r.Context(), id)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// updateResource applies a partial update addressed by the {id} wildcard.
func updateResource[Upd, Out any](w http.ResponseWriter, r *http.Request, validate func(Upd) error, update func(context.Context, int64, Upd) (Out, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var upd Upd
	if err := decodeJSON(r, &upd); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if validate != nil {
		if err := validate(upd); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	out, err := update(r.Context(), id, upd)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// listResource answers with an {"items": [...]} envelope.
func listResource[Out any](w http.ResponseWriter, r *http.Request, items []Out, err error) {
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
