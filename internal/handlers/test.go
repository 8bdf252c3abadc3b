package handlers

import (
	"fmt"
	"net/http"
)

func (h *Handlers) Test(w http.ResponseWriter, r *http.Request) {
	if _, err := fmt.Fprint(w, "Hello world!"); err != nil {
		h.sugar.Error(err)
	}
}
