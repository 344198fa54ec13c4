package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all plugin and wizard routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/plugins", func(r chi.Router) {
		r.Get("/export", h.HandleExport)
		r.Post("/import", h.HandleImport)
		r.Get("/templates/{kind}", h.HandleGetTemplate)

		r.Route("/{kind}", func(r chi.Router) {
			r.Get("/", h.HandleList)
			r.Post("/", h.HandleRegister)
			r.Post("/template", h.HandleCreateFromTemplate)
			r.Post("/validate", h.HandleValidate)

			r.Get("/{id}", h.HandleGet)
			r.Patch("/{id}", h.HandleUpdate)
			r.Delete("/{id}", h.HandleDelete)
			r.Post("/{id}/performance", h.HandlePerformance)
		})
	})

	r.Route("/api/wizards", func(r chi.Router) {
		r.Post("/{kind}", h.HandleStartWizard)

		r.Route("/session/{wid}", func(r chi.Router) {
			r.Get("/", h.HandleGetWizard)
			r.Patch("/", h.HandleUpdateWizard)
			r.Delete("/", h.HandleCloseWizard)
			r.Post("/next", h.HandleWizardNext)
			r.Post("/prev", h.HandleWizardPrev)
			r.Post("/test", h.HandleWizardTest)
			r.Post("/finalize", h.HandleWizardFinalize)
		})
	})
}
