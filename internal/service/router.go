package service

import "github.com/oaiwrapper/oaiwrapper/internal/model"

// ResolvePage picks the view to render. Authenticated users always land on
// the main view; everyone else sees signup when they asked for it and login
// otherwise.
func ResolvePage(authenticated bool, requested model.Page) model.Page {
	if authenticated {
		return model.PageMain
	}
	if requested == model.PageSignup {
		return model.PageSignup
	}
	return model.PageLogin
}
