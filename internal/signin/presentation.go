package signin

type staticPresentation bool

func (presentation staticPresentation) Active() bool {
	return bool(presentation)
}

// StaticPresentation returns a PresentationContext with a fixed availability,
// for hosts whose UI surface never comes and goes (servers, tests).
func StaticPresentation(active bool) PresentationContext {
	return staticPresentation(active)
}
