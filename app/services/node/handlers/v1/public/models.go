package public

// mineRequest is the body accepted by POST /v1/mine.
type mineRequest struct {
	Data string `json:"data" validate:"max=4096"`
}
