package models

// PredictionsRequest is the query contract for the predictions read.
type PredictionsRequest struct {
	Refresh bool `query:"refresh"`
	Limit   int  `query:"limit" validate:"omitempty,min=1,max=100"`
}
