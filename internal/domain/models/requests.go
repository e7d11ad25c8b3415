package models

// Requests for the HTTP query surface. Bound by echo, defaulted by creasty/defaults
// and checked by validator/v10.

type FairValueRequest struct {
	Name      string  `query:"name" json:"name" validate:"required"`
	Set       string  `query:"set" json:"set" validate:"required"`
	Number    string  `query:"number" json:"number"`
	Grade     string  `query:"grade" json:"grade" default:"RAW"`
	Language  string  `query:"language" json:"language" default:"EN"`
	ListPrice float64 `query:"list_price" json:"list_price" validate:"gt=0"`
}

type LatestSignalsRequest struct {
	Sort         string   `query:"sort" json:"sort" default:"edge" validate:"oneof=edge conf recent"`
	MinEdgeBp    *int64   `query:"min_edge" json:"min_edge" validate:"omitempty,gte=0"`
	MinConf      *float64 `query:"min_conf" json:"min_conf" validate:"omitempty,gte=0,lte=1"`
	MinPriceUSD  *float64 `query:"min_price_usd" json:"min_price_usd" validate:"omitempty,gte=0"`
	Limit        int      `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=100"`
	IncludeBlank bool     `query:"include_blank" json:"include_blank"`
}

type CardPathRequest struct {
	CardID string `param:"id" validate:"required"`
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type FeaturizeJobRequest struct {
	SinceHours int `json:"since_hours" default:"24" validate:"gte=1,lte=8760"`
}

type ScoreJobRequest struct {
	Limit int `json:"limit" default:"200" validate:"gte=1,lte=10000"`
}
