package entity

// Operator is a caller of the admin HTTP API, identified by a bearer token
// listed in the configuration.
type Operator struct {
	Name  string `json:"name" yaml:"name" validate:"required"`
	Token string `json:"token" yaml:"token" validate:"required,min=16"`
}
