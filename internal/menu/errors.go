package menu

import "errors"

var (
	// ErrSourceNotFound is returned when the menu file does not exist.
	ErrSourceNotFound = errors.New("menu source not found")
	// ErrSourceEmpty is returned when the menu file holds no deals.
	ErrSourceEmpty = errors.New("menu source is empty")
	// ErrSourceMalformed is returned when rows cannot be read as deals.
	ErrSourceMalformed = errors.New("menu source is malformed")
)
