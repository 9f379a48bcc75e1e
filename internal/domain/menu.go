package domain

// MenuItem is one deal on the drive-in menu. Prices are whole rupees.
type MenuItem struct {
	Name        string `json:"name"`
	Price       int    `json:"price"`
	Description string `json:"description"`
}
