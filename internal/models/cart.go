package models

type Cart struct {
	UserID   string     `json:"user_id"`
	Items    []CartItem `json:"items"`
	Subtotal float64    `json:"subtotal"`
	Count    int        `json:"count"`
}

type CartItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Price     float64 `json:"price"`
	Month     int     `json:"month"`
	Quantity  int     `json:"quantity"`
	ImageURL  string  `json:"image_url,omitempty"`
}
