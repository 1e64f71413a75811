package dtos

// Wire contracts of the Cart, Catalog, Payment and Notification services.

type CartItemDto struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type CartSnapshotDto struct {
	Items []CartItemDto `json:"items"`
}

type ProductDto struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int    `json:"stock"`
}

type ChargeRequestDto struct {
	Amount int64 `json:"amount"`
}

type ChargeResponseDto struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
}

type NotifyRequestDto struct {
	UserID  int64  `json:"userId"`
	Message string `json:"message"`
}
